package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardwatch/internal/manager"
	"wardwatch/internal/middleware"
	"wardwatch/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type authFixture struct {
	tokens *middleware.TokenService
	router *gin.Engine
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	dir := t.TempDir()

	clients := manager.NewClientStore(filepath.Join(dir, "clients.json"))
	require.NoError(t, clients.Load())
	hash, err := middleware.HashSecret("sensor-secret")
	require.NoError(t, err)
	require.NoError(t, clients.Put("sensor-1", hash, []string{middleware.ScopeRead, middleware.ScopeWrite}))

	users := manager.NewUserStore(filepath.Join(dir, "users.json"))
	require.NoError(t, users.Load())
	hash, err = middleware.HashSecret("ward-pass")
	require.NoError(t, err)
	require.NoError(t, users.Put("nurse.kim", hash, []string{middleware.ScopeRead}))

	tokens := middleware.NewTokenService()
	h := NewAuthHandlers(tokens, clients, users, nil)

	r := gin.New()
	auth := r.Group("/auth")
	{
		auth.POST("/token", h.IssueToken)
		auth.POST("/token-password", h.IssuePasswordToken)
		auth.GET("/token-validate", tokens.RequireValid(), h.ValidateToken)
	}
	return &authFixture{tokens: tokens, router: r}
}

func postForm(t *testing.T, router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIssueTokenClientCredentials(t *testing.T) {
	fx := newAuthFixture(t)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", "sensor-1")
	form.Set("client_secret", "sensor-secret")
	w := postForm(t, fx.router, "/auth/token", form)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int(middleware.TokenExpiry.Seconds()), resp.ExpiresIn)

	claims, err := fx.tokens.Validate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "sensor-1", claims.Subject)
	assert.True(t, claims.HasScope(middleware.ScopeWrite))
}

func TestIssueTokenRejectsBadSecret(t *testing.T) {
	fx := newAuthFixture(t)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", "sensor-1")
	form.Set("client_secret", "wrong")
	w := postForm(t, fx.router, "/auth/token", form)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid client credentials")
}

func TestIssueTokenRejectsUnknownClient(t *testing.T) {
	fx := newAuthFixture(t)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", "ghost")
	form.Set("client_secret", "anything")
	w := postForm(t, fx.router, "/auth/token", form)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueTokenRejectsMalformedGrant(t *testing.T) {
	fx := newAuthFixture(t)

	form := url.Values{}
	form.Set("grant_type", "password") // wrong grant for this endpoint
	form.Set("client_id", "sensor-1")
	form.Set("client_secret", "sensor-secret")
	w := postForm(t, fx.router, "/auth/token", form)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = postForm(t, fx.router, "/auth/token", url.Values{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIssuePasswordToken(t *testing.T) {
	fx := newAuthFixture(t)

	form := url.Values{}
	form.Set("username", "nurse.kim")
	form.Set("password", "ward-pass")
	w := postForm(t, fx.router, "/auth/token-password", form)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := fx.tokens.Validate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "nurse.kim", claims.Subject)
	assert.True(t, claims.HasScope(middleware.ScopeRead))
	assert.False(t, claims.HasScope(middleware.ScopeWrite))
}

func TestIssuePasswordTokenRejectsBadPassword(t *testing.T) {
	fx := newAuthFixture(t)

	form := url.Values{}
	form.Set("username", "nurse.kim")
	form.Set("password", "not-the-pass")
	w := postForm(t, fx.router, "/auth/token-password", form)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")
}

func TestTokenValidateEndpoint(t *testing.T) {
	fx := newAuthFixture(t)

	token, err := fx.tokens.Generate("sensor-1", []string{middleware.ScopeRead})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/token-validate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sensor-1")

	req = httptest.NewRequest(http.MethodGet, "/auth/token-validate", nil)
	w = httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
