package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wardwatch/internal/manager"
	"wardwatch/internal/middleware"
	"wardwatch/internal/models"
)

// AuthHandlers implements the token endpoints: client-credentials for
// machine connectors (sensor feeders, the bedside agent) and the password
// grant for staff accounts.
type AuthHandlers struct {
	tokens  *middleware.TokenService
	clients *manager.ClientStore
	users   *manager.UserStore
	logger  *zap.Logger
}

func NewAuthHandlers(tokens *middleware.TokenService, clients *manager.ClientStore, users *manager.UserStore, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{tokens: tokens, clients: clients, users: users, logger: logger}
}

// ClientCredentialsRequest is the form body for POST /auth/token.
type ClientCredentialsRequest struct {
	GrantType    string `form:"grant_type" validate:"required,eq=client_credentials"`
	ClientID     string `form:"client_id" validate:"required"`
	ClientSecret string `form:"client_secret" validate:"required"`
}

// PasswordRequest is the form body for POST /auth/token-password.
type PasswordRequest struct {
	Username string `form:"username" validate:"required,min=3,max=50"`
	Password string `form:"password" validate:"required,min=6"`
}

// IssueToken handles POST /auth/token (client-credentials grant).
func (h *AuthHandlers) IssueToken(c *gin.Context) {
	var req ClientCredentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Malformed token request"})
		return
	}
	req.ClientID = middleware.SanitizeString(req.ClientID)
	if err := middleware.ValidateStruct(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Malformed token request"})
		return
	}

	client, ok := h.clients.Verify(req.ClientID, req.ClientSecret)
	if !ok {
		h.logger.Warn("client credentials rejected",
			zap.String("client_id", req.ClientID),
			zap.String("ip", c.ClientIP()),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid client credentials"})
		return
	}

	h.respondWithToken(c, client.ClientID, client.Scopes)
}

// IssuePasswordToken handles POST /auth/token-password (password grant).
func (h *AuthHandlers) IssuePasswordToken(c *gin.Context) {
	var req PasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Malformed token request"})
		return
	}
	req.Username = middleware.SanitizeString(req.Username)
	if err := middleware.ValidateStruct(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Malformed token request"})
		return
	}

	user, ok := h.users.Verify(req.Username, req.Password)
	if !ok {
		h.logger.Warn("password login rejected",
			zap.String("username", req.Username),
			zap.String("ip", c.ClientIP()),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid credentials"})
		return
	}

	h.respondWithToken(c, user.Username, user.Scopes)
}

// ValidateToken handles GET /auth/token-validate.
func (h *AuthHandlers) ValidateToken(c *gin.Context) {
	claims, ok := c.MustGet("claims").(*middleware.Claims)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Claims missing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "This is a valid token for " + claims.Subject})
}

func (h *AuthHandlers) respondWithToken(c *gin.Context, subject string, scopes []string) {
	token, err := h.tokens.Generate(subject, scopes)
	if err != nil {
		h.logger.Error("token generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Token generation failed"})
		return
	}
	h.logger.Info("token issued", zap.String("subject", subject))
	c.JSON(http.StatusOK, models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(middleware.TokenExpiry.Seconds()),
	})
}
