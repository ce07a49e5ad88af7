package middleware

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	envJWTSecret = "WARDWATCH_JWT_SECRET"
	// TokenExpiry bounds issued access tokens.
	TokenExpiry = 30 * time.Minute

	// Scopes attached to issued tokens.
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// Claims are the JWT claims carried by wardwatch access tokens: the
// subject (client id or username) plus its granted scopes.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenService issues and validates HS256 access tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService reads the signing secret from the environment. An unset
// secret falls back to a development-only value; do not deploy that way.
func NewTokenService() *TokenService {
	secret := os.Getenv(envJWTSecret)
	if secret == "" {
		secret = "wardwatch-dev-secret-change-in-production"
	}
	return &TokenService{secret: []byte(secret)}
}

// HashSecret bcrypt-hashes a password or client secret for storage.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckSecret compares a candidate secret against its stored hash.
func CheckSecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// Generate signs a token for subject with the given scopes.
func (s *TokenService) Generate(subject string, scopes []string) (string, error) {
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a token string.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// RequireValid guards an HTTP route with any valid token, scope aside.
func (s *TokenService) RequireValid() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}
		claims, err := s.Validate(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token"})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

// RequireScope guards an HTTP route: bearer header, valid token, scope.
func (s *TokenService) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}
		claims, err := s.Validate(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token"})
			return
		}
		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Insufficient permissions"})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}

// ValidateQueryToken checks the token query parameter used by the
// websocket subscribe endpoints, where headers are awkward for browser
// clients.
func (s *TokenService) ValidateQueryToken(c *gin.Context, scope string) (*Claims, error) {
	tokenString := c.Query("token")
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.HasScope(scope) {
		return nil, fmt.Errorf("insufficient permissions")
	}
	return claims, nil
}
