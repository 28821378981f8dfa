// Package auth issues and validates JWT tokens for the administrative
// endpoints (snapshot recalculation, goal management).
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

// Service signs and validates session tokens with an HMAC secret.
type Service struct {
	secret []byte
}

// NewService creates an auth service. An empty secret disables token
// issuance and validation.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// Enabled reports whether a signing secret is configured.
func (s *Service) Enabled() bool {
	return len(s.secret) > 0
}

// GenerateToken generates a JWT token for a subject.
func (s *Service) GenerateToken(subject string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("auth is not configured")
	}

	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns its subject.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		subject, ok := claims["sub"].(string)
		if !ok {
			return "", fmt.Errorf("sub not found in token")
		}
		return subject, nil
	}

	return "", fmt.Errorf("invalid token")
}

// Middleware returns a gin handler enforcing a Bearer token on protected
// routes. When no secret is configured the routes stay open, which keeps
// local development friction-free.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		subject, err := s.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("subject", subject)
		c.Next()
	}
}
