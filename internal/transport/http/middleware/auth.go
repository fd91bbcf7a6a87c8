package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"docchat/internal/pkg/jwtutil"
	"docchat/internal/transport/http/response"
)

const (
	HeaderAPIKey     = "X-API-Key"
	ContextClientKey = "client"
)

// AuthConfig holds the shared secret. APIKeyHash is a bcrypt hash of the key
// and is used when APIKey is empty. JWTSecret enables bearer tokens.
type AuthConfig struct {
	APIKey     string
	APIKeyHash string
	JWTSecret  string
}

func (a AuthConfig) Enabled() bool {
	return a.APIKey != "" || a.APIKeyHash != "" || a.JWTSecret != ""
}

// Auth accepts either the shared key in X-API-Key or a bearer token signed
// with the JWT secret. With nothing configured every request passes.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled() {
			c.Next()
			return
		}

		if key := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); key != "" {
			if !cfg.matchKey(key) {
				unauthorized(c, "invalid api key")
				return
			}
			c.Set(ContextClientKey, "api-key")
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			unauthorized(c, "missing credentials")
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			unauthorized(c, "invalid authorization scheme")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(cfg.JWTSecret, token)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ContextClientKey, claims.Client)
		c.Next()
	}
}

func (a AuthConfig) matchKey(key string) bool {
	switch {
	case a.APIKey != "":
		return subtle.ConstantTimeCompare([]byte(key), []byte(a.APIKey)) == 1
	case a.APIKeyHash != "":
		return bcrypt.CompareHashAndPassword([]byte(a.APIKeyHash), []byte(key)) == nil
	}
	return false
}

func unauthorized(c *gin.Context, message string) {
	response.Error(c, 401, response.CodeUnauthorized, message)
	c.Abort()
}
