package auth

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	apierrors "github.com/eternisai/devotional-push/internal/errors"
	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/gin-gonic/gin"
)

// BearerSecretMiddleware guards operator endpoints with a shared secret sent
// as "Authorization: Bearer <secret>".
type BearerSecretMiddleware struct {
	secret []byte
	name   string
	logger *logger.Logger
}

// NewBearerSecretMiddleware creates a middleware for one secret. name identifies
// the secret in logs (for example "operator" or "cron"); the secret itself is never logged.
func NewBearerSecretMiddleware(secret, name string, logger *logger.Logger) *BearerSecretMiddleware {
	return &BearerSecretMiddleware{
		secret: []byte(secret),
		name:   name,
		logger: logger.WithComponent("auth"),
	}
}

// Configured reports whether a secret was provided.
func (m *BearerSecretMiddleware) Configured() bool {
	return len(m.secret) > 0
}

// RequireSecret rejects requests whose bearer token does not match. With no
// secret configured every request is rejected.
func (m *BearerSecretMiddleware) RequireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := m.logger.WithContext(c.Request.Context())

		if !m.Configured() {
			log.Warn("rejecting request, secret not configured", slog.String("secret", m.name))
			apierrors.Unauthorized(c, "endpoint disabled", nil)
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apierrors.Unauthorized(c, "Authorization header is required", nil)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			apierrors.Unauthorized(c, "Authorization header must be a Bearer token", nil)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), m.secret) != 1 {
			log.Warn("invalid bearer secret",
				slog.String("secret", m.name),
				slog.String("client_ip", c.ClientIP()))
			apierrors.Unauthorized(c, "invalid token", nil)
			return
		}

		c.Next()
	}
}
