package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tarot-backend/locale"
	"tarot-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InstallationIDKey is the gin context key holding the authenticated installation
const InstallationIDKey = "installation_id"

// Authenticator verifies installation credentials
type Authenticator interface {
	Authenticate(ctx context.Context, installationID uuid.UUID, token string) error
}

// InstallationAuth requires X-Installation-ID plus "Authorization: Bearer <token>".
// Websocket clients cannot set headers, so installation_id and token query
// parameters are accepted too.
func InstallationAuth(auth Authenticator, bundle *locale.Bundle) gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := locale.FromContext(c, bundle)

		rawID, token, code := credentials(c)
		if code != "" {
			abortUnauthorized(c, code, loc.T(locale.Unauthorized))
			return
		}

		id, err := uuid.Parse(rawID)
		if err != nil {
			abortUnauthorized(c, "AUTH_INVALID_INSTALLATION", loc.T(locale.Unauthorized))
			return
		}

		if err := auth.Authenticate(c.Request.Context(), id, token); err != nil {
			if !errors.Is(err, service.ErrInvalidCredentials) {
				slog.Error("Installation auth failed", slog.String("installation_id", id.String()), slog.Any("error", err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "INTERNAL_ERROR",
						"message": loc.T(locale.InternalError),
					},
				})
				return
			}
			abortUnauthorized(c, "AUTH_INVALID_TOKEN", loc.T(locale.Unauthorized))
			return
		}

		c.Set(InstallationIDKey, id)
		c.Next()
	}
}

func credentials(c *gin.Context) (id, token, code string) {
	id = c.GetHeader("X-Installation-ID")
	authHeader := c.GetHeader("Authorization")

	if id == "" && authHeader == "" {
		// Websocket handshake
		id, token = c.Query("installation_id"), c.Query("token")
		if id == "" || token == "" {
			return "", "", "AUTH_REQUIRED"
		}
		return id, token, ""
	}

	if id == "" || authHeader == "" {
		return "", "", "AUTH_REQUIRED"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", "", "AUTH_INVALID_FORMAT"
	}
	return id, parts[1], ""
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// InstallationID returns the installation set by InstallationAuth
func InstallationID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(InstallationIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
