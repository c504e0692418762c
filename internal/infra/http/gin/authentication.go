package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"livelocal/internal/platform/local"
	"livelocal/internal/remote"
)

const userContextKey = "livelocal.user"

// AuthMiddleware resolves a bearer token into the platform user. Requests
// without a token continue anonymously; handlers that need a user call
// requireUser.
type AuthMiddleware struct {
	Accounts *local.Accounts
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Accounts == nil {
		c.Next()
		return
	}
	user, err := m.Accounts.Resolve(token)
	if err != nil {
		if !errors.Is(err, local.ErrSessionNotFound) && m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	c.Set(userContextKey, *user)
	c.Next()
}

func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func currentUser(c *gin.Context) (remote.User, bool) {
	value, ok := c.Get(userContextKey)
	if !ok {
		return remote.User{}, false
	}
	user, ok := value.(remote.User)
	return user, ok
}

func requireUser(c *gin.Context) (remote.User, bool) {
	user, ok := currentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
	return user, ok
}
