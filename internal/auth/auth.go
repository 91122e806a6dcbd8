package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"convoflow/internal/models"

	"github.com/labstack/echo/v4"
)

const userIDKey = "user_id"

// Manager maps API bearer tokens to platform user ids
type Manager struct {
	tokens map[string]string
	mu     sync.RWMutex
}

// NewManager creates a manager for token -> user id pairs
func NewManager(tokens map[string]string) *Manager {
	m := &Manager{tokens: make(map[string]string, len(tokens))}
	for token, user := range tokens {
		m.tokens[token] = user
	}
	return m
}

// Authenticate returns the user a token belongs to
func (am *Manager) Authenticate(token string) (string, bool) {
	if token == "" {
		return "", false
	}

	am.mu.RLock()
	defer am.mu.RUnlock()

	for known, user := range am.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return user, true
		}
	}
	return "", false
}

// Revoke removes a token, e.g. after it leaked
func (am *Manager) Revoke(token string) {
	am.mu.Lock()
	defer am.mu.Unlock()
	delete(am.tokens, token)
}

// Middleware authenticates API routes and stores the caller's user id in the context
func Middleware(authManager *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Get token from Authorization header or query parameter
			token := c.Request().Header.Get("Authorization")
			if token != "" {
				token = strings.TrimPrefix(token, "Bearer ")
			} else {
				token = c.QueryParam("token")
			}

			userID, ok := authManager.Authenticate(token)
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Success: false,
					Error:   "Unauthorized",
				})
			}

			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// UserID is the authenticated caller, empty outside Middleware
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
