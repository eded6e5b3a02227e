package middleware

// Identity is optional: the lease service does not authenticate callers.
// A valid bearer token only lets confirm record who occupies the seat and
// gives the rate limiter a per-user key.

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-seat-lease/internal/utils"
)

// UserIDKey is the echo context key holding the caller's user id.
const UserIDKey = "user_id"

// Identity returns a middleware that stores the subject of a valid HS256
// bearer token under UserIDKey.  Requests without a token, or with an
// invalid one, continue anonymously.  An empty secret disables parsing.
func Identity(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return next(c)
			}
			sub, err := utils.ParseSubject(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				c.Logger().Debugf("identity: ignoring token: %v", err)
				return next(c)
			}
			c.Set(UserIDKey, sub)
			return next(c)
		}
	}
}

// UserID returns the identified caller or "" when anonymous.
func UserID(c echo.Context) string {
	if s, ok := c.Get(UserIDKey).(string); ok {
		return s
	}
	return ""
}
