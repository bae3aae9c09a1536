package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	"taskboard/domain"
)

const (
	// HeaderUsername carries the caller's identity token.
	HeaderUsername = "X-Username"
	userContextKey = "user"
)

// RequireUser resolves the identity header to a user, provisioning it on
// first sight. When allowQuery is set the token may also arrive as the
// username query parameter, for transports that cannot set headers.
func RequireUser(identity Identity, allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := usernameFromRequest(c, allowQuery)
			user, err := identity.EnsureUser(c.Request().Context(), token)
			if err != nil {
				return respondError(c, err)
			}
			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

func usernameFromRequest(c echo.Context, allowQuery bool) string {
	token := strings.TrimSpace(c.Request().Header.Get(HeaderUsername))
	if token == "" && allowQuery {
		token = strings.TrimSpace(c.QueryParam("username"))
	}
	return token
}

func currentUser(c echo.Context) *domain.User {
	u, _ := c.Get(userContextKey).(*domain.User)
	return u
}
