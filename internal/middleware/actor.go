package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ActorKey is the echo context key holding the authenticated user's uid.
const ActorKey = "actorUID"

// ActorID returns the authenticated uid, or "" on unauthenticated routes.
func ActorID(c echo.Context) string {
	uid, _ := c.Get(ActorKey).(string)
	return uid
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header must be in Bearer format")
	}
	return parts[1], nil
}
