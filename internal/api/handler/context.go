package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/studyhub/group-requests/internal/api/middleware"
)

// ctxUserID returns the caller's user ID injected by the Auth middleware.
// An empty value means the route was mounted without Auth, which is a wiring
// error surfaced as 401 rather than a request on behalf of nobody.
func ctxUserID(c echo.Context) (string, error) {
	userID, _ := c.Get(middleware.ContextUserID).(string)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return userID, nil
}
