package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/studyhub/group-requests/internal/core/domain"
	"github.com/studyhub/group-requests/internal/core/ports"
)

// RBAC admits the caller only when it holds one of allowedRoles on the
// request named by the :request_id path parameter. Must run after Auth.
// Unknown requests pass through so the handler reports them as not found.
func RBAC(access ports.AccessResolver, allowedRoles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, _ := c.Get(ContextUserID).(string)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
			}

			roles, err := access.RolesFor(c.Request().Context(), c.Param("request_id"), userID)
			if errors.Is(err, domain.ErrRequestNotFound) {
				return next(c)
			}
			if err != nil {
				return err
			}

			for _, r := range roles {
				if _, ok := allowed[r]; ok {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, map[string]string{"error": domain.ErrForbidden.Error()})
		}
	}
}
