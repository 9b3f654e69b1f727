package http

import (
	"github.com/labstack/echo/v4"

	"github.com/studyhub/group-requests/internal/infrastructure/http/handlers"
)

// RegisterOps mounts the probes on e. They sit outside /v1 and need no auth.
func RegisterOps(e *echo.Echo, deps map[string]handlers.Pinger) {
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
}
