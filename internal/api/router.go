package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/studyhub/group-requests/docs"
	"github.com/studyhub/group-requests/internal/api/handler"
	"github.com/studyhub/group-requests/internal/api/middleware"
	"github.com/studyhub/group-requests/internal/core/domain"
	"github.com/studyhub/group-requests/internal/core/ports"
	infrahttp "github.com/studyhub/group-requests/internal/infrastructure/http"
	"github.com/studyhub/group-requests/internal/infrastructure/http/handlers"
)

// Deps are the services and probes the router mounts.
type Deps struct {
	Requests  ports.RequestService
	Access    ports.AccessResolver
	Events    ports.EventService
	Auth      ports.AuthService
	JWTSecret string
	Log       zerolog.Logger
	// Ready maps a dependency name to its readiness probe.
	Ready map[string]handlers.Pinger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(d.Auth)
	requestHandler := handler.NewRequestHandler(d.Requests)
	eventHandler := handler.NewEventHandler(d.Events)
	authMiddleware := middleware.Auth(d.JWTSecret)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)

	// --- Join requests (bearer token required) ---
	v1 := e.Group("/v1", authMiddleware)
	v1.POST("/groups/:group_id/requests", requestHandler.Create)
	v1.GET("/groups/:group_id/requests", requestHandler.ListForGroup)
	v1.GET("/me/requests/sent", requestHandler.ListSent)
	v1.GET("/me/requests/received", requestHandler.ListReceived)
	groupMember := middleware.RBAC(d.Access, domain.RoleGroupMember)
	requester := middleware.RBAC(d.Access, domain.RoleRequester)
	v1.POST("/requests/:request_id/accept", requestHandler.Accept, groupMember)
	v1.POST("/requests/:request_id/reject", requestHandler.Reject, groupMember)
	v1.POST("/requests/:request_id/withdraw", requestHandler.Withdraw, requester)
	v1.GET("/requests/:request_id/events", eventHandler.History)

	// --- Ops (no auth required) ---
	infrahttp.RegisterOps(e, d.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
