package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/studyhub/group-requests/internal/core/ports"
)

// EventHandler serves the audit trail of a request.
type EventHandler struct {
	service ports.EventService
	binder  echo.DefaultBinder
}

// NewEventHandler creates an EventHandler backed by the given service.
func NewEventHandler(service ports.EventService) *EventHandler {
	return &EventHandler{service: service}
}

// History handles GET /v1/requests/:request_id/events. Events are recorded
// asynchronously, so the latest transition may appear shortly after it
// committed.
//
// @Summary      List a request's status history
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        request_id  path      string  true  "Request ID"
// @Success      200         {object}  requestHistoryResponse
// @Failure      401         {object}  errorResponse
// @Failure      404         {object}  errorResponse
// @Router       /v1/requests/{request_id}/events [get]
func (h *EventHandler) History(c echo.Context) error {
	var path requestPath
	if err := h.binder.BindPathParams(c, &path); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path")
	}
	if err := c.Validate(&path); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	events, err := h.service.History(c.Request().Context(), path.RequestID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toHistoryResponse(path.RequestID, events))
}
