package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/studyhub/group-requests/internal/api/metrics"
	"github.com/studyhub/group-requests/internal/core/domain"
	"github.com/studyhub/group-requests/internal/core/ports"
)

// RequestHandler handles HTTP requests for join request operations.
type RequestHandler struct {
	service ports.RequestService
	binder  echo.DefaultBinder
}

func NewRequestHandler(service ports.RequestService) *RequestHandler {
	return &RequestHandler{service: service}
}

// Create handles POST /v1/groups/:group_id/requests. The requester is the
// authenticated user.
//
// @Summary      Request to join a group
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        group_id  path      string  true  "Group ID"
// @Success      201       {object}  requestResponse
// @Failure      401       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Failure      409       {object}  errorResponse
// @Failure      500       {object}  errorResponse
// @Router       /v1/groups/{group_id}/requests [post]
func (h *RequestHandler) Create(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	var path groupPath
	if err := h.bindPath(c, &path); err != nil {
		return err
	}

	req, err := h.service.Create(c.Request().Context(), path.GroupID, userID)
	observe("create", err)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toRequestResponse(req))
}

// ListForGroup handles GET /v1/groups/:group_id/requests.
//
// @Summary      List requests sent to a group
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        group_id  path      string  true   "Group ID"
// @Param        status    query     string  false  "Filter by status"  Enums(PENDING, ACCEPTED, REJECTED, WITHDRAWN)
// @Success      200       {object}  listRequestsResponse
// @Failure      401       {object}  errorResponse
// @Failure      422       {object}  errorResponse
// @Router       /v1/groups/{group_id}/requests [get]
func (h *RequestHandler) ListForGroup(c echo.Context) error {
	var path groupPath
	if err := h.bindPath(c, &path); err != nil {
		return err
	}
	status, err := h.bindStatus(c)
	if err != nil {
		return err
	}

	rs, err := h.service.ListForGroup(c.Request().Context(), path.GroupID, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toListResponse(rs))
}

// ListSent handles GET /v1/me/requests/sent.
//
// @Summary      List requests sent by the caller
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Filter by status"  Enums(PENDING, ACCEPTED, REJECTED, WITHDRAWN)
// @Success      200     {object}  listRequestsResponse
// @Failure      401     {object}  errorResponse
// @Failure      422     {object}  errorResponse
// @Router       /v1/me/requests/sent [get]
func (h *RequestHandler) ListSent(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	status, err := h.bindStatus(c)
	if err != nil {
		return err
	}

	rs, err := h.service.ListSentByUser(c.Request().Context(), userID, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toListResponse(rs))
}

// ListReceived handles GET /v1/me/requests/received: requests sent to any
// group the caller belongs to.
//
// @Summary      List requests received by the caller's groups
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Filter by status"  Enums(PENDING, ACCEPTED, REJECTED, WITHDRAWN)
// @Success      200     {object}  listRequestsResponse
// @Failure      401     {object}  errorResponse
// @Failure      422     {object}  errorResponse
// @Router       /v1/me/requests/received [get]
func (h *RequestHandler) ListReceived(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	status, err := h.bindStatus(c)
	if err != nil {
		return err
	}

	rs, err := h.service.ListReceivedByUser(c.Request().Context(), userID, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toListResponse(rs))
}

// Accept handles POST /v1/requests/:request_id/accept. Only members of the
// target group may call it.
//
// @Summary      Accept a pending request
// @Description  Adds the requester to the group and withdraws their other pending requests in the same course.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        request_id  path      string  true  "Request ID"
// @Success      200         {object}  transitionResponse
// @Failure      403         {object}  errorResponse
// @Failure      404         {object}  transitionResponse
// @Failure      409         {object}  transitionResponse
// @Router       /v1/requests/{request_id}/accept [post]
func (h *RequestHandler) Accept(c echo.Context) error {
	return h.transition(c, domain.ActionAccept, h.service.Accept)
}

// Reject handles POST /v1/requests/:request_id/reject. Only members of the
// target group may call it.
//
// @Summary      Reject a pending request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        request_id  path      string  true  "Request ID"
// @Success      200         {object}  transitionResponse
// @Failure      403         {object}  errorResponse
// @Failure      404         {object}  transitionResponse
// @Failure      409         {object}  transitionResponse
// @Router       /v1/requests/{request_id}/reject [post]
func (h *RequestHandler) Reject(c echo.Context) error {
	return h.transition(c, domain.ActionReject, h.service.Reject)
}

// Withdraw handles POST /v1/requests/:request_id/withdraw. Only the
// requester may call it.
//
// @Summary      Withdraw a pending request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        request_id  path      string  true  "Request ID"
// @Success      200         {object}  transitionResponse
// @Failure      403         {object}  errorResponse
// @Failure      404         {object}  transitionResponse
// @Failure      409         {object}  transitionResponse
// @Router       /v1/requests/{request_id}/withdraw [post]
func (h *RequestHandler) Withdraw(c echo.Context) error {
	return h.transition(c, domain.ActionWithdraw, h.service.Withdraw)
}

func (h *RequestHandler) transition(c echo.Context, action domain.Action, fn func(ctx context.Context, requestID string) error) error {
	var path requestPath
	if err := h.bindPath(c, &path); err != nil {
		return err
	}

	err := fn(c.Request().Context(), path.RequestID)
	observe(string(action), err)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, transitionResponse{OK: true, Message: domain.SuccessMessage(action)})
	case errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, transitionResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, transitionResponse{Message: err.Error()})
	}
	return err
}

func (h *RequestHandler) bindPath(c echo.Context, dst any) error {
	if err := h.binder.BindPathParams(c, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path")
	}
	if err := c.Validate(dst); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

func (h *RequestHandler) bindStatus(c echo.Context) (domain.RequestStatus, error) {
	var q statusQuery
	if err := h.binder.BindQueryParams(c, &q); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	q.Status = strings.ToUpper(strings.TrimSpace(q.Status))
	if err := c.Validate(&q); err != nil {
		return "", echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return domain.RequestStatus(q.Status), nil
}

// observe counts a lifecycle operation by outcome.
func observe(operation string, err error) {
	metrics.OperationsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return "not_found"
	default:
		return "error"
	}
}
