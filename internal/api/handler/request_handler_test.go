package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/studyhub/group-requests/internal/api/middleware"
	"github.com/studyhub/group-requests/internal/core/domain"
)

type stubRequestService struct {
	createFn     func(ctx context.Context, groupID, userID string) (*domain.Request, error)
	listFn       func(kind, id string, status domain.RequestStatus) ([]*domain.Request, error)
	transitionFn func(action domain.Action, requestID string) error
}

func (s *stubRequestService) Create(ctx context.Context, groupID, userID string) (*domain.Request, error) {
	return s.createFn(ctx, groupID, userID)
}

func (s *stubRequestService) ListForGroup(_ context.Context, groupID string, status domain.RequestStatus) ([]*domain.Request, error) {
	return s.listFn("group", groupID, status)
}

func (s *stubRequestService) ListSentByUser(_ context.Context, userID string, status domain.RequestStatus) ([]*domain.Request, error) {
	return s.listFn("sent", userID, status)
}

func (s *stubRequestService) ListReceivedByUser(_ context.Context, userID string, status domain.RequestStatus) ([]*domain.Request, error) {
	return s.listFn("received", userID, status)
}

func (s *stubRequestService) Accept(_ context.Context, requestID string) error {
	return s.transitionFn(domain.ActionAccept, requestID)
}

func (s *stubRequestService) Reject(_ context.Context, requestID string) error {
	return s.transitionFn(domain.ActionReject, requestID)
}

func (s *stubRequestService) Withdraw(_ context.Context, requestID string) error {
	return s.transitionFn(domain.ActionWithdraw, requestID)
}

func newTestContext(method, target, userID string, params map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set(middleware.ContextUserID, userID)
	}
	if len(params) > 0 {
		names := make([]string, 0, len(params))
		values := make([]string, 0, len(params))
		for name, value := range params {
			names = append(names, name)
			values = append(values, value)
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	return c, rec
}

func sampleRequest(id string) *domain.Request {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.Request{
		ID: id, UserID: "u-1", GroupID: "g-1", CourseID: "c-1",
		Status: domain.StatusPending, CreatedAt: at, UpdatedAt: at,
	}
}

func TestRequestHandler_Create_UsesTokenUser(t *testing.T) {
	stub := &stubRequestService{
		createFn: func(_ context.Context, groupID, userID string) (*domain.Request, error) {
			if groupID != "g-1" || userID != "u-1" {
				t.Fatalf("unexpected args: %s %s", groupID, userID)
			}
			return sampleRequest("r-1"), nil
		},
	}
	c, rec := newTestContext(http.MethodPost, "/v1/groups/g-1/requests", "u-1", map[string]string{"group_id": "g-1"})

	if err := NewRequestHandler(stub).Create(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp requestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.RequestID != "r-1" || resp.Status != "PENDING" || resp.CourseID != "c-1" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.Links.Events != "/v1/requests/r-1/events" {
		t.Fatalf("unexpected links: %+v", resp.Links)
	}
}

func TestRequestHandler_Create_PropagatesDomainErrors(t *testing.T) {
	stub := &stubRequestService{
		createFn: func(context.Context, string, string) (*domain.Request, error) {
			return nil, domain.ErrDuplicateRequest
		},
	}
	c, _ := newTestContext(http.MethodPost, "/v1/groups/g-1/requests", "u-1", map[string]string{"group_id": "g-1"})

	err := NewRequestHandler(stub).Create(c)
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
}

func TestRequestHandler_Create_RequiresIdentity(t *testing.T) {
	stub := &stubRequestService{
		createFn: func(context.Context, string, string) (*domain.Request, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	c, _ := newTestContext(http.MethodPost, "/v1/groups/g-1/requests", "", map[string]string{"group_id": "g-1"})

	err := NewRequestHandler(stub).Create(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequestHandler_ListReceived_StatusFilter(t *testing.T) {
	var gotStatus domain.RequestStatus
	stub := &stubRequestService{
		listFn: func(kind, id string, status domain.RequestStatus) ([]*domain.Request, error) {
			if kind != "received" || id != "u-2" {
				t.Fatalf("unexpected listing: %s %s", kind, id)
			}
			gotStatus = status
			return []*domain.Request{sampleRequest("r-1"), sampleRequest("r-2")}, nil
		},
	}
	c, rec := newTestContext(http.MethodGet, "/v1/me/requests/received?status=pending", "u-2", nil)

	if err := NewRequestHandler(stub).ListReceived(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if gotStatus != domain.StatusPending {
		t.Fatalf("expected PENDING filter, got %q", gotStatus)
	}

	var resp listRequestsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Count != 2 || resp.Requests[0].RequestID != "r-1" || resp.Requests[1].RequestID != "r-2" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestRequestHandler_ListForGroup_EmptyIsArray(t *testing.T) {
	stub := &stubRequestService{
		listFn: func(string, string, domain.RequestStatus) ([]*domain.Request, error) {
			return nil, nil
		},
	}
	c, rec := newTestContext(http.MethodGet, "/v1/groups/g-1/requests", "u-1", map[string]string{"group_id": "g-1"})

	if err := NewRequestHandler(stub).ListForGroup(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if rs, ok := resp["requests"].([]any); !ok || len(rs) != 0 {
		t.Fatalf("expected empty array, got %v", resp["requests"])
	}
}

func TestRequestHandler_ListSent_RejectsUnknownStatus(t *testing.T) {
	stub := &stubRequestService{
		listFn: func(string, string, domain.RequestStatus) ([]*domain.Request, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	c, _ := newTestContext(http.MethodGet, "/v1/me/requests/sent?status=archived", "u-1", nil)

	err := NewRequestHandler(stub).ListSent(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestRequestHandler_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		call    func(h *RequestHandler, c echo.Context) error
		err     error
		code    int
		ok      bool
		message string
	}{
		{"accept ok", (*RequestHandler).Accept, nil, http.StatusOK, true, "accepted"},
		{"reject ok", (*RequestHandler).Reject, nil, http.StatusOK, true, "rejected"},
		{"withdraw ok", (*RequestHandler).Withdraw, nil, http.StatusOK, true, "withdrawn"},
		{"not found", (*RequestHandler).Accept, domain.ErrRequestNotFound, http.StatusNotFound, false, "not found"},
		{
			"terminal",
			(*RequestHandler).Reject,
			&domain.TransitionError{Action: domain.ActionReject, Status: domain.StatusRejected},
			http.StatusConflict, false, "already rejected",
		},
		{
			"cross terminal",
			(*RequestHandler).Accept,
			&domain.TransitionError{Action: domain.ActionAccept, Status: domain.StatusWithdrawn},
			http.StatusConflict, false, "already withdrawn, cannot accept",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubRequestService{
				transitionFn: func(_ domain.Action, requestID string) error {
					if requestID != "r-9" {
						t.Fatalf("unexpected request id %q", requestID)
					}
					return tt.err
				},
			}
			c, rec := newTestContext(http.MethodPost, "/", "u-1", map[string]string{"request_id": "r-9"})

			if err := tt.call(NewRequestHandler(stub), c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			var resp transitionResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.OK != tt.ok || resp.Message != tt.message {
				t.Fatalf("got %+v, want ok=%v message=%q", resp, tt.ok, tt.message)
			}
		})
	}
}

func TestRequestHandler_Transition_UnexpectedErrorPropagates(t *testing.T) {
	boom := errors.New("disk full")
	stub := &stubRequestService{
		transitionFn: func(domain.Action, string) error { return boom },
	}
	c, _ := newTestContext(http.MethodPost, "/", "u-1", map[string]string{"request_id": "r-9"})

	if err := NewRequestHandler(stub).Withdraw(c); !errors.Is(err, boom) {
		t.Fatalf("expected error to propagate, got %v", err)
	}
}
