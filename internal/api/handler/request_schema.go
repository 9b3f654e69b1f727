package handler

import "time"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request / Response types ---

type groupPath struct {
	GroupID string `param:"group_id" validate:"required"`
}

type requestPath struct {
	RequestID string `param:"request_id" validate:"required"`
}

// statusQuery is the optional listing filter. Status is upper-cased before
// validation so ?status=pending works.
type statusQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=PENDING ACCEPTED REJECTED WITHDRAWN"`
}

type requestLinks struct {
	Self   string `json:"self"`
	Events string `json:"events"`
}

type requestResponse struct {
	RequestID string       `json:"request_id"`
	UserID    string       `json:"user_id"`
	GroupID   string       `json:"group_id"`
	CourseID  string       `json:"course_id"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Links     requestLinks `json:"_links"`
}

type listRequestsResponse struct {
	Requests []requestResponse `json:"requests"`
	Count    int               `json:"count"`
}

// transitionResponse reports the outcome of accept, reject and withdraw.
// Message is "accepted", "rejected" or "withdrawn" on success and the
// blocking reason otherwise.
type transitionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type eventResponse struct {
	From        string    `json:"from,omitempty"`
	To          string    `json:"to"`
	Cause       string    `json:"cause"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type requestHistoryResponse struct {
	RequestID string          `json:"request_id"`
	Events    []eventResponse `json:"events"`
}
