package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RequestStatus represents the lifecycle state of a join request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusAccepted  RequestStatus = "ACCEPTED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusWithdrawn RequestStatus = "WITHDRAWN"
)

// Action is an operation that moves a request out of PENDING.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionWithdraw Action = "withdraw"
)

// transitions is the full state machine: a missing (status, action) pair is illegal.
var transitions = map[RequestStatus]map[Action]RequestStatus{
	StatusPending: {
		ActionAccept:   StatusAccepted,
		ActionReject:   StatusRejected,
		ActionWithdraw: StatusWithdrawn,
	},
}

// resultOf maps each action to the status it produces.
var resultOf = map[Action]RequestStatus{
	ActionAccept:   StatusAccepted,
	ActionReject:   StatusRejected,
	ActionWithdraw: StatusWithdrawn,
}

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRequestNotFound   = errors.New("not found")
	ErrGroupNotFound     = errors.New("group not found")
	ErrDuplicateRequest  = errors.New("a request has already been sent to this group")
	ErrInvalidStatus     = errors.New("invalid request status")
)

// TransitionError reports an action attempted on a request that already
// reached a terminal status.
type TransitionError struct {
	Action Action
	Status RequestStatus
}

func (e *TransitionError) Error() string {
	current := strings.ToLower(string(e.Status))
	if resultOf[e.Action] == e.Status {
		return "already " + current
	}
	return fmt.Sprintf("already %s, cannot %s", current, e.Action)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Valid reports whether s is one of the four known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// Terminal reports whether no action can move a request out of s.
func (s RequestStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Apply returns the status reached by performing action a from s.
func (s RequestStatus) Apply(a Action) (RequestStatus, error) {
	next, ok := transitions[s][a]
	if !ok {
		return s, &TransitionError{Action: a, Status: s}
	}
	return next, nil
}

// ParseStatus accepts a status in any letter case. The empty string parses to
// the empty status, meaning "no filter".
func ParseStatus(raw string) (RequestStatus, error) {
	if raw == "" {
		return "", nil
	}
	s := RequestStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// SuccessMessage is the human-readable outcome of a successful action.
func SuccessMessage(a Action) string {
	return strings.ToLower(string(resultOf[a]))
}

// Request is one user's ask to join one group.
type Request struct {
	ID        string        `json:"request_id" bson:"_id"`
	UserID    string        `json:"user_id" bson:"user_id"`
	GroupID   string        `json:"group_id" bson:"group_id"`
	CourseID  string        `json:"course_id" bson:"course_id"`
	Status    RequestStatus `json:"status" bson:"status"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" bson:"updated_at"`
}

// Active reports whether r still blocks a new request for the same group.
func (r *Request) Active() bool {
	return r.Status == StatusPending || r.Status == StatusAccepted
}

// Clone returns a copy of r that can be mutated independently.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
