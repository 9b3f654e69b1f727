package domain

import "time"

// Cause identifies what produced a RequestEvent.
type Cause string

const (
	CauseCreate   Cause = "create"
	CauseAccept   Cause = "accept"
	CauseReject   Cause = "reject"
	CauseWithdraw Cause = "withdraw"
	// CauseCascade marks a withdrawal triggered by accepting a sibling request.
	CauseCascade Cause = "cascade"
)

// RequestEvent is one entry of a request's audit trail.
type RequestEvent struct {
	RequestID string        `json:"request_id" bson:"request_id"`
	UserID    string        `json:"user_id" bson:"user_id"`
	GroupID   string        `json:"group_id" bson:"group_id"`
	CourseID  string        `json:"course_id" bson:"course_id"`
	From      RequestStatus `json:"from,omitempty" bson:"from,omitempty"`
	To        RequestStatus `json:"to" bson:"to"`
	Cause     Cause         `json:"cause" bson:"cause"`
	// TriggeredBy is the accepted request that caused a cascade withdrawal.
	TriggeredBy string    `json:"triggered_by,omitempty" bson:"triggered_by,omitempty"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// NewRequestEvent records r moving from one status to its current one.
func NewRequestEvent(r *Request, from RequestStatus, cause Cause, at time.Time) RequestEvent {
	return RequestEvent{
		RequestID: r.ID,
		UserID:    r.UserID,
		GroupID:   r.GroupID,
		CourseID:  r.CourseID,
		From:      from,
		To:        r.Status,
		Cause:     cause,
		Timestamp: at,
	}
}
