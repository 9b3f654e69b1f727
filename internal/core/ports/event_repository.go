package ports

import (
	"context"

	"github.com/studyhub/group-requests/internal/core/domain"
)

// EventRepository stores the request audit trail.
type EventRepository interface {
	InsertEvent(ctx context.Context, event *domain.RequestEvent) error
	// ListEvents returns the events of one request oldest first.
	ListEvents(ctx context.Context, requestID string) ([]*domain.RequestEvent, error)
}
