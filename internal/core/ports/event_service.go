package ports

import (
	"context"

	"github.com/studyhub/group-requests/internal/core/domain"
)

// EventPublisher hands audit events off for asynchronous recording.
type EventPublisher interface {
	Publish(events ...domain.RequestEvent)
}

// EventService records and reads back request audit events.
type EventService interface {
	Record(ctx context.Context, event domain.RequestEvent) error
	History(ctx context.Context, requestID string) ([]*domain.RequestEvent, error)
}
