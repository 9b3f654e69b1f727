package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/studyhub/group-requests/internal/core/domain"
	"github.com/studyhub/group-requests/internal/core/ports"
)

type eventService struct {
	dir       ports.Directory
	eventRepo ports.EventRepository
	log       zerolog.Logger
}

// NewEventService returns an EventService implementation.
func NewEventService(dir ports.Directory, eventRepo ports.EventRepository, log zerolog.Logger) ports.EventService {
	return &eventService{
		dir:       dir,
		eventRepo: eventRepo,
		log:       log,
	}
}

// Record appends a single event to the audit trail.
func (s *eventService) Record(ctx context.Context, ev domain.RequestEvent) error {
	if ev.RequestID == "" || ev.To == "" {
		return fmt.Errorf("record event: %w (missing request id or status)", domain.ErrInvalidStatus)
	}
	if err := s.eventRepo.InsertEvent(ctx, &ev); err != nil {
		return fmt.Errorf("record event: %w", err)
	}

	s.log.Debug().
		Str("request_id", ev.RequestID).
		Str("to", string(ev.To)).
		Str("cause", string(ev.Cause)).
		Msg("event recorded")
	return nil
}

// History returns the audit trail of an existing request.
func (s *eventService) History(ctx context.Context, requestID string) ([]*domain.RequestEvent, error) {
	if _, err := s.dir.FindRequest(ctx, requestID); err != nil {
		return nil, err
	}
	events, err := s.eventRepo.ListEvents(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("request history: %w", err)
	}
	if events == nil {
		events = []*domain.RequestEvent{}
	}
	return events, nil
}
