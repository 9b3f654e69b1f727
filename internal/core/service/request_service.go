package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/studyhub/group-requests/internal/core/domain"
	"github.com/studyhub/group-requests/internal/core/ports"
)

// causeOf maps a direct action to the audit cause it records.
var causeOf = map[domain.Action]domain.Cause{
	domain.ActionAccept:   domain.CauseAccept,
	domain.ActionReject:   domain.CauseReject,
	domain.ActionWithdraw: domain.CauseWithdraw,
}

// RequestService owns every join-request state change. All mutating
// operations run under the Locker so that checks and writes are one unit.
type RequestService struct {
	dir    ports.Directory
	lock   ports.Locker
	events ports.EventPublisher
	logger zerolog.Logger

	now   func() time.Time
	newID func() (string, error)
}

// NewRequestService wires the lifecycle manager. A nil locker falls back to an
// in-process lock and a nil publisher drops audit events.
func NewRequestService(dir ports.Directory, lock ports.Locker, events ports.EventPublisher, logger zerolog.Logger) *RequestService {
	if lock == nil {
		lock = NewLocalLocker()
	}
	if events == nil {
		events = discardPublisher{}
	}
	return &RequestService{
		dir:    dir,
		lock:   lock,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  newRequestID,
	}
}

// newRequestID returns a time-ordered UUID so IDs sort in creation order.
func newRequestID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Create files a PENDING request from userID to groupID. A user may hold only
// one PENDING or ACCEPTED request per group; re-requesting after a rejection
// or withdrawal is allowed.
func (s *RequestService) Create(ctx context.Context, groupID, userID string) (*domain.Request, error) {
	var created *domain.Request
	err := s.serialized(ctx, "create", func() ([]domain.RequestEvent, error) {
		existing, err := s.dir.RequestsMatching(ctx, ports.RequestFilter{UserID: userID, GroupIDs: []string{groupID}})
		if err != nil {
			return nil, err
		}
		for _, r := range existing {
			if r.Active() {
				return nil, domain.ErrDuplicateRequest
			}
		}

		group, err := s.dir.FindGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		user, err := s.dir.FindUser(ctx, userID)
		if err != nil {
			return nil, err
		}

		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate request id: %w", err)
		}
		now := s.now()
		req := &domain.Request{
			ID:        id,
			UserID:    user.ID,
			GroupID:   group.ID,
			CourseID:  group.CourseID,
			Status:    domain.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.dir.Persist(ctx, ports.Changeset{Created: []*domain.Request{req}}); err != nil {
			return nil, err
		}
		created = req
		return []domain.RequestEvent{domain.NewRequestEvent(req, "", domain.CauseCreate, now)}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", created.ID).
		Str("user_id", created.UserID).
		Str("group_id", created.GroupID).
		Str("course_id", created.CourseID).
		Msg("request created")
	return created.Clone(), nil
}

// ListForGroup returns the requests sent to groupID, optionally of one status.
func (s *RequestService) ListForGroup(ctx context.Context, groupID string, status domain.RequestStatus) ([]*domain.Request, error) {
	return s.list(ctx, ports.RequestFilter{GroupIDs: []string{groupID}, Status: status})
}

// ListSentByUser returns the requests userID has sent.
func (s *RequestService) ListSentByUser(ctx context.Context, userID string, status domain.RequestStatus) ([]*domain.Request, error) {
	return s.list(ctx, ports.RequestFilter{UserID: userID, Status: status})
}

// ListReceivedByUser returns the requests sent to any group userID belongs to.
func (s *RequestService) ListReceivedByUser(ctx context.Context, userID string, status domain.RequestStatus) ([]*domain.Request, error) {
	groups, err := s.dir.GroupsWithMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return []*domain.Request{}, nil
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return s.list(ctx, ports.RequestFilter{GroupIDs: ids, Status: status})
}

func (s *RequestService) list(ctx context.Context, filter ports.RequestFilter) ([]*domain.Request, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	reqs, err := s.dir.RequestsMatching(ctx, filter)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []*domain.Request{}
	}
	return reqs, nil
}

// Accept admits the requester into the group and withdraws the requester's
// other PENDING requests for the same course.
func (s *RequestService) Accept(ctx context.Context, requestID string) error {
	return s.transition(ctx, requestID, domain.ActionAccept)
}

// Reject declines a PENDING request.
func (s *RequestService) Reject(ctx context.Context, requestID string) error {
	return s.transition(ctx, requestID, domain.ActionReject)
}

// RolesFor resolves userID's roles on a request. It reads without the lock:
// a request's sender and group never change and members are only added.
func (s *RequestService) RolesFor(ctx context.Context, requestID, userID string) ([]domain.Role, error) {
	req, err := s.dir.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var roles []domain.Role
	if req.UserID == userID {
		roles = append(roles, domain.RoleRequester)
	}
	group, err := s.dir.FindGroup(ctx, req.GroupID)
	switch {
	case errors.Is(err, domain.ErrGroupNotFound):
	case err != nil:
		return nil, err
	case group.HasMember(userID):
		roles = append(roles, domain.RoleGroupMember)
	}
	return roles, nil
}

// Withdraw cancels a PENDING request on behalf of its sender.
func (s *RequestService) Withdraw(ctx context.Context, requestID string) error {
	return s.transition(ctx, requestID, domain.ActionWithdraw)
}

func (s *RequestService) transition(ctx context.Context, requestID string, action domain.Action) error {
	cascaded := 0
	err := s.serialized(ctx, string(action), func() ([]domain.RequestEvent, error) {
		req, err := s.dir.FindRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		next, err := req.Status.Apply(action)
		if err != nil {
			return nil, err
		}

		var changes ports.Changeset
		if action == domain.ActionAccept {
			group, err := s.dir.FindGroup(ctx, req.GroupID)
			if err != nil {
				return nil, err
			}
			if _, err := s.dir.FindUser(ctx, req.UserID); err != nil {
				return nil, err
			}
			if group.AddMember(req.UserID) {
				changes.Groups = append(changes.Groups, group)
			}
		}

		now := s.now()
		from := req.Status
		req.Status = next
		req.UpdatedAt = now
		changes.Updated = append(changes.Updated, req)
		events := []domain.RequestEvent{domain.NewRequestEvent(req, from, causeOf[action], now)}

		if action == domain.ActionAccept {
			siblings, err := s.dir.RequestsMatching(ctx, ports.RequestFilter{
				UserID:   req.UserID,
				CourseID: req.CourseID,
				Status:   domain.StatusPending,
			})
			if err != nil {
				return nil, err
			}
			for _, sib := range siblings {
				if sib.ID == req.ID {
					continue
				}
				sib.Status = domain.StatusWithdrawn
				sib.UpdatedAt = now
				changes.Updated = append(changes.Updated, sib)

				ev := domain.NewRequestEvent(sib, domain.StatusPending, domain.CauseCascade, now)
				ev.TriggeredBy = req.ID
				events = append(events, ev)
				cascaded++
			}
		}

		if err := s.dir.Persist(ctx, changes); err != nil {
			return nil, err
		}
		return events, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("request_id", requestID).
		Str("action", string(action)).
		Int("cascade_withdrawn", cascaded).
		Msg("request transitioned")
	return nil
}

// serialized runs fn while holding the directory lock and publishes the
// events it returns once the lock is released.
func (s *RequestService) serialized(ctx context.Context, op string, fn func() ([]domain.RequestEvent, error)) error {
	unlock, err := s.lock.Lock(ctx)
	if err != nil {
		return fmt.Errorf("%s: acquire lock: %w", op, err)
	}
	events, err := func() ([]domain.RequestEvent, error) {
		defer unlock()
		return fn()
	}()

	if err != nil {
		if !isDomainError(err) {
			s.logger.Error().Err(err).Str("op", op).Msg("request operation failed")
		}
		return err
	}
	if len(events) > 0 {
		s.events.Publish(events...)
	}
	return nil
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrRequestNotFound,
		domain.ErrGroupNotFound,
		domain.ErrUserNotFound,
		domain.ErrDuplicateRequest,
		domain.ErrInvalidTransition,
		domain.ErrInvalidStatus,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type discardPublisher struct{}

func (discardPublisher) Publish(...domain.RequestEvent) {}
