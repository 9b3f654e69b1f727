package ports

import (
	"context"

	"github.com/studyhub/group-requests/internal/core/domain"
)

// RequestFilter selects join requests. Zero-valued fields do not filter.
type RequestFilter struct {
	UserID   string
	GroupIDs []string // any of
	CourseID string
	Status   domain.RequestStatus
}

// Matches applies the filter to a single request, for stores that filter in memory.
func (f RequestFilter) Matches(r *domain.Request) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.CourseID != "" && r.CourseID != f.CourseID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if len(f.GroupIDs) > 0 {
		for _, id := range f.GroupIDs {
			if r.GroupID == id {
				return true
			}
		}
		return false
	}
	return true
}

// Changeset is everything one mutating operation writes back.
type Changeset struct {
	Created []*domain.Request
	Updated []*domain.Request
	// Groups hold groups whose member list grew during the operation.
	Groups []*domain.Group
}

// Empty reports whether there is nothing to persist.
func (c Changeset) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Groups) == 0
}

// Directory is the store of users, groups and requests the lifecycle manager
// works against. Lookups return copies; changes only take effect through Persist.
type Directory interface {
	// FindUser returns domain.ErrUserNotFound when absent.
	FindUser(ctx context.Context, userID string) (*domain.User, error)
	// FindGroup returns domain.ErrGroupNotFound when absent.
	FindGroup(ctx context.Context, groupID string) (*domain.Group, error)
	// FindRequest returns domain.ErrRequestNotFound when absent.
	FindRequest(ctx context.Context, requestID string) (*domain.Request, error)
	// RequestsMatching returns matching requests in creation order.
	RequestsMatching(ctx context.Context, filter RequestFilter) ([]*domain.Request, error)
	// GroupsWithMember returns every group listing userID as a member.
	GroupsWithMember(ctx context.Context, userID string) ([]*domain.Group, error)
	// Persist durably writes one operation's changes as a unit.
	Persist(ctx context.Context, changes Changeset) error
}
