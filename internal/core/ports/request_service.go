package ports

import (
	"context"

	"github.com/studyhub/group-requests/internal/core/domain"
)

// RequestService is the join-request lifecycle: creation, listings and the
// accept/reject/withdraw transitions.
type RequestService interface {
	Create(ctx context.Context, groupID, userID string) (*domain.Request, error)
	ListForGroup(ctx context.Context, groupID string, status domain.RequestStatus) ([]*domain.Request, error)
	ListSentByUser(ctx context.Context, userID string, status domain.RequestStatus) ([]*domain.Request, error)
	ListReceivedByUser(ctx context.Context, userID string, status domain.RequestStatus) ([]*domain.Request, error)
	Accept(ctx context.Context, requestID string) error
	Reject(ctx context.Context, requestID string) error
	Withdraw(ctx context.Context, requestID string) error
}
