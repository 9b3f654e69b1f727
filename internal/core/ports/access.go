package ports

import (
	"context"

	"github.com/studyhub/group-requests/internal/core/domain"
)

// AccessResolver tells which roles a user holds on a request.
type AccessResolver interface {
	RolesFor(ctx context.Context, requestID, userID string) ([]domain.Role, error)
}
