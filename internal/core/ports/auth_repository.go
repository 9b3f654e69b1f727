package ports

import (
	"context"

	"github.com/studyhub/group-requests/internal/core/domain"
)

// AuthRepository defines the user persistence needed by registration and login.
type AuthRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
}
