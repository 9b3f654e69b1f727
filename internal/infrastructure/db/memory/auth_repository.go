package memory

import (
	"context"
	"strings"

	"github.com/studyhub/group-requests/internal/core/domain"
)

// Create registers a new user. Emails are unique, case-insensitively.
func (s *Store) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID == user.ID || strings.EqualFold(u.Email, user.Email) {
			return nil, domain.ErrUserExists
		}
	}

	users := make(map[string]*domain.User, len(s.users)+1)
	for id, u := range s.users {
		users[id] = u
	}
	users[user.ID] = user.Clone()
	order := append(append([]string(nil), s.userOrder...), user.ID)

	if s.path != "" {
		if err := s.writeSnapshot(order, users, s.groupOrder, s.groups, s.requests); err != nil {
			return nil, err
		}
	}
	s.users = users
	s.userOrder = order
	return user.Clone(), nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.userOrder {
		if u := s.users[id]; strings.EqualFold(u.Email, email) {
			return u.Clone(), nil
		}
	}
	return nil, domain.ErrUserNotFound
}
