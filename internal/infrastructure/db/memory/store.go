// Package memory implements the Directory, auth and audit repositories in
// process memory. When a snapshot path is configured, every successful Persist
// rewrites the whole state to that JSON file and Open reloads it.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/studyhub/group-requests/internal/core/domain"
	"github.com/studyhub/group-requests/internal/core/ports"
)

// Store keeps users, groups and requests in insertion order.
type Store struct {
	mu sync.RWMutex

	users      map[string]*domain.User
	userOrder  []string
	groups     map[string]*domain.Group
	groupOrder []string
	requests   []*domain.Request
	requestIdx map[string]int

	path string
}

// New returns an empty store that never touches disk.
func New() *Store {
	return &Store{
		users:      make(map[string]*domain.User),
		groups:     make(map[string]*domain.Group),
		requestIdx: make(map[string]int),
	}
}

// Open returns a store backed by the snapshot file at path, loading it when it exists.
func Open(path string) (*Store, error) {
	s := New()
	s.path = path

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	for _, u := range snap.Users {
		s.putUser(u.toDomain())
	}
	for _, g := range snap.Groups {
		s.putGroup(g)
	}
	for _, r := range snap.Requests {
		s.requestIdx[r.ID] = len(s.requests)
		s.requests = append(s.requests, r)
	}
	return s, nil
}

// PutUser inserts or replaces a user. Used for seeding.
func (s *Store) PutUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putUser(u.Clone())
}

// PutGroup inserts or replaces a group. Used for seeding.
func (s *Store) PutGroup(g *domain.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putGroup(g.Clone())
}

func (s *Store) putUser(u *domain.User) {
	if _, ok := s.users[u.ID]; !ok {
		s.userOrder = append(s.userOrder, u.ID)
	}
	s.users[u.ID] = u
}

func (s *Store) putGroup(g *domain.Group) {
	if _, ok := s.groups[g.ID]; !ok {
		s.groupOrder = append(s.groupOrder, g.ID)
	}
	s.groups[g.ID] = g
}

func (s *Store) FindUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *Store) FindGroup(_ context.Context, groupID string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return g.Clone(), nil
}

func (s *Store) FindRequest(_ context.Context, requestID string) (*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.requestIdx[requestID]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return s.requests[i].Clone(), nil
}

func (s *Store) RequestsMatching(_ context.Context, filter ports.RequestFilter) ([]*domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Request{}
	for _, r := range s.requests {
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *Store) GroupsWithMember(_ context.Context, userID string) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Group
	for _, id := range s.groupOrder {
		if g := s.groups[id]; g.HasMember(userID) {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

// Persist validates the whole changeset before applying any of it. With a
// snapshot path the file is written before the in-memory state changes.
func (s *Store) Persist(_ context.Context, changes ports.Changeset) error {
	if changes.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range changes.Created {
		if _, dup := s.requestIdx[r.ID]; dup {
			return fmt.Errorf("persist: request %s already exists", r.ID)
		}
	}
	for _, r := range changes.Updated {
		if _, ok := s.requestIdx[r.ID]; !ok {
			return fmt.Errorf("persist: %w: request %s", domain.ErrRequestNotFound, r.ID)
		}
	}
	for _, g := range changes.Groups {
		if _, ok := s.groups[g.ID]; !ok {
			return fmt.Errorf("persist: %w: %s", domain.ErrGroupNotFound, g.ID)
		}
	}

	requests := make([]*domain.Request, len(s.requests), len(s.requests)+len(changes.Created))
	copy(requests, s.requests)
	for _, r := range changes.Updated {
		requests[s.requestIdx[r.ID]] = r.Clone()
	}
	for _, r := range changes.Created {
		requests = append(requests, r.Clone())
	}
	groups := make(map[string]*domain.Group, len(s.groups))
	for id, g := range s.groups {
		groups[id] = g
	}
	for _, g := range changes.Groups {
		groups[g.ID] = g.Clone()
	}

	if s.path != "" {
		if err := s.writeSnapshot(s.userOrder, s.users, s.groupOrder, groups, requests); err != nil {
			return err
		}
	}

	base := len(s.requests)
	for i, r := range changes.Created {
		s.requestIdx[r.ID] = base + i
	}
	s.requests = requests
	s.groups = groups
	return nil
}

func (s *Store) writeSnapshot(userOrder []string, users map[string]*domain.User, groupOrder []string, groups map[string]*domain.Group, requests []*domain.Request) error {
	snap := snapshot{Requests: requests}
	for _, id := range userOrder {
		snap.Users = append(snap.Users, fromDomainUser(users[id]))
	}
	for _, id := range groupOrder {
		snap.Groups = append(snap.Groups, groups[id])
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Flush writes the current state to the snapshot file, if one is configured.
func (s *Store) Flush() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeSnapshot(s.userOrder, s.users, s.groupOrder, s.groups, s.requests)
}

// Ping satisfies the readiness checker.
func (s *Store) Ping(context.Context) error { return nil }

// snapshot is the on-disk layout. Users are stored with their password hash,
// which the domain type hides from JSON.
type snapshot struct {
	Users    []snapshotUser    `json:"users"`
	Groups   []*domain.Group   `json:"groups"`
	Requests []*domain.Request `json:"requests"`
}

type snapshotUser struct {
	domain.User
	PasswordHash string `json:"password_hash,omitempty"`
}

func fromDomainUser(u *domain.User) snapshotUser {
	return snapshotUser{User: *u, PasswordHash: u.PasswordHash}
}

func (u snapshotUser) toDomain() *domain.User {
	out := u.User
	out.PasswordHash = u.PasswordHash
	return &out
}
