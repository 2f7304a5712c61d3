package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// MemoryRepository keeps users in process.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]User
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]User)}
}

func cloneUser(u User) *User {
	u.Permissions = append([]string(nil), u.Permissions...)
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		u.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		u.LastLoginAt = &t
	}
	return &u
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, shared.ErrNotFound
}

// FindByID fetches a user by id.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneUser(u), nil
}

// SaveLoginState records the counters and timestamps of a login attempt.
func (r *MemoryRepository) SaveLoginState(_ context.Context, id string, state LoginState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return shared.NotFound("user", id)
	}
	u.FailedLoginAttempts = state.FailedAttempts
	u.LockedUntil = state.LockedUntil
	if state.LastLoginAt != nil {
		u.LastLoginAt = state.LastLoginAt
	}
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = *cloneUser(u)
	return nil
}

// Create inserts a new user. Emails are unique.
func (r *MemoryRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return shared.Conflict("email already registered", nil)
		}
	}
	r.users[user.ID] = *cloneUser(*user)
	return nil
}

var _ Repository = (*MemoryRepository)(nil)

// List returns every user ordered by email.
func (r *MemoryRepository) List(_ context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
