package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/auth"
)

// MemoryStore はプロセス内だけで完結するユーザーストアです。開発とテスト用です。
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*auth.User
	byEmail map[string]string
	now     func() time.Time
}

var _ auth.UserStore = (*MemoryStore)(nil)

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*auth.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *MemoryStore) Create(_ context.Context, user *auth.User) error {
	if user == nil {
		return oops.Code("USER_INVALID").Errorf("user is nil")
	}
	email := auth.NormalizeEmail(user.Email)
	if email == "" {
		return oops.Code("USER_INVALID").Errorf("email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return auth.ErrEmailTaken
	}
	user.Email = email
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	s.byID[user.ID] = cloneUser(user)
	s.byEmail[email] = user.ID
	return nil
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) AddRole(_ context.Context, id string, role auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	user.Roles = upsertRole(user.Roles, role)
	user.UpdatedAt = s.now().UTC()
	return nil
}

func cloneUser(u *auth.User) *auth.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Roles = append([]auth.Role(nil), u.Roles...)
	return &cp
}
