package memory

import (
	"context"
	"sync"

	"trivia-quiz-service/internal/domain"
)

// UserStore keeps user records in a mutex-guarded map. Useful for tests
// and single-node demos; swap for the postgres store in production.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserStore(seed ...domain.User) *UserStore {
	users := make(map[string]domain.User, len(seed))
	for _, u := range seed {
		users[u.ID] = u
	}
	return &UserStore{users: users}
}

func (s *UserStore) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) SaveUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *UserStore) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}
