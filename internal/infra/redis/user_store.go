package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/domain"
)

// UserStore keeps user records as JSON values plus a set of known ids.
// A malformed record is treated as absent rather than surfaced as an error.
type UserStore struct {
	client *redis.Client
}

func NewUserStore(client *redis.Client) *UserStore {
	return &UserStore{client: client}
}

const userIndexKey = "users"

func (s *UserStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	raw, err := s.client.Get(ctx, userKey(id)).Bytes()
	if err == redis.Nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		log.Printf("discarding corrupt user record %s: %v", id, err)
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) SaveUser(ctx context.Context, user domain.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user %s: %w", user.ID, err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, userKey(user.ID), raw, 0)
	pipe.SAdd(ctx, userIndexKey, user.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save user %s: %w", user.ID, err)
	}
	return nil
}

func (s *UserStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	ids, err := s.client.SMembers(ctx, userIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		user, err := s.GetUser(ctx, id)
		if err == domain.ErrUserNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func userKey(id string) string {
	return "user:" + id
}
