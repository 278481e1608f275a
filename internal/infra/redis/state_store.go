package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/domain"
)

// StateStore is the Redis implementation of app.StateStore. Session
// snapshots and quick-replay parameters expire with the configured TTL;
// settings are kept indefinitely. Corrupt payloads fall back to defaults.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) SaveQuizState(ctx context.Context, userID string, st domain.QuizState) error {
	return s.setJSON(ctx, quizStateKey(userID), st, s.ttl)
}

func (s *StateStore) LoadQuizState(ctx context.Context, userID string) (domain.QuizState, bool, error) {
	var st domain.QuizState
	ok, err := s.getJSON(ctx, quizStateKey(userID), &st)
	if err != nil || !ok {
		return domain.NewQuizState(), false, err
	}
	return st, true, nil
}

func (s *StateStore) ClearQuizState(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, quizStateKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear quiz state %s: %w", userID, err)
	}
	return nil
}

func (s *StateStore) SaveLastParams(ctx context.Context, userID string, p domain.QuizParams) error {
	return s.setJSON(ctx, lastParamsKey(userID), p, s.ttl)
}

func (s *StateStore) LastParams(ctx context.Context, userID string) (domain.QuizParams, bool, error) {
	var p domain.QuizParams
	ok, err := s.getJSON(ctx, lastParamsKey(userID), &p)
	if err != nil || !ok {
		return domain.QuizParams{}, false, err
	}
	return p, true, nil
}

func (s *StateStore) SaveSettings(ctx context.Context, userID string, settings domain.Settings) error {
	return s.setJSON(ctx, settingsKey(userID), settings.Normalized(), 0)
}

func (s *StateStore) Settings(ctx context.Context, userID string) (domain.Settings, error) {
	var settings domain.Settings
	ok, err := s.getJSON(ctx, settingsKey(userID), &settings)
	if err != nil || !ok {
		return domain.DefaultSettings(), err
	}
	return settings.Normalized(), nil
}

// MarkRewardApplied is a SETNX: only the first caller for a given attempt
// gets true, which makes reward application idempotent per session start.
func (s *StateStore) MarkRewardApplied(ctx context.Context, userID string, startedAt time.Time) (bool, error) {
	first, err := s.client.SetNX(ctx, rewardAppliedKey(userID, startedAt), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark reward applied %s: %w", userID, err)
	}
	return first, nil
}

// UnmarkRewardApplied releases the marker after a failed apply so the
// next finish can claim the rewards again.
func (s *StateStore) UnmarkRewardApplied(ctx context.Context, userID string, startedAt time.Time) error {
	if err := s.client.Del(ctx, rewardAppliedKey(userID, startedAt)).Err(); err != nil {
		return fmt.Errorf("unmark reward applied %s: %w", userID, err)
	}
	return nil
}

func (s *StateStore) SaveReceipt(ctx context.Context, userID string, startedAt time.Time, r domain.RewardReceipt) error {
	return s.setJSON(ctx, receiptKey(userID, startedAt), r, s.ttl)
}

func (s *StateStore) Receipt(ctx context.Context, userID string, startedAt time.Time) (domain.RewardReceipt, bool, error) {
	var r domain.RewardReceipt
	ok, err := s.getJSON(ctx, receiptKey(userID, startedAt), &r)
	if err != nil || !ok {
		return domain.RewardReceipt{}, false, err
	}
	return r, true, nil
}

func (s *StateStore) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// getJSON reads and decodes a key. Missing keys and corrupt payloads both
// report absent so callers fall back to defaults.
func (s *StateStore) getJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("discarding corrupt payload at %s: %v", key, err)
		return false, nil
	}
	return true, nil
}

func quizStateKey(userID string) string {
	return "quiz:state:" + userID
}

func lastParamsKey(userID string) string {
	return "quiz:lastparams:" + userID
}

func settingsKey(userID string) string {
	return "settings:" + userID
}

func rewardAppliedKey(userID string, startedAt time.Time) string {
	return fmt.Sprintf("quiz:applied:%s:%d", userID, startedAt.UnixMilli())
}

func receiptKey(userID string, startedAt time.Time) string {
	return fmt.Sprintf("quiz:receipt:%s:%d", userID, startedAt.UnixMilli())
}
