package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// StateStore is the in-memory implementation of app.StateStore: session
// snapshots, quick-replay parameters, settings, and reward bookkeeping.
type StateStore struct {
	mu         sync.Mutex
	quizStates map[string]domain.QuizState
	lastParams map[string]domain.QuizParams
	settings   map[string]domain.Settings
	applied    map[string]struct{}
	receipts   map[string]domain.RewardReceipt
}

func NewStateStore() *StateStore {
	return &StateStore{
		quizStates: make(map[string]domain.QuizState),
		lastParams: make(map[string]domain.QuizParams),
		settings:   make(map[string]domain.Settings),
		applied:    make(map[string]struct{}),
		receipts:   make(map[string]domain.RewardReceipt),
	}
}

func (s *StateStore) SaveQuizState(_ context.Context, userID string, st domain.QuizState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizStates[userID] = st
	return nil
}

func (s *StateStore) LoadQuizState(_ context.Context, userID string) (domain.QuizState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.quizStates[userID]
	return st, ok, nil
}

func (s *StateStore) ClearQuizState(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quizStates, userID)
	return nil
}

func (s *StateStore) SaveLastParams(_ context.Context, userID string, p domain.QuizParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastParams[userID] = p
	return nil
}

func (s *StateStore) LastParams(_ context.Context, userID string) (domain.QuizParams, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.lastParams[userID]
	return p, ok, nil
}

func (s *StateStore) SaveSettings(_ context.Context, userID string, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[userID] = settings.Normalized()
	return nil
}

func (s *StateStore) Settings(_ context.Context, userID string) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.settings[userID]
	if !ok {
		return domain.DefaultSettings(), nil
	}
	return settings.Normalized(), nil
}

func (s *StateStore) MarkRewardApplied(_ context.Context, userID string, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rewardKey(userID, startedAt)
	if _, done := s.applied[key]; done {
		return false, nil
	}
	s.applied[key] = struct{}{}
	return true, nil
}

func (s *StateStore) UnmarkRewardApplied(_ context.Context, userID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.applied, rewardKey(userID, startedAt))
	return nil
}

func (s *StateStore) SaveReceipt(_ context.Context, userID string, startedAt time.Time, r domain.RewardReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[rewardKey(userID, startedAt)] = r
	return nil
}

func (s *StateStore) Receipt(_ context.Context, userID string, startedAt time.Time) (domain.RewardReceipt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[rewardKey(userID, startedAt)]
	return r, ok, nil
}

func rewardKey(userID string, startedAt time.Time) string {
	return fmt.Sprintf("%s:%d", userID, startedAt.UnixMilli())
}
