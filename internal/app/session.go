package app

import (
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// Session is the state machine for one quiz attempt. It owns timestamps
// only; remaining time is derived on demand, so no live timer runs here.
// All mutations are applied atomically under the mutex in call order.
type Session struct {
	mu          sync.RWMutex
	now         func() time.Time
	state       domain.QuizState
	subscribers map[chan domain.QuizState]struct{}
}

func NewSession() *Session {
	return NewSessionWithClock(time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(now func() time.Time) *Session {
	return &Session{
		now:         now,
		state:       domain.NewQuizState(),
		subscribers: make(map[chan domain.QuizState]struct{}),
	}
}

// State returns a snapshot safe to serialize or hand to other goroutines.
func (s *Session) State() domain.QuizState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Hydrate restores a previously serialized snapshot, e.g. after a reload.
// Nil maps and an out-of-range index are repaired rather than rejected.
func (s *Session) Hydrate(st domain.QuizState) domain.QuizState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Answers == nil {
		st.Answers = map[string]domain.AnswerRecord{}
	}
	if st.Questions == nil {
		st.Questions = []domain.Question{}
	}
	st.TotalCount = len(st.Questions)
	if st.CurrentIndex < 0 {
		st.CurrentIndex = 0
	}
	if st.CurrentIndex > st.TotalCount {
		st.CurrentIndex = st.TotalCount
	}
	switch st.Status {
	case domain.StatusIdle, domain.StatusInProgress, domain.StatusFinished:
	default:
		// A snapshot taken mid-load is useless after a restart.
		st.Status = domain.StatusIdle
	}
	if st.DurationSec <= 0 {
		st.DurationSec = domain.DefaultDurationSec
	}
	s.state = st
	return s.broadcastLocked()
}

// BeginLoading moves an idle session into loading. Returns false (and
// changes nothing) while a quiz is running or a load is already in flight.
func (s *Session) BeginLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == domain.StatusInProgress || s.state.Status == domain.StatusLoading {
		return false
	}
	s.state.Status = domain.StatusLoading
	s.broadcastLocked()
	return true
}

// FinishLoading installs the fetched questions and returns to idle,
// ready to start.
func (s *Session) FinishLoading(questions []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if questions == nil {
		questions = []domain.Question{}
	}
	s.state.Questions = questions
	s.state.TotalCount = len(questions)
	s.state.Status = domain.StatusIdle
	s.broadcastLocked()
}

// FailLoading returns to idle with no questions; the caller may retry.
func (s *Session) FailLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != domain.StatusLoading {
		return
	}
	s.state.Questions = []domain.Question{}
	s.state.TotalCount = 0
	s.state.Status = domain.StatusIdle
	s.broadcastLocked()
}

// Start begins the attempt: counters reset, clock starts now.
func (s *Session) Start(durationSec int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != domain.StatusIdle || len(s.state.Questions) == 0 {
		return domain.ErrQuizNotReady
	}

	s.state.Status = domain.StatusInProgress
	s.state.CurrentIndex = 0
	s.state.Answers = map[string]domain.AnswerRecord{}
	s.state.Eliminated = nil
	s.state.AnsweredCount = 0
	s.state.CorrectCount = 0
	s.state.WrongCount = 0
	s.state.StartedAt = s.now()
	s.state.FinishedAt = time.Time{}
	s.state.PausedAt = time.Time{}
	s.state.PausedMsTotal = 0
	if durationSec > 0 {
		s.state.DurationSec = durationSec
	}
	s.state.TotalCount = len(s.state.Questions)
	s.broadcastLocked()
	return nil
}

// AnswerCurrent records an answer for the question under the cursor.
// Answering twice, answering while not running, or answering past the end
// are all no-ops (ok=false): benign races between UI and state.
func (s *Session) AnswerCurrent(selected string, advance bool) (domain.AnswerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != domain.StatusInProgress {
		return domain.AnswerRecord{}, false
	}
	q, ok := s.state.CurrentQuestion()
	if !ok {
		return domain.AnswerRecord{}, false
	}
	if _, answered := s.state.Answers[q.ID]; answered {
		return domain.AnswerRecord{}, false
	}

	record := domain.AnswerRecord{
		Selected:   selected,
		Correct:    selected == q.CorrectAnswer,
		Difficulty: q.Difficulty,
	}
	s.state.Answers[q.ID] = record
	s.state.AnsweredCount++
	if record.Correct {
		s.state.CorrectCount++
	} else {
		s.state.WrongCount++
	}

	if advance {
		s.advanceLocked()
	}
	s.broadcastLocked()
	return record, true
}

// Next advances the cursor; past the last question the session finishes.
func (s *Session) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != domain.StatusInProgress {
		return
	}
	s.advanceLocked()
	s.broadcastLocked()
}

// AdvanceIf advances only when questionID still matches the current
// question, so a stale deferred auto-advance cannot skip the wrong one.
func (s *Session) AdvanceIf(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != domain.StatusInProgress {
		return false
	}
	q, ok := s.state.CurrentQuestion()
	if !ok || q.ID != questionID {
		return false
	}
	s.advanceLocked()
	s.broadcastLocked()
	return true
}

func (s *Session) advanceLocked() {
	next := s.state.CurrentIndex + 1
	if next >= len(s.state.Questions) {
		s.finishLocked()
		return
	}
	s.state.CurrentIndex = next
}

// Finish force-terminates a running attempt, e.g. when the timer expires.
// A session that never started has nothing to finish.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != domain.StatusInProgress {
		return
	}
	s.finishLocked()
	s.broadcastLocked()
}

func (s *Session) finishLocked() {
	now := s.now()
	// Fold an open pause so elapsed-time math stays consistent afterwards.
	if !s.state.PausedAt.IsZero() {
		s.state.PausedMsTotal += now.Sub(s.state.PausedAt).Milliseconds()
		s.state.PausedAt = time.Time{}
	}
	s.state.Status = domain.StatusFinished
	s.state.FinishedAt = now
}

// Pause stops the clock. Idempotent: pausing twice keeps the first mark.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != domain.StatusInProgress {
		return
	}
	if !s.state.PausedAt.IsZero() {
		return
	}
	s.state.PausedAt = s.now()
	s.broadcastLocked()
}

// Resume folds the completed pause interval into the accumulated total.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != domain.StatusInProgress {
		return
	}
	if s.state.PausedAt.IsZero() {
		return
	}
	s.state.PausedMsTotal += s.now().Sub(s.state.PausedAt).Milliseconds()
	s.state.PausedAt = time.Time{}
	s.broadcastLocked()
}

// Reset discards everything and returns to the initial idle state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = domain.NewQuizState()
	s.broadcastLocked()
}

// CurrentQuestion returns the question under the cursor, if any.
func (s *Session) CurrentQuestion() (domain.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentQuestion()
}

// HintCandidates lists the wrong options of the current question that a
// hint could still eliminate. Empty when revealed, answered, or exhausted.
func (s *Session) HintCandidates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hintCandidatesLocked()
}

func (s *Session) hintCandidatesLocked() []string {
	if s.state.Status != domain.StatusInProgress {
		return nil
	}
	q, ok := s.state.CurrentQuestion()
	if !ok {
		return nil
	}
	if _, answered := s.state.Answers[q.ID]; answered {
		return nil
	}
	gone := map[string]bool{}
	for _, e := range s.state.Eliminated[q.ID] {
		gone[e] = true
	}
	var candidates []string
	for _, a := range q.Answers {
		if a != q.CorrectAnswer && !gone[a] {
			candidates = append(candidates, a)
		}
	}
	return candidates
}

// EliminateWrongAnswer removes one remaining wrong option of the current
// question, chosen by pick over the candidate count.
func (s *Session) EliminateWrongAnswer(pick func(n int) int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.hintCandidatesLocked()
	if len(candidates) == 0 {
		return "", domain.ErrNoHintAvailable
	}
	chosen := candidates[pick(len(candidates))]

	q, _ := s.state.CurrentQuestion()
	if s.state.Eliminated == nil {
		s.state.Eliminated = map[string][]string{}
	}
	s.state.Eliminated[q.ID] = append(s.state.Eliminated[q.ID], chosen)
	s.broadcastLocked()
	return chosen, nil
}

// RemainingSeconds derives the time left on the clock at the given instant.
func (s *Session) RemainingSeconds(now time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RemainingSeconds(s.state, now)
}

// Summary reports the finished attempt for reward application.
func (s *Session) Summary() (domain.SessionSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Status != domain.StatusFinished {
		return domain.SessionSummary{}, false
	}
	return domain.SessionSummary{
		TotalQuestions:        s.state.TotalCount,
		Answered:              s.state.AnsweredCount,
		Correct:               s.state.CorrectCount,
		Wrong:                 s.state.WrongCount,
		StartedAt:             s.state.StartedAt,
		FinishedBeforeTimeout: FinishedBeforeTimeout(s.state),
	}, true
}

// Answers returns a copy of the per-question answer records.
func (s *Session) Answers() map[string]domain.AnswerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answers := make(map[string]domain.AnswerRecord, len(s.state.Answers))
	for id, a := range s.state.Answers {
		answers[id] = a
	}
	return answers
}

// Subscribe returns a channel receiving a snapshot after every transition.
// The caller must invoke the cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.QuizState, func()) {
	ch := make(chan domain.QuizState, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() domain.QuizState {
	st := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- st:
		default:
			// Drop the stale update so a slow consumer never blocks a transition.
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
	return st
}

func (s *Session) snapshotLocked() domain.QuizState {
	st := s.state
	st.Questions = append([]domain.Question(nil), s.state.Questions...)
	st.Answers = make(map[string]domain.AnswerRecord, len(s.state.Answers))
	for id, a := range s.state.Answers {
		st.Answers[id] = a
	}
	if s.state.Eliminated != nil {
		st.Eliminated = make(map[string][]string, len(s.state.Eliminated))
		for id, opts := range s.state.Eliminated {
			st.Eliminated[id] = append([]string(nil), opts...)
		}
	}
	return st
}

// RemainingSeconds is the pure countdown derivation: wall time since start
// minus accumulated (and any open) pause, clamped to [0, duration].
func RemainingSeconds(st domain.QuizState, now time.Time) int {
	if st.StartedAt.IsZero() {
		return st.DurationSec
	}
	pausedMs := st.PausedMsTotal
	if !st.PausedAt.IsZero() {
		pausedMs += now.Sub(st.PausedAt).Milliseconds()
	}
	elapsedSec := (now.Sub(st.StartedAt).Milliseconds() - pausedMs) / 1000
	if elapsedSec < 0 {
		elapsedSec = 0
	}
	remaining := st.DurationSec - int(elapsedSec)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FinishedBeforeTimeout reports whether the attempt ended with effective
// (pause-adjusted) elapsed time inside the allotted duration.
func FinishedBeforeTimeout(st domain.QuizState) bool {
	if st.StartedAt.IsZero() || st.FinishedAt.IsZero() || st.DurationSec <= 0 {
		return false
	}
	elapsedMs := st.FinishedAt.Sub(st.StartedAt).Milliseconds() - st.PausedMsTotal
	return elapsedMs/1000 < int64(st.DurationSec)
}
