package app

import (
	"encoding/json"
	"testing"
	"time"

	"trivia-quiz-service/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func sampleQuestions(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		questions = append(questions, domain.Question{
			ID:            "q-" + id,
			Text:          "Question " + id,
			Category:      "General Knowledge",
			Difficulty:    domain.DifficultyEasy,
			CorrectAnswer: "right",
			Answers:       []string{"wrong1", "right", "wrong2", "wrong3"},
			Type:          domain.TypeMultiple,
		})
	}
	return questions
}

func startedSession(t *testing.T, clock *fakeClock, n int) *Session {
	t.Helper()
	sess := NewSessionWithClock(clock.Now)
	if !sess.BeginLoading() {
		t.Fatalf("begin loading failed")
	}
	sess.FinishLoading(sampleQuestions(n))
	if err := sess.Start(120); err != nil {
		t.Fatalf("start: %v", err)
	}
	return sess
}

func TestStartRequiresQuestions(t *testing.T) {
	sess := NewSessionWithClock(newClock().Now)
	if err := sess.Start(120); err != domain.ErrQuizNotReady {
		t.Fatalf("expected ErrQuizNotReady, got %v", err)
	}
}

func TestFinishBeforeStartIsNoOp(t *testing.T) {
	sess := NewSessionWithClock(newClock().Now)

	sess.Finish()
	if st := sess.State(); st.Status != domain.StatusIdle || !st.StartedAt.IsZero() {
		t.Fatalf("finishing a never-started session changed it: %+v", st)
	}
	if _, ok := sess.Summary(); ok {
		t.Fatalf("never-started session must not produce a summary")
	}

	// Loaded but not started: still nothing to finish.
	if !sess.BeginLoading() {
		t.Fatalf("begin loading failed")
	}
	sess.FinishLoading(sampleQuestions(2))
	sess.Finish()
	if st := sess.State(); st.Status != domain.StatusIdle {
		t.Fatalf("expected idle, got %s", st.Status)
	}
}

func TestLoadFailureStaysIdle(t *testing.T) {
	sess := NewSessionWithClock(newClock().Now)
	sess.BeginLoading()
	sess.FailLoading()

	st := sess.State()
	if st.Status != domain.StatusIdle || len(st.Questions) != 0 {
		t.Fatalf("expected idle and empty after failed load, got %+v", st.Status)
	}
	if err := sess.Start(120); err != domain.ErrQuizNotReady {
		t.Fatalf("expected start to be refused, got %v", err)
	}
}

func TestNoAnswersWhileLoading(t *testing.T) {
	sess := NewSessionWithClock(newClock().Now)
	sess.BeginLoading()
	if _, ok := sess.AnswerCurrent("right", true); ok {
		t.Fatalf("answering while loading should be a no-op")
	}
	if sess.BeginLoading() {
		t.Fatalf("second load should be refused while one is in flight")
	}
}

func TestAnswerCountersAndAdvance(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 3)

	record, ok := sess.AnswerCurrent("right", true)
	if !ok || !record.Correct {
		t.Fatalf("expected correct answer recorded, got ok=%v record=%+v", ok, record)
	}
	record, ok = sess.AnswerCurrent("wrong1", true)
	if !ok || record.Correct {
		t.Fatalf("expected wrong answer recorded, got ok=%v record=%+v", ok, record)
	}

	st := sess.State()
	if st.CurrentIndex != 2 {
		t.Fatalf("expected cursor at 2, got %d", st.CurrentIndex)
	}
	if st.AnsweredCount != 2 || st.CorrectCount != 1 || st.WrongCount != 1 {
		t.Fatalf("counters off: %+v", st)
	}
	if st.CorrectCount+st.WrongCount != st.AnsweredCount || st.AnsweredCount != len(st.Answers) {
		t.Fatalf("counter invariant broken: %+v", st)
	}
}

func TestDoubleAnswerIsIdempotent(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 2)

	if _, ok := sess.AnswerCurrent("right", false); !ok {
		t.Fatalf("first answer should record")
	}
	if _, ok := sess.AnswerCurrent("wrong1", false); ok {
		t.Fatalf("second answer on same question should be a no-op")
	}

	st := sess.State()
	if st.AnsweredCount != 1 || st.CorrectCount != 1 || st.WrongCount != 0 {
		t.Fatalf("counters changed on duplicate answer: %+v", st)
	}
}

func TestExhaustingQuestionsFinishes(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 2)

	sess.AnswerCurrent("right", true)
	sess.AnswerCurrent("right", true)

	st := sess.State()
	if st.Status != domain.StatusFinished {
		t.Fatalf("expected finished, got %s", st.Status)
	}
	if st.FinishedAt.IsZero() {
		t.Fatalf("expected finishedAt recorded")
	}

	// Terminal: further operations change nothing.
	sess.Next()
	if _, ok := sess.AnswerCurrent("right", true); ok {
		t.Fatalf("answer after finish should be a no-op")
	}
}

func TestPauseResumeAccounting(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 5)

	clock.Advance(30 * time.Second)
	sess.Pause()
	clock.Advance(10 * time.Second)
	sess.Pause() // idempotent: keeps the first mark
	sess.Resume()

	st := sess.State()
	if st.PausedMsTotal != 10_000 {
		t.Fatalf("expected 10s accumulated pause, got %dms", st.PausedMsTotal)
	}
	if !st.PausedAt.IsZero() {
		t.Fatalf("expected pausedAt cleared after resume")
	}

	// After 120s of unpaused wall time the clock must read exactly zero.
	clock.Advance(90 * time.Second)
	if got := sess.RemainingSeconds(clock.Now()); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
	// Never negative.
	clock.Advance(time.Minute)
	if got := sess.RemainingSeconds(clock.Now()); got != 0 {
		t.Fatalf("expected clamp at 0, got %d", got)
	}
}

func TestRemainingSecondsWhilePaused(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 5)

	clock.Advance(20 * time.Second)
	sess.Pause()
	frozen := sess.RemainingSeconds(clock.Now())
	clock.Advance(45 * time.Second)
	if got := sess.RemainingSeconds(clock.Now()); got != frozen {
		t.Fatalf("clock should freeze while paused: %d != %d", got, frozen)
	}
}

func TestFinishFoldsOpenPause(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 5)

	clock.Advance(50 * time.Second)
	sess.Pause()
	clock.Advance(40 * time.Second)
	sess.Finish()

	summary, ok := sess.Summary()
	if !ok {
		t.Fatalf("expected summary for finished session")
	}
	// 90s wall, 40s paused: effective 50s < 120s.
	if !summary.FinishedBeforeTimeout {
		t.Fatalf("expected finishedBeforeTimeout")
	}
	if !sess.State().PausedAt.IsZero() {
		t.Fatalf("expected open pause folded at finish")
	}
}

func TestTimedOutSessionIsNotEarly(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 5)

	clock.Advance(120 * time.Second)
	sess.Finish()

	summary, _ := sess.Summary()
	if summary.FinishedBeforeTimeout {
		t.Fatalf("finishing at the buzzer should not count as early")
	}
}

func TestResetReturnsToInitialState(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 3)
	sess.AnswerCurrent("right", true)

	sess.Reset()
	st := sess.State()
	if st.Status != domain.StatusIdle || len(st.Questions) != 0 || st.AnsweredCount != 0 {
		t.Fatalf("expected pristine state after reset, got %+v", st)
	}
	if st.DurationSec != domain.DefaultDurationSec {
		t.Fatalf("expected default duration, got %d", st.DurationSec)
	}
}

func TestAdvanceIfGuardsStaleDeferred(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 3)

	q, _ := sess.CurrentQuestion()
	sess.AnswerCurrent("right", false)
	sess.Next() // user moved on manually before the deferred advance fired

	if sess.AdvanceIf(q.ID) {
		t.Fatalf("stale advance must not fire after the question changed")
	}
	if st := sess.State(); st.CurrentIndex != 1 {
		t.Fatalf("expected cursor unchanged at 1, got %d", st.CurrentIndex)
	}

	current, _ := sess.CurrentQuestion()
	if !sess.AdvanceIf(current.ID) {
		t.Fatalf("matching advance should fire")
	}
}

func TestHintEliminationTracksPerQuestion(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 2)

	pickFirst := func(n int) int { return 0 }

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		eliminated, err := sess.EliminateWrongAnswer(pickFirst)
		if err != nil {
			t.Fatalf("eliminate %d: %v", i, err)
		}
		if eliminated == "right" {
			t.Fatalf("hint must never remove the correct answer")
		}
		if seen[eliminated] {
			t.Fatalf("option %q eliminated twice", eliminated)
		}
		seen[eliminated] = true
	}

	// All three wrong options are gone now.
	if _, err := sess.EliminateWrongAnswer(pickFirst); err != domain.ErrNoHintAvailable {
		t.Fatalf("expected ErrNoHintAvailable, got %v", err)
	}
}

func TestHintUnavailableAfterAnswer(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 2)
	sess.AnswerCurrent("right", false)

	if got := sess.HintCandidates(); got != nil {
		t.Fatalf("expected no candidates on an answered question, got %v", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	clock := newClock()
	sess := startedSession(t, clock, 3)
	sess.AnswerCurrent("right", true)
	sess.AnswerCurrent("wrong1", false)

	raw, err := json.Marshal(sess.State())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded domain.QuizState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored := NewSessionWithClock(clock.Now)
	got := restored.Hydrate(decoded)

	want := sess.State()
	if got.Status != want.Status || got.CurrentIndex != want.CurrentIndex {
		t.Fatalf("status/cursor mismatch: %+v vs %+v", got, want)
	}
	if got.AnsweredCount != want.AnsweredCount || got.CorrectCount != want.CorrectCount || got.WrongCount != want.WrongCount {
		t.Fatalf("counter mismatch after round trip")
	}
	if len(got.Answers) != len(want.Answers) {
		t.Fatalf("answers lost in round trip")
	}
	for id, record := range want.Answers {
		if got.Answers[id] != record {
			t.Fatalf("answer %s mismatch: %+v vs %+v", id, got.Answers[id], record)
		}
	}
}

func TestHydrateRepairsCorruptSnapshot(t *testing.T) {
	sess := NewSessionWithClock(newClock().Now)
	got := sess.Hydrate(domain.QuizState{
		Status:       domain.SessionStatus("loading"),
		CurrentIndex: -4,
	})
	if got.Status != domain.StatusIdle {
		t.Fatalf("mid-load snapshot should hydrate as idle, got %s", got.Status)
	}
	if got.CurrentIndex != 0 || got.Answers == nil {
		t.Fatalf("expected repaired snapshot, got %+v", got)
	}
	if got.DurationSec != domain.DefaultDurationSec {
		t.Fatalf("expected default duration, got %d", got.DurationSec)
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	clock := newClock()
	sess := NewSessionWithClock(clock.Now)
	ch, cancel := sess.Subscribe()
	defer cancel()

	<-ch // initial snapshot

	sess.BeginLoading()
	st := <-ch
	if st.Status != domain.StatusLoading {
		t.Fatalf("expected loading update, got %s", st.Status)
	}

	sess.FinishLoading(sampleQuestions(1))
	st = <-ch
	if st.Status != domain.StatusIdle || st.TotalCount != 1 {
		t.Fatalf("expected idle with questions, got %+v", st.Status)
	}
}
