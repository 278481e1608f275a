package app

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/game"
)

// UserStore persists player records.
type UserStore interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	SaveUser(ctx context.Context, user domain.User) error
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// StateStore is the key-value persistence for session snapshots, quick-replay
// parameters, settings, and the one-time reward bookkeeping. Reads fall back
// to defaults on missing or malformed data instead of erroring.
type StateStore interface {
	SaveQuizState(ctx context.Context, userID string, st domain.QuizState) error
	LoadQuizState(ctx context.Context, userID string) (domain.QuizState, bool, error)
	ClearQuizState(ctx context.Context, userID string) error

	SaveLastParams(ctx context.Context, userID string, p domain.QuizParams) error
	LastParams(ctx context.Context, userID string) (domain.QuizParams, bool, error)

	SaveSettings(ctx context.Context, userID string, s domain.Settings) error
	Settings(ctx context.Context, userID string) (domain.Settings, error)

	// MarkRewardApplied records that the session started at startedAt has
	// had its rewards applied; it returns true only the first time.
	// UnmarkRewardApplied releases the marker again so a failed apply can
	// be retried.
	MarkRewardApplied(ctx context.Context, userID string, startedAt time.Time) (bool, error)
	UnmarkRewardApplied(ctx context.Context, userID string, startedAt time.Time) error
	SaveReceipt(ctx context.Context, userID string, startedAt time.Time, r domain.RewardReceipt) error
	Receipt(ctx context.Context, userID string, startedAt time.Time) (domain.RewardReceipt, bool, error)
}

// QuestionSource fetches and normalizes questions from the trivia provider.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, p domain.QuizParams) ([]domain.Question, error)
}

// SessionRepository tracks the live session per user.
type SessionRepository interface {
	GetOrCreate(userID string) *Session
	Get(userID string) (*Session, bool)
	Delete(userID string)
}

// UserObserver is notified whenever a user's persisted record changes.
type UserObserver func(domain.User)

// HintResult reports a successful hint purchase.
type HintResult struct {
	Eliminated string           `json:"eliminated"`
	Stats      domain.GameStats `json:"stats"`
}

// GameService composes the quiz use cases: loading and playing sessions,
// applying rewards exactly once, spending tokens, and ranking players.
type GameService struct {
	users    UserStore
	state    StateStore
	source   QuestionSource
	sessions SessionRepository

	now func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	advMu     sync.Mutex
	advancers map[string]*autoAdvancer

	// userMu serializes read-modify-write of persisted user records so
	// token balances and XP totals cannot lose updates.
	userMu sync.Mutex

	obsMu     sync.RWMutex
	observers []UserObserver
}

// Option customizes a GameService.
type Option func(*GameService)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

// WithRand injects a seeded source for hint elimination.
func WithRand(rnd *rand.Rand) Option {
	return func(s *GameService) { s.rnd = rnd }
}

func NewGameService(users UserStore, state StateStore, source QuestionSource, sessions SessionRepository, opts ...Option) *GameService {
	s := &GameService{
		users:     users,
		state:     state,
		source:    source,
		sessions:  sessions,
		now:       time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		advancers: make(map[string]*autoAdvancer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnUserUpdate registers an observer for persisted user changes.
func (s *GameService) OnUserUpdate(fn UserObserver) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

func (s *GameService) notifyUser(user domain.User) {
	s.obsMu.RLock()
	observers := append([]UserObserver(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(user)
	}
}

// Session returns the live session for a user, creating an idle one on
// first touch.
func (s *GameService) Session(userID string) *Session {
	return s.sessions.GetOrCreate(userID)
}

// ResumeSession hydrates a persisted snapshot into the live session, e.g.
// after a reload. Returns false when nothing was stored.
func (s *GameService) ResumeSession(ctx context.Context, userID string) (domain.QuizState, bool, error) {
	sess := s.sessions.GetOrCreate(userID)
	st, ok, err := s.state.LoadQuizState(ctx, userID)
	if err != nil || !ok {
		return sess.State(), false, err
	}
	return sess.Hydrate(st), true, nil
}

// LoadQuiz fetches questions for the given parameters into the session.
// A provider failure or an empty result set leaves the session idle and
// empty; the caller may retry with different filters.
func (s *GameService) LoadQuiz(ctx context.Context, userID string, params domain.QuizParams) (domain.QuizState, error) {
	sess := s.sessions.GetOrCreate(userID)
	params = params.Normalized()

	if !sess.BeginLoading() {
		// Quiz already running or load in flight; benign, nothing changes.
		return sess.State(), nil
	}

	questions, err := s.source.FetchQuestions(ctx, params)
	if err != nil {
		sess.FailLoading()
		return sess.State(), err
	}
	if len(questions) == 0 {
		sess.FailLoading()
		return sess.State(), domain.ErrNoQuestions
	}

	sess.FinishLoading(questions)
	if err := s.state.SaveLastParams(ctx, userID, params); err != nil {
		log.Printf("save last params for %s: %v", userID, err)
	}
	s.persistSession(ctx, userID, sess)
	return sess.State(), nil
}

// StartQuiz begins the loaded quiz with the given clock duration.
func (s *GameService) StartQuiz(ctx context.Context, userID string, durationSec int) (domain.QuizState, error) {
	sess := s.sessions.GetOrCreate(userID)
	s.advancer(userID).Cancel()
	if err := sess.Start(durationSec); err != nil {
		return sess.State(), err
	}
	s.persistSession(ctx, userID, sess)
	return sess.State(), nil
}

// Answer records the selection for the current question, honoring the
// user's progression mode: manual pauses the clock for the reveal, auto
// schedules an advance after the configured delay. A duplicate submission
// is a no-op (ok=false, no error).
func (s *GameService) Answer(ctx context.Context, userID, selected string) (domain.AnswerRecord, bool, error) {
	sess := s.sessions.GetOrCreate(userID)
	q, hasQuestion := sess.CurrentQuestion()

	record, ok := sess.AnswerCurrent(selected, false)
	if !ok {
		return domain.AnswerRecord{}, false, nil
	}

	settings, err := s.state.Settings(ctx, userID)
	if err != nil {
		settings = domain.DefaultSettings()
	}

	switch settings.Mode {
	case domain.ModeManual:
		// Clock stops while the revealed answer waits for acknowledgment.
		sess.Pause()
	default:
		if hasQuestion {
			delay := time.Duration(settings.AutoNextDelayMs) * time.Millisecond
			s.advancer(userID).Schedule(q.ID, delay, func(questionID string) {
				if sess.AdvanceIf(questionID) {
					s.persistSession(context.Background(), userID, sess)
				}
			})
		}
	}

	s.persistSession(ctx, userID, sess)
	return record, true, nil
}

// Continue acknowledges a revealed answer in manual mode: the clock
// resumes and the cursor moves on.
func (s *GameService) Continue(ctx context.Context, userID string) domain.QuizState {
	sess := s.sessions.GetOrCreate(userID)
	s.advancer(userID).Cancel()
	sess.Resume()
	sess.Next()
	s.persistSession(ctx, userID, sess)
	return sess.State()
}

// Next advances manually, cancelling any pending auto-advance first.
func (s *GameService) Next(ctx context.Context, userID string) domain.QuizState {
	sess := s.sessions.GetOrCreate(userID)
	s.advancer(userID).Cancel()
	sess.Next()
	s.persistSession(ctx, userID, sess)
	return sess.State()
}

// Pause and Resume expose the session clock controls.
func (s *GameService) Pause(ctx context.Context, userID string) {
	sess := s.sessions.GetOrCreate(userID)
	sess.Pause()
	s.persistSession(ctx, userID, sess)
}

func (s *GameService) Resume(ctx context.Context, userID string) {
	sess := s.sessions.GetOrCreate(userID)
	sess.Resume()
	s.persistSession(ctx, userID, sess)
}

// ResetQuiz abandons the session and clears the stored snapshot.
func (s *GameService) ResetQuiz(ctx context.Context, userID string) domain.QuizState {
	sess := s.sessions.GetOrCreate(userID)
	s.advancer(userID).Cancel()
	sess.Reset()
	if err := s.state.ClearQuizState(ctx, userID); err != nil {
		log.Printf("clear quiz state for %s: %v", userID, err)
	}
	return sess.State()
}

// RemainingSeconds derives the countdown for the user's session at the
// given instant. The caller finishes the quiz when it reaches zero.
func (s *GameService) RemainingSeconds(userID string, at time.Time) int {
	sess, ok := s.sessions.Get(userID)
	if !ok {
		return 0
	}
	return sess.RemainingSeconds(at)
}

// UseHint spends one token to eliminate a wrong option of the current
// question. Declined (not an exception) when the user is unknown, broke,
// or no wrong option is left to remove.
func (s *GameService) UseHint(ctx context.Context, userID string) (HintResult, error) {
	sess := s.sessions.GetOrCreate(userID)
	if len(sess.HintCandidates()) == 0 {
		return HintResult{}, domain.ErrNoHintAvailable
	}

	stats, err := s.SpendTokens(ctx, userID, 1)
	if err != nil {
		return HintResult{}, err
	}

	eliminated, err := sess.EliminateWrongAnswer(s.intn)
	if err != nil {
		// The session moved on between the spend and the eliminate
		// (timer expiry, auto-advance); the token goes back.
		if rerr := s.refundTokens(ctx, userID, 1); rerr != nil {
			log.Printf("refund hint token for %s: %v", userID, rerr)
		}
		return HintResult{}, err
	}
	s.persistSession(ctx, userID, sess)
	return HintResult{Eliminated: eliminated, Stats: stats}, nil
}

// FinishQuiz terminates the session (timer expiry or exhausted questions)
// and applies rewards exactly once per attempt. Finishing again returns
// the receipt recorded the first time.
func (s *GameService) FinishQuiz(ctx context.Context, userID string) (domain.User, domain.RewardReceipt, error) {
	sess := s.sessions.GetOrCreate(userID)
	s.advancer(userID).Cancel()
	sess.Finish()
	s.persistSession(ctx, userID, sess)

	summary, ok := sess.Summary()
	if !ok {
		return domain.User{}, domain.RewardReceipt{}, domain.ErrSessionNotFound
	}

	first, err := s.state.MarkRewardApplied(ctx, userID, summary.StartedAt)
	if err != nil {
		return domain.User{}, domain.RewardReceipt{}, err
	}
	if !first {
		user, err := s.users.GetUser(ctx, userID)
		if err != nil {
			return domain.User{}, domain.RewardReceipt{}, err
		}
		receipt, cached, err := s.state.Receipt(ctx, userID, summary.StartedAt)
		if err != nil || !cached {
			return user, domain.RewardReceipt{}, err
		}
		return user, receipt, nil
	}

	user, receipt, err := s.ApplyQuizResult(ctx, userID, summary, sess.Answers())
	if err != nil {
		// Release the marker so a retry can still claim the rewards.
		if uerr := s.state.UnmarkRewardApplied(ctx, userID, summary.StartedAt); uerr != nil {
			log.Printf("unmark reward for %s: %v", userID, uerr)
		}
		return domain.User{}, domain.RewardReceipt{}, err
	}
	if err := s.state.SaveReceipt(ctx, userID, summary.StartedAt, receipt); err != nil {
		log.Printf("save receipt for %s: %v", userID, err)
	}
	return user, receipt, nil
}

// ApplyQuizResult folds a finished session into the user's persisted game
// stats and produces the reward receipt. Idempotence per attempt is the
// caller's responsibility (FinishQuiz keys it by session start time).
func (s *GameService) ApplyQuizResult(ctx context.Context, userID string, summary domain.SessionSummary, answers map[string]domain.AnswerRecord) (domain.User, domain.RewardReceipt, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, domain.RewardReceipt{}, err
	}
	stats := game.NormalizeStats(user.Game)

	answered := clampNonNegative(summary.Answered)
	correct := clampNonNegative(summary.Correct)
	wrong := clampNonNegative(summary.Wrong)
	total := clampNonNegative(summary.TotalQuestions)

	accuracy := 0.0
	if answered > 0 {
		accuracy = float64(correct) / float64(answered)
	}

	xpGain := game.XPGain(answers, summary.FinishedBeforeTimeout)
	nextXP := stats.XP + xpGain
	nextLevel := game.LevelFromXP(nextXP)

	perfectTokens := game.PerfectTokenGain(total, answered, correct, wrong)
	levelUpTokens := game.LevelUpTokenGain(stats.Level, nextLevel)
	levelsGained := nextLevel - stats.Level
	if levelsGained < 0 {
		levelsGained = 0
	}
	tokenGain := perfectTokens + levelUpTokens

	stats.XP = nextXP
	stats.Level = nextLevel
	stats.Tokens += tokenGain
	stats.QuizzesPlayed++
	stats.TotalQuestions += total
	stats.TotalAnswered += answered
	stats.TotalCorrect += correct
	stats.TotalWrong += wrong
	stats.LastPlayedAt = s.now()

	user.Game = stats
	if err := s.users.SaveUser(ctx, user); err != nil {
		return domain.User{}, domain.RewardReceipt{}, err
	}
	s.notifyUser(user)

	receipt := domain.RewardReceipt{
		XPGain:           xpGain,
		TokenGain:        tokenGain,
		PerfectTokenGain: perfectTokens,
		LevelUpTokenGain: levelUpTokens,
		LevelsGained:     levelsGained,
		Accuracy:         accuracy,
		Level:            stats.Level,
		XP:               stats.XP,
		Tokens:           stats.Tokens,
	}
	return user, receipt, nil
}

// SpendTokens atomically deducts amount from the user's balance. The
// balance never goes negative: an unaffordable spend is rejected whole.
func (s *GameService) SpendTokens(ctx context.Context, userID string, amount int) (domain.GameStats, error) {
	if amount <= 0 {
		return domain.GameStats{}, domain.ErrInvalidAmount
	}

	s.userMu.Lock()
	defer s.userMu.Unlock()

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.GameStats{}, err
	}
	stats := game.NormalizeStats(user.Game)
	if stats.Tokens < amount {
		return domain.GameStats{}, domain.ErrInsufficientTokens
	}
	stats.Tokens -= amount
	user.Game = stats

	if err := s.users.SaveUser(ctx, user); err != nil {
		return domain.GameStats{}, err
	}
	s.notifyUser(user)
	return stats, nil
}

func (s *GameService) refundTokens(ctx context.Context, userID string, amount int) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	stats := game.NormalizeStats(user.Game)
	stats.Tokens += amount
	user.Game = stats

	if err := s.users.SaveUser(ctx, user); err != nil {
		return err
	}
	s.notifyUser(user)
	return nil
}

// Leaderboard ranks all users by XP, highest first, name as tie-breaker.
func (s *GameService) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		stats := game.NormalizeStats(u.Game)
		entries = append(entries, domain.LeaderboardEntry{
			UserID: u.ID,
			Name:   u.Name,
			XP:     stats.XP,
			Level:  stats.Level,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].XP != entries[j].XP {
			return entries[i].XP > entries[j].XP
		}
		return entries[i].Name < entries[j].Name
	})

	return domain.Leaderboard{Entries: entries, UpdatedAt: s.now()}, nil
}

// Settings returns the user's normalized preferences, defaults on any failure.
func (s *GameService) Settings(ctx context.Context, userID string) domain.Settings {
	settings, err := s.state.Settings(ctx, userID)
	if err != nil {
		return domain.DefaultSettings()
	}
	return settings.Normalized()
}

// SaveSettings persists normalized preferences.
func (s *GameService) SaveSettings(ctx context.Context, userID string, settings domain.Settings) (domain.Settings, error) {
	settings = settings.Normalized()
	if err := s.state.SaveSettings(ctx, userID, settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// LastParams returns the parameters of the user's previous quiz for
// quick replay.
func (s *GameService) LastParams(ctx context.Context, userID string) (domain.QuizParams, bool) {
	p, ok, err := s.state.LastParams(ctx, userID)
	if err != nil || !ok {
		return domain.QuizParams{}, false
	}
	return p, true
}

func (s *GameService) persistSession(ctx context.Context, userID string, sess *Session) {
	if err := s.state.SaveQuizState(ctx, userID, sess.State()); err != nil {
		log.Printf("save quiz state for %s: %v", userID, err)
	}
}

func (s *GameService) advancer(userID string) *autoAdvancer {
	s.advMu.Lock()
	defer s.advMu.Unlock()
	adv, ok := s.advancers[userID]
	if !ok {
		adv = &autoAdvancer{}
		s.advancers[userID] = adv
	}
	return adv
}

func (s *GameService) intn(n int) int {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.rnd.Intn(n)
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
