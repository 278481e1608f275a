package domain

import "time"

// Difficulty of a trivia question as reported by the provider.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty maps a raw provider string to a known difficulty.
// Unknown values fall back to easy so scoring stays defined.
func ParseDifficulty(raw string) Difficulty {
	switch Difficulty(raw) {
	case DifficultyMedium:
		return DifficultyMedium
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyEasy
	}
}

// QuestionType mirrors the provider's question formats.
type QuestionType string

const (
	TypeMultiple QuestionType = "multiple"
	TypeBoolean  QuestionType = "boolean"
)

// Question is a normalized trivia question. Immutable once produced;
// Answers is shuffled and contains CorrectAnswer exactly once.
type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Category      string       `json:"category"`
	Difficulty    Difficulty   `json:"difficulty"`
	CorrectAnswer string       `json:"correctAnswer"`
	Answers       []string     `json:"answers"`
	Type          QuestionType `json:"type"`
}

// AnswerRecord captures one answered question, keyed by question id in
// QuizState.Answers. Difficulty is copied in so XP can be computed after
// the question list is gone.
type AnswerRecord struct {
	Selected   string     `json:"selected"`
	Correct    bool       `json:"correct"`
	Difficulty Difficulty `json:"difficulty"`
}

// SessionStatus is the quiz session lifecycle state.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusLoading    SessionStatus = "loading"
	StatusInProgress SessionStatus = "in_progress"
	StatusFinished   SessionStatus = "finished"
)

// QuizState is the serializable snapshot of one quiz session. The session
// owns timestamps only; remaining time is always derived from them.
type QuizState struct {
	Status       SessionStatus           `json:"status"`
	Questions    []Question              `json:"questions"`
	CurrentIndex int                     `json:"currentIndex"`
	Answers      map[string]AnswerRecord `json:"answers"`

	TotalCount    int `json:"totalCount"`
	AnsweredCount int `json:"answeredCount"`
	CorrectCount  int `json:"correctCount"`
	WrongCount    int `json:"wrongCount"`

	StartedAt   time.Time `json:"startedAt,omitempty"`
	DurationSec int       `json:"durationSec"`
	FinishedAt  time.Time `json:"finishedAt,omitempty"`

	PausedAt      time.Time `json:"pausedAt,omitempty"`
	PausedMsTotal int64     `json:"pausedMsTotal"`

	// Eliminated tracks hint-removed wrong options per question id so a
	// hint cannot remove the same option twice and survives a reload.
	Eliminated map[string][]string `json:"eliminated,omitempty"`
}

// DefaultDurationSec matches the original two minute quiz clock.
const DefaultDurationSec = 120

// NewQuizState returns the initial idle session state.
func NewQuizState() QuizState {
	return QuizState{
		Status:      StatusIdle,
		Questions:   []Question{},
		Answers:     map[string]AnswerRecord{},
		DurationSec: DefaultDurationSec,
	}
}

// CurrentQuestion returns the question at CurrentIndex, if any.
func (s QuizState) CurrentQuestion() (Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// SessionSummary is the outcome handed to the reward application service.
type SessionSummary struct {
	TotalQuestions        int       `json:"totalQuestions"`
	Answered              int       `json:"answered"`
	Correct               int       `json:"correct"`
	Wrong                 int       `json:"wrong"`
	StartedAt             time.Time `json:"startedAt"`
	FinishedBeforeTimeout bool      `json:"finishedBeforeTimeout"`
}

// GameStats is the per-user progression record. Tokens never goes negative.
type GameStats struct {
	XP             int       `json:"xp"`
	Level          int       `json:"level"`
	Tokens         int       `json:"tokens"`
	QuizzesPlayed  int       `json:"quizzesPlayed"`
	TotalQuestions int       `json:"totalQuestions"`
	TotalAnswered  int       `json:"totalAnswered"`
	TotalCorrect   int       `json:"totalCorrect"`
	TotalWrong     int       `json:"totalWrong"`
	LastPlayedAt   time.Time `json:"lastPlayedAt,omitempty"`
}

// User is the persisted player record. The core only reads ID and Game.
type User struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Game  GameStats `json:"game"`
}

// RewardReceipt reports what a finished session earned. Ephemeral, display only.
type RewardReceipt struct {
	XPGain           int     `json:"xpGain"`
	TokenGain        int     `json:"tokenGain"`
	PerfectTokenGain int     `json:"perfectTokenGain"`
	LevelUpTokenGain int     `json:"levelUpTokenGain"`
	LevelsGained     int     `json:"levelsGained"`
	Accuracy         float64 `json:"accuracy"`
	Level            int     `json:"level"`
	XP               int     `json:"xp"`
	Tokens           int     `json:"tokens"`
}

// QuizParams are the provider request parameters plus the session clock.
type QuizParams struct {
	Amount      int          `json:"amount"`
	Type        QuestionType `json:"type"`
	Difficulty  Difficulty   `json:"difficulty,omitempty"`
	Category    int          `json:"category,omitempty"`
	DurationSec int          `json:"durationSec"`
}

// Normalized fills defaults for zero-valued fields.
func (p QuizParams) Normalized() QuizParams {
	if p.Amount <= 0 {
		p.Amount = 10
	}
	if p.Type != TypeBoolean {
		p.Type = TypeMultiple
	}
	if p.Category < 0 {
		p.Category = 0
	}
	if p.DurationSec <= 0 {
		p.DurationSec = DefaultDurationSec
	}
	return p
}

// ProgressionMode selects how the quiz advances after an answer.
type ProgressionMode string

const (
	ModeAuto   ProgressionMode = "auto"
	ModeManual ProgressionMode = "manual"
)

// Settings are the persisted app preferences. Layout fields are opaque to
// the core and carried for the client.
type Settings struct {
	Mode            ProgressionMode `json:"mode"`
	AutoNextDelayMs int             `json:"autoNextDelayMs"`
	SidebarVariant  string          `json:"sidebarVariant,omitempty"`
	ContentMaxWidth string          `json:"contentMaxWidth,omitempty"`
}

// DefaultSettings mirror the original app defaults.
func DefaultSettings() Settings {
	return Settings{
		Mode:            ModeAuto,
		AutoNextDelayMs: 1200,
		SidebarVariant:  "floating",
		ContentMaxWidth: "6xl",
	}
}

// Normalized replaces invalid fields with defaults instead of failing.
func (s Settings) Normalized() Settings {
	def := DefaultSettings()
	if s.Mode != ModeAuto && s.Mode != ModeManual {
		s.Mode = def.Mode
	}
	if s.AutoNextDelayMs < 0 {
		s.AutoNextDelayMs = def.AutoNextDelayMs
	}
	if s.SidebarVariant == "" {
		s.SidebarVariant = def.SidebarVariant
	}
	if s.ContentMaxWidth == "" {
		s.ContentMaxWidth = def.ContentMaxWidth
	}
	return s
}

// LeaderboardEntry is one ranked row of the XP leaderboard.
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	XP     int    `json:"xp"`
	Level  int    `json:"level"`
}

// Leaderboard is the full ranking, highest XP first.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
