package domain

import "errors"

var (
	// ErrUserNotFound is returned when a user id does not resolve to a record.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientTokens rejects a spend that would go negative.
	ErrInsufficientTokens = errors.New("insufficient tokens")
	// ErrInvalidAmount rejects a non-positive token spend.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrNoQuestions indicates the provider returned zero questions for the
	// requested filters. Recoverable: the session stays idle for a retry.
	ErrNoQuestions = errors.New("no questions available")
	// ErrQuizNotReady is returned when starting without loaded questions.
	ErrQuizNotReady = errors.New("quiz not ready to start")
	// ErrNoHintAvailable is returned when a hint cannot apply to the
	// current question (already answered, or no wrong options left).
	ErrNoHintAvailable = errors.New("no hint available")
	// ErrSessionNotFound is returned when a user has no active session.
	ErrSessionNotFound = errors.New("quiz session not found")
)
