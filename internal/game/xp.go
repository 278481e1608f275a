// Package game holds the pure XP, leveling and token reward math.
// No I/O, no clocks; everything here is a function of its inputs.
package game

import (
	"math"

	"trivia-quiz-service/internal/domain"
)

// Base XP per answered question before the difficulty multiplier.
const (
	xpPerCorrect = 10
	xpPerWrong   = 2
)

// Flat bonuses applied to a session's XP total.
const (
	accuracyBonusXP        = 20
	accuracyBonusThreshold = 0.8
	finishEarlyBonusXP     = 10
)

// TokensPerLevelUp is awarded for each level gained in one session.
const TokensPerLevelUp = 5

// PerfectSessionTokens is awarded when every question was answered correctly.
const PerfectSessionTokens = 1

// XPRequiredForLevel returns the cumulative XP needed to reach level.
// The curve is triangular: each level costs 100*(level-1) more than the
// previous step. Level 1 requires nothing.
func XPRequiredForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return 100 * (level - 1) * level / 2
}

// XPRangeForLevel returns the XP span covered by the given level.
func XPRangeForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return level * 100
}

// LevelFromXP inverts XPRequiredForLevel via the triangular-number
// closed form. Never below 1.
func LevelFromXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	s := float64(xp) / 100
	root := (1 + math.Sqrt(1+8*s)) / 2
	level := int(math.Floor(root))
	if level < 1 {
		return 1
	}
	return level
}

// DifficultyMultiplier scales per-question XP by difficulty.
func DifficultyMultiplier(d domain.Difficulty) float64 {
	switch d {
	case domain.DifficultyHard:
		return 2.0
	case domain.DifficultyMedium:
		return 1.4
	default:
		return 1.0
	}
}

// XPGain computes the XP earned for a set of answered questions.
// Correct answers earn 10x the multiplier, wrong ones 2x. An accuracy of
// 0.8 or better adds a flat bonus, as does finishing before the timer.
// The total is rounded to the nearest integer; nothing answered earns nothing.
func XPGain(answers map[string]domain.AnswerRecord, finishedBeforeTimeout bool) int {
	answered := len(answers)
	if answered == 0 {
		return 0
	}

	var xp float64
	correct := 0
	for _, a := range answers {
		mult := DifficultyMultiplier(a.Difficulty)
		if a.Correct {
			xp += xpPerCorrect * mult
			correct++
		} else {
			xp += xpPerWrong * mult
		}
	}

	accuracy := float64(correct) / float64(answered)
	if accuracy >= accuracyBonusThreshold {
		xp += accuracyBonusXP
	}
	if finishedBeforeTimeout {
		xp += finishEarlyBonusXP
	}

	return int(math.Round(xp))
}

// PerfectTokenGain returns the token bonus for a flawless session:
// every question answered and every answer correct.
func PerfectTokenGain(totalQuestions, answered, correct, wrong int) int {
	if totalQuestions > 0 && answered == totalQuestions && correct == totalQuestions && wrong == 0 {
		return PerfectSessionTokens
	}
	return 0
}

// LevelUpTokenGain returns the token bonus for levels gained in one session.
func LevelUpTokenGain(oldLevel, newLevel int) int {
	gained := newLevel - oldLevel
	if gained < 0 {
		gained = 0
	}
	return gained * TokensPerLevelUp
}

// NormalizeStats clamps a possibly hand-edited or partially decoded stats
// record into a valid one. A missing or bogus level is recomputed from XP.
func NormalizeStats(g domain.GameStats) domain.GameStats {
	if g.XP < 0 {
		g.XP = 0
	}
	if g.Level < 1 {
		g.Level = LevelFromXP(g.XP)
	}
	if g.Tokens < 0 {
		g.Tokens = 0
	}
	if g.QuizzesPlayed < 0 {
		g.QuizzesPlayed = 0
	}
	if g.TotalQuestions < 0 {
		g.TotalQuestions = 0
	}
	if g.TotalAnswered < 0 {
		g.TotalAnswered = 0
	}
	if g.TotalCorrect < 0 {
		g.TotalCorrect = 0
	}
	if g.TotalWrong < 0 {
		g.TotalWrong = 0
	}
	return g
}
