package app

import (
	"sync"
	"time"
)

// autoAdvancer defers a single "move to the next question" action, keyed
// by the question id it was scheduled for. Scheduling again or cancelling
// stops the pending timer, so a stale advance can never fire after the
// question changed for another reason. The fire callback still receives
// the key and must re-check it against the live session.
type autoAdvancer struct {
	mu         sync.Mutex
	timer      *time.Timer
	questionID string
}

func (a *autoAdvancer) Schedule(questionID string, delay time.Duration, fn func(questionID string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.questionID = questionID
	a.timer = time.AfterFunc(delay, func() {
		a.mu.Lock()
		stale := a.questionID != questionID
		a.mu.Unlock()
		if stale {
			return
		}
		fn(questionID)
	})
}

func (a *autoAdvancer) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.questionID = ""
}
