package memory

import (
	"sync"

	"trivia-quiz-service/internal/app"
)

// SessionRepo is an in-memory implementation of app.SessionRepository,
// one live quiz session per user.
type SessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		sessions: make(map[string]*app.Session),
	}
}

func (r *SessionRepo) GetOrCreate(userID string) *app.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[userID]; ok {
		return session
	}
	session := app.NewSession()
	r.sessions[userID] = session
	return session
}

func (r *SessionRepo) Get(userID string) (*app.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[userID]
	return session, ok
}

func (r *SessionRepo) Delete(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}
