package memory

import (
	"fmt"
	"sync"
	"time"

	"gardener-chat-be/pkg/store"
)

// SessionRepository is the process-wide table of live chat sessions.
//
// Every session in the table has a heartbeat record: one is stamped on creation and
// both are removed together.
type SessionRepository struct {
	mu         sync.RWMutex
	sessions   map[string]*store.Session
	heartbeats *HeartbeatRepository
	now        func() time.Time
}

func NewSessionRepository(heartbeats *HeartbeatRepository) *SessionRepository {
	return NewSessionRepositoryWithClock(heartbeats, time.Now)
}

func NewSessionRepositoryWithClock(heartbeats *HeartbeatRepository, now func() time.Time) *SessionRepository {
	return &SessionRepository{
		sessions:   make(map[string]*store.Session),
		heartbeats: heartbeats,
		now:        now,
	}
}

// GetOrCreate returns the session for sessionID, creating it for userID if absent.
// created is true only for the call that inserted the session.
func (r *SessionRepository) GetOrCreate(userID, sessionID string) (sess *store.Session, created bool, err error) {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		// Re-check under the write lock, another caller may have inserted it.
		if sess, ok = r.sessions[sessionID]; !ok {
			now := r.now()
			sess = store.NewSession(userID, sessionID, now)
			r.sessions[sessionID] = sess
			r.heartbeats.Touch(sessionID, now)
			created = true
		}
		r.mu.Unlock()
	}

	if sess.UserID != userID {
		return nil, false, fmt.Errorf("session %s: %w", sessionID, store.ErrSessionOwnership)
	}
	return sess, created, nil
}

func (r *SessionRepository) Find(sessionID string) (*store.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[sessionID]
	return sess, ok
}

// Contains reports whether sess is still the live entry for its id.
func (r *SessionRepository) Contains(sess *store.Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sess.ID] == sess
}

// FindByUser returns the oldest-active session owned by userID.
func (r *SessionRepository) FindByUser(userID string) (*store.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *store.Session
	for _, sess := range r.sessions {
		if sess.UserID != userID {
			continue
		}
		if found == nil || sess.LastActivity().Before(found.LastActivity()) {
			found = sess
		}
	}
	return found, found != nil
}

// Heartbeat refreshes the last-seen time of a live session.
// It returns false, recording nothing, when the session is not in the table.
func (r *SessionRepository) Heartbeat(sessionID string, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	r.heartbeats.Touch(sessionID, now)
	return true
}

// Remove deletes the session and its heartbeat record. Removing an unknown id is a no-op.
func (r *SessionRepository) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	r.heartbeats.Remove(sessionID)
	return true
}

// RemoveSession deletes sess only if it is still the live entry for its id.
func (r *SessionRepository) RemoveSession(sess *store.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[sess.ID] != sess {
		return false
	}
	delete(r.sessions, sess.ID)
	r.heartbeats.Remove(sess.ID)
	return true
}

// All returns a snapshot of the live sessions.
func (r *SessionRepository) All() []*store.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*store.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

func (r *SessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Heartbeats exposes the tracker for liveness queries.
func (r *SessionRepository) Heartbeats() *HeartbeatRepository {
	return r.heartbeats
}

// Clear empties the table. Called at shutdown.
func (r *SessionRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.sessions {
		r.heartbeats.Remove(id)
	}
	r.sessions = make(map[string]*store.Session)
}
