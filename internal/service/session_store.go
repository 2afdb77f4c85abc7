package service

import (
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
)

// Session is the in-memory record of one dialogue. turnMu serializes turns
// and guards started and closed; mu guards the other fields and is only held
// briefly.
type Session struct {
	turnMu sync.Mutex
	mu     sync.Mutex

	// started is set once session_started has been published.
	started bool
	// closed is set when the session leaves the store. Whoever acquires
	// turnMu on a closed session must look the id up again.
	closed bool

	ID         string
	State      *domain.MultiAgentState
	Observer   *domain.ObserverState
	CreatedAt  time.Time
	LastActive time.Time
	Turns      int
	Completed  bool
}

// snapshot returns copies of the committed dialogue and observer state.
func (s *Session) snapshot() (*domain.MultiAgentState, *domain.ObserverState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State.Clone(), s.Observer.Clone()
}

// commit installs the result of a turn.
func (s *Session) commit(st *domain.MultiAgentState, obs *domain.ObserverState, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = st
	s.Observer = obs
	s.Turns++
	s.LastActive = now
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.LastActive)
}

// SessionView is a read-only copy of a session.
type SessionView struct {
	ID         string                  `json:"session_id"`
	State      *domain.MultiAgentState `json:"state"`
	CreatedAt  time.Time               `json:"created_at"`
	LastActive time.Time               `json:"last_active"`
	Turns      int                     `json:"turns"`
	Completed  bool                    `json:"completed"`
}

func (s *Session) view() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		ID:         s.ID,
		State:      s.State.Clone(),
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive,
		Turns:      s.Turns,
		Completed:  s.Completed,
	}
}

// SessionStore holds live sessions keyed by id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it when absent. The bool
// reports whether it was created.
func (s *SessionStore) GetOrCreate(id string, now time.Time) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}
	sess := &Session{
		ID:         id,
		State:      domain.NewMultiAgentState(id),
		Observer:   domain.NewObserverState(id),
		CreatedAt:  now,
		LastActive: now,
	}
	s.sessions[id] = sess
	return sess, true
}

func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Acquire returns the live session for id with its turn lock held, creating
// it when absent. The caller unlocks sess.turnMu.
func (s *SessionStore) Acquire(id string, now time.Time) *Session {
	for {
		sess, _ := s.GetOrCreate(id, now)
		sess.turnMu.Lock()
		if !sess.closed {
			return sess
		}
		sess.turnMu.Unlock()
	}
}

// Lock is Acquire for an existing session. It reports false when id is not
// in the store.
func (s *SessionStore) Lock(id string) (*Session, bool) {
	for {
		sess, ok := s.Get(id)
		if !ok {
			return nil, false
		}
		sess.turnMu.Lock()
		if !sess.closed {
			return sess, true
		}
		sess.turnMu.Unlock()
	}
}

// Close marks sess closed and removes it from the store. The caller holds
// sess.turnMu, so a turn waiting on it starts over on a fresh session.
func (s *SessionStore) Close(sess *Session) {
	sess.closed = true
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.ID] == sess {
		delete(s.sessions, sess.ID)
	}
}

// List returns views of every session, most recently active first.
func (s *SessionStore) List() []SessionView {
	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	out := make([]SessionView, 0, len(all))
	for _, sess := range all {
		out = append(out, sess.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	return out
}

// Idle returns the ids of sessions inactive for longer than ttl.
func (s *SessionStore) Idle(ttl time.Duration, now time.Time) []string {
	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	var out []string
	for _, sess := range all {
		if sess.idleSince(now) > ttl {
			out = append(out, sess.ID)
		}
	}
	sort.Strings(out)
	return out
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
