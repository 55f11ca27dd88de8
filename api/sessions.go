package api

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/aswathylr-builds/storefront-checkout/checkout"
	"github.com/aswathylr-builds/storefront-checkout/gateway"
)

// entry is one live checkout together with its routing state
type entry struct {
	session  *checkout.Session
	bridge   *gateway.RecordingBridge
	router   *gateway.Router
	owner    string
	lastSeen time.Time
}

// ownedBy reports whether token is the one the session was created with
func (e *entry) ownedBy(token string) bool {
	return subtle.ConstantTimeCompare([]byte(e.owner), []byte(token)) == 1
}

// sessionStore keeps live checkouts in memory. Idle ones are closed by Sweep.
type sessionStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *sessionStore) put(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.lastSeen = s.now()
	s.entries[e.session.ID()] = e
}

func (s *sessionStore) get(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if ok {
		e.lastSeen = s.now()
	}
	return e, ok
}

// remove closes the session so late backend answers are dropped
func (s *sessionStore) remove(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if ok {
		e.session.Close()
	}
	return ok
}

// sweep closes sessions idle for longer than idle and returns how many went
func (s *sessionStore) sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var stale []*entry
	for id, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, e := range stale {
		e.session.Close()
	}
	return len(stale)
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
