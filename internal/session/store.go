// Package session provides a bounded, concurrency-safe store for multi-turn
// diagnostic conversations. The store enforces a fixed capacity with
// least-recently-used eviction so conversation state never grows without
// bound under sustained load.
package session

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/xilian/diagnostics-service/internal/models"
)

// ErrSessionNotFound is returned when appending to a session that does not
// exist (or was evicted). Callers must GetOrCreate first.
var ErrSessionNotFound = errors.New("session not found")

// DefaultCapacity is the session count the store holds when not configured
const DefaultCapacity = 1000

// entry pairs a session with its per-session lock. The structure lock
// (Store.mu) guards the map and the LRU list; the entry lock serializes
// turn appends on one session without blocking other sessions.
type entry struct {
	mu      sync.Mutex
	session *models.DiagnosticSession
	elem    *list.Element
}

// Store is a fixed-capacity LRU cache of diagnostic sessions
type Store struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*entry
	order    *list.List // front = most recently used, values are session IDs
}

// NewStore creates a session store with the given capacity.
// Non-positive capacities fall back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		entries:  make(map[string]*entry, capacity),
		order:    list.New(),
	}
}

// Get returns a copy of the session and marks it recently used.
// The second return is false when the session is absent or was evicted.
func (s *Store) Get(sessionID string) (*models.DiagnosticSession, bool) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	s.order.MoveToFront(e.elem)
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.LastAccessed = time.Now().UTC()
	return copySession(e.session), true
}

// GetOrCreate returns the existing session or creates an empty one. Creating
// beyond capacity evicts the least-recently-used entry atomically with the
// insertion, so the store never exceeds its capacity.
func (s *Store) GetOrCreate(sessionID, deviceCode string, mode models.DiagnoseMode) *models.DiagnosticSession {
	s.mu.Lock()
	if e, ok := s.entries[sessionID]; ok {
		s.order.MoveToFront(e.elem)
		s.mu.Unlock()

		e.mu.Lock()
		defer e.mu.Unlock()
		e.session.LastAccessed = time.Now().UTC()
		return copySession(e.session)
	}

	if len(s.entries) >= s.capacity {
		s.evictOldestLocked()
	}

	sess := &models.DiagnosticSession{
		SessionID:    sessionID,
		DeviceCode:   deviceCode,
		Mode:         mode,
		Turns:        nil,
		LastAccessed: time.Now().UTC(),
	}
	e := &entry{session: sess}
	e.elem = s.order.PushFront(sessionID)
	s.entries[sessionID] = e
	s.mu.Unlock()

	return copySession(sess)
}

// Append adds a turn to an existing session. Appends on one session are
// serialized; appends on different sessions proceed concurrently.
func (s *Store) Append(sessionID string, turn models.DiagnosticTurn) error {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	s.order.MoveToFront(e.elem)
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Turns are strictly ordered by append sequence; a stale clock must
	// not let a turn appear to precede the one before it.
	if n := len(e.session.Turns); n > 0 && turn.Timestamp.Before(e.session.Turns[n-1].Timestamp) {
		turn.Timestamp = e.session.Turns[n-1].Timestamp
	}
	e.session.Turns = append(e.session.Turns, turn)
	e.session.LastAccessed = time.Now().UTC()
	return nil
}

// Clear removes a session and reports whether it existed
func (s *Store) Clear(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return false
	}
	s.order.Remove(e.elem)
	delete(s.entries, sessionID)
	return true
}

// Len returns the current session count
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Capacity returns the configured maximum session count
func (s *Store) Capacity() int {
	return s.capacity
}

// ModeCounts returns the number of live sessions per diagnosis mode
func (s *Store) ModeCounts() map[models.DiagnoseMode]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.DiagnoseMode]int)
	for _, e := range s.entries {
		counts[e.session.Mode]++
	}
	return counts
}

// evictOldestLocked removes the least-recently-used entry. Caller holds s.mu.
func (s *Store) evictOldestLocked() {
	oldest := s.order.Back()
	if oldest == nil {
		return
	}
	sessionID := oldest.Value.(string)
	s.order.Remove(oldest)
	delete(s.entries, sessionID)
}

// copySession returns a defensive copy so callers cannot mutate store state
func copySession(sess *models.DiagnosticSession) *models.DiagnosticSession {
	out := *sess
	out.Turns = make([]models.DiagnosticTurn, len(sess.Turns))
	copy(out.Turns, sess.Turns)
	return &out
}
