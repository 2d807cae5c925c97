package session

import (
	"context"
	"sync"
	"time"

	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"go.uber.org/zap"
)

type entry struct {
	mu      sync.Mutex
	session CallSession
	closed  bool
}

// Store is the in-memory registry of in-flight calls. Sessions are only
// addressed by id; there is no enumeration.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	monitor *Monitor
}

// NewStore creates a store. monitor may be nil.
func NewStore(monitor *Monitor) *Store {
	return &Store{
		entries: make(map[string]*entry),
		monitor: monitor,
	}
}

// Open registers a new session in the Starting state.
func (s *Store) Open(ctx context.Context, cs CallSession) error {
	if cs.Status == "" {
		cs.Status = StatusStarting
	}
	if cs.StartedAt.IsZero() {
		cs.StartedAt = time.Now()
	}

	s.mu.Lock()
	if _, exists := s.entries[cs.ID]; exists {
		s.mu.Unlock()
		return ErrSessionExists
	}
	s.entries[cs.ID] = &entry{session: cs.clone()}
	s.mu.Unlock()

	if s.monitor != nil {
		info := s.monitor.InfoFor(cs)
		go func() {
			regCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := s.monitor.Register(regCtx, info); err != nil {
				logger.ForSession(info.ID).Warn("Failed to register session in Redis", zap.Error(err))
			}
		}()
	}
	return nil
}

// Mutate applies fn to the session atomically with respect to other
// mutations of the same id. If fn returns an error the change is discarded.
func (s *Store) Mutate(id string, fn func(*CallSession) error) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionNotFound
	}

	working := e.session.clone()
	if err := fn(&working); err != nil {
		return err
	}
	e.session = working
	return nil
}

// Get returns a detached snapshot of the session.
func (s *Store) Get(id string) (CallSession, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return CallSession{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return CallSession{}, false
	}
	return e.session.clone(), true
}

// Close removes the session and returns its final snapshot. It waits for an
// in-flight mutation to finish. Only the first Close for an id returns true.
func (s *Store) Close(ctx context.Context, id string) (CallSession, bool) {
	// remove from map first so a duplicate end signal finds nothing
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if !ok {
		return CallSession{}, false
	}

	e.mu.Lock()
	e.closed = true
	final := e.session.clone()
	e.mu.Unlock()

	if s.monitor != nil {
		go func() {
			unregCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := s.monitor.Unregister(unregCtx, id); err != nil {
				logger.ForSession(id).Warn("Failed to unregister session from Redis", zap.Error(err))
			}
		}()
	}
	return final, true
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
