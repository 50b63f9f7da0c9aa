package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store holds all live sessions in memory. Sessions do not survive a
// restart and are swept after a configurable idle TTL; persistence across
// sessions is deliberately absent.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Document
	ttl      time.Duration
	metrics  *Metrics
}

// NewStore creates an empty session store. Sessions idle longer than ttl
// are removed by Sweep. A nil metrics collector disables instrumentation.
func NewStore(ttl time.Duration, metrics *Metrics) *Store {
	return &Store{
		sessions: make(map[string]*Document),
		ttl:      ttl,
		metrics:  metrics,
	}
}

// Create adds a new empty session and returns it.
func (s *Store) Create() *Document {
	doc := NewDocument(s.metrics)

	s.mu.Lock()
	s.sessions[doc.ID()] = doc
	active := len(s.sessions)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveSessionCreated(active)
	}
	return doc
}

// Get returns the session with the given ID.
func (s *Store) Get(id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return doc, nil
}

// Delete removes a session explicitly.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	active := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if s.metrics != nil {
		s.metrics.ObserveSessionRemoved(active, false)
	}
	return nil
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle longer than the store TTL and returns how
// many were removed.
func (s *Store) Sweep() int {
	return s.sweepBefore(time.Now().UTC().Add(-s.ttl))
}

// sweepBefore removes sessions whose last activity predates the cutoff.
func (s *Store) sweepBefore(cutoff time.Time) int {
	s.mu.Lock()
	var expired []string
	for id, doc := range s.sessions {
		doc.mu.Lock()
		idle := doc.lastActive.Before(cutoff)
		doc.mu.Unlock()
		if idle {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.sessions, id)
	}
	active := len(s.sessions)
	s.mu.Unlock()

	if s.metrics != nil {
		for range expired {
			s.metrics.ObserveSessionRemoved(active, true)
		}
	}
	return len(expired)
}

// RunSweeper sweeps on the given interval until the context is canceled.
// Intended to run in its own goroutine from main.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Info("swept idle sessions", "expired", n, "active", s.Count())
			}
		}
	}
}
