// Package store holds editing sessions. Writes to one session are
// serialized by a per-session mutex and applied to a working copy that is
// committed only when the mutation succeeds; reads load the last committed
// snapshot without taking that mutex.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"frameforge/internal/domain"
)

var ErrNotFound = errors.New("session not found")

// ErrSkip tells Update that fn made no change. Update returns the current
// snapshot without committing or persisting anything.
var ErrSkip = errors.New("skip commit")

// Persister receives every committed snapshot. It is the only durability
// hook; a Store without one keeps sessions for the process lifetime.
type Persister interface {
	Save(ctx context.Context, s domain.Session) error
	LoadAll(ctx context.Context) ([]domain.Session, error)
}

type entry struct {
	mu      sync.Mutex
	current atomic.Pointer[domain.Session]

	// released is set under mu once the slot is removed from the map.
	released bool
}

type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	persister Persister
	now       func() time.Time
}

type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{entries: map[string]*entry{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads every persisted session. It is meant to run once at startup.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	sessions, err := s.persister.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore sessions: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range sessions {
		snap := sessions[i]
		if snap.Answers == nil {
			snap.Answers = map[string]any{}
		}
		e := &entry{}
		e.current.Store(&snap)
		s.entries[snap.ID] = e
	}
	return len(sessions), nil
}

// Get returns a copy of the last committed snapshot.
func (s *Store) Get(id string) (domain.Session, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	snap := e.current.Load()
	if snap == nil {
		return domain.Session{}, ErrNotFound
	}
	return snap.Clone(), nil
}

// List returns all committed sessions, oldest first.
func (s *Store) List() []domain.Session {
	s.mu.RLock()
	out := make([]domain.Session, 0, len(s.entries))
	for _, e := range s.entries {
		if snap := e.current.Load(); snap != nil {
			out = append(out, snap.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update runs fn on a working copy of the session while holding the
// session's write lock. When create is true a missing session starts in
// AWAITING_PROMPT. If fn or the persister fails, nothing is committed, and
// a session that never committed leaves no trace in the store.
func (s *Store) Update(ctx context.Context, id string, create bool, fn func(*domain.Session) error) (domain.Session, error) {
	if id == "" {
		return domain.Session{}, errors.New("session id is required")
	}
	for {
		e, err := s.entry(id, create)
		if err != nil {
			return domain.Session{}, err
		}
		e.mu.Lock()
		if e.released {
			// Another caller dropped this slot while we waited; start over.
			e.mu.Unlock()
			continue
		}
		sess, err := s.apply(ctx, id, e, create, fn)
		e.mu.Unlock()
		return sess, err
	}
}

// apply runs with e.mu held.
func (s *Store) apply(ctx context.Context, id string, e *entry, create bool, fn func(*domain.Session) error) (domain.Session, error) {
	var working domain.Session
	snap := e.current.Load()
	switch {
	case snap != nil:
		working = snap.Clone()
	case create:
		working = domain.NewSession(id, s.now().UTC())
	default:
		s.release(id, e)
		return domain.Session{}, ErrNotFound
	}
	if err := fn(&working); err != nil {
		if errors.Is(err, ErrSkip) {
			if snap != nil {
				return snap.Clone(), nil
			}
			s.release(id, e)
			return domain.NewSession(id, s.now().UTC()), nil
		}
		if snap == nil {
			s.release(id, e)
		}
		return domain.Session{}, err
	}
	working.UpdatedAt = s.now().UTC()
	if s.persister != nil {
		if err := s.persister.Save(ctx, working); err != nil {
			if snap == nil {
				s.release(id, e)
			}
			return domain.Session{}, fmt.Errorf("persist session %s: %w", id, err)
		}
	}
	committed := working.Clone()
	e.current.Store(&committed)
	return working, nil
}

// release removes a slot that never committed. The caller holds e.mu.
func (s *Store) release(id string, e *entry) {
	e.released = true
	s.mu.Lock()
	if s.entries[id] == e {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

func (s *Store) entry(id string, create bool) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}
	if !create {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e, nil
	}
	e = &entry{}
	s.entries[id] = e
	return e, nil
}

// Len counts sessions with at least one committed snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.current.Load() != nil {
			n++
		}
	}
	return n
}
