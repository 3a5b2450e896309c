// Package memory is the in-process implementation of repository.SessionRepository.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"img2pdf/internal/lifecycle"
	"img2pdf/internal/model"
	"img2pdf/internal/repository"
)

type entry struct {
	mu      sync.Mutex
	session model.Session
	tracker *lifecycle.Tracker
	gone    bool
}

// SessionMemory keeps sessions in a map. The map lock only guards membership;
// each entry has its own mutex so sessions never contend with each other.
type SessionMemory struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	machine  *lifecycle.Machine
	now      func() time.Time
}

// Option customizes a SessionMemory.
type Option func(*SessionMemory)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SessionMemory) {
		s.now = now
	}
}

// NewSessionMemory creates an empty store whose sessions follow machine.
func NewSessionMemory(machine *lifecycle.Machine, opts ...Option) *SessionMemory {
	s := &SessionMemory{
		sessions: make(map[string]*entry),
		machine:  machine,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.SessionRepository = (*SessionMemory)(nil)

// Create registers a new active session.
func (s *SessionMemory) Create(ctx context.Context, root string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	for s.sessions[id] != nil {
		id = uuid.NewString()
	}
	e := &entry{
		session: model.Session{
			ID:           id,
			WorkingDir:   filepath.Join(root, id),
			CreatedAt:    now,
			LastAccessed: now,
		},
		tracker: s.machine.NewTracker(),
	}
	s.sessions[id] = e
	return e.snapshot(), nil
}

// Get returns a snapshot of the session and marks it accessed.
func (s *SessionMemory) Get(ctx context.Context, id string) (*model.Session, error) {
	var out *model.Session
	err := s.update(ctx, id, func(e *entry) error {
		out = e.snapshot()
		return nil
	})
	return out, err
}

// Append adds records to the end of the image list.
func (s *SessionMemory) Append(ctx context.Context, id string, records ...model.ImageRecord) (string, error) {
	var stale string
	err := s.update(ctx, id, func(e *entry) error {
		if e.tracker.State() == model.StateDocumentReady {
			if err := e.tracker.Fire(lifecycle.EventDocumentCleared); err != nil {
				return err
			}
			stale = e.session.DocumentPath
			e.session.DocumentPath = ""
		}
		e.session.Images = append(e.session.Images, records...)
		return nil
	})
	return stale, err
}

// SetDocumentPath records path as the session's document, provided it was
// assembled from all pages images the session currently holds.
func (s *SessionMemory) SetDocumentPath(ctx context.Context, id, path string, pages int) error {
	return s.update(ctx, id, func(e *entry) error {
		if n := len(e.session.Images); n != pages {
			return fmt.Errorf("%w: %d of %d images", repository.ErrStaleDocument, pages, n)
		}
		if e.tracker.State() == model.StateDocumentReady {
			if err := e.tracker.Fire(lifecycle.EventDocumentCleared); err != nil {
				return err
			}
		}
		if err := e.tracker.Fire(lifecycle.EventDocumentReady); err != nil {
			return err
		}
		e.session.DocumentPath = path
		return nil
	})
}

// ClearDocumentPath drops the recorded document, if any.
func (s *SessionMemory) ClearDocumentPath(ctx context.Context, id string) error {
	return s.update(ctx, id, func(e *entry) error {
		if e.tracker.State() != model.StateDocumentReady {
			return nil
		}
		if err := e.tracker.Fire(lifecycle.EventDocumentCleared); err != nil {
			return err
		}
		e.session.DocumentPath = ""
		return nil
	})
}

// MarkDelivered moves a ready session to delivered.
func (s *SessionMemory) MarkDelivered(ctx context.Context, id string) error {
	return s.update(ctx, id, func(e *entry) error {
		return e.tracker.Fire(lifecycle.EventDelivered)
	})
}

// Touch marks the session accessed.
func (s *SessionMemory) Touch(ctx context.Context, id string) error {
	return s.update(ctx, id, func(*entry) error { return nil })
}

// Remove unregisters the session. Concurrent removals are safe; exactly one reports true.
func (s *SessionMemory) Remove(_ context.Context, id string) (*model.Session, bool) {
	return s.remove(id, func(*entry) bool { return true })
}

// RemoveIdle removes the session only if it has not been accessed since before.
func (s *SessionMemory) RemoveIdle(_ context.Context, id string, before time.Time) (*model.Session, bool) {
	return s.remove(id, func(e *entry) bool {
		return e.session.LastAccessed.Before(before)
	})
}

// Expired lists the ids of sessions last accessed before the cutoff, oldest first.
func (s *SessionMemory) Expired(_ context.Context, before time.Time) []string {
	type idle struct {
		id   string
		last time.Time
	}
	var found []idle
	for _, e := range s.entries() {
		e.mu.Lock()
		if !e.gone && e.session.LastAccessed.Before(before) {
			found = append(found, idle{id: e.session.ID, last: e.session.LastAccessed})
		}
		e.mu.Unlock()
	}
	sort.Slice(found, func(i, j int) bool { return found[i].last.Before(found[j].last) })

	ids := make([]string, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	return ids
}

// List returns snapshots of all live sessions ordered by creation time.
func (s *SessionMemory) List(_ context.Context) []*model.Session {
	var out []*model.Session
	for _, e := range s.entries() {
		e.mu.Lock()
		if !e.gone {
			out = append(out, e.snapshot())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len returns the number of live sessions.
func (s *SessionMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionMemory) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

func (s *SessionMemory) entries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e)
	}
	return out
}

// update runs fn with the session locked and bumps LastAccessed when fn succeeds.
func (s *SessionMemory) update(ctx context.Context, id string, fn func(*entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := s.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone || e.tracker.Final() {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	if err := fn(e); err != nil {
		return err
	}
	e.session.LastAccessed = s.now().UTC()
	return nil
}

func (s *SessionMemory) remove(id string, allow func(*entry) bool) (*model.Session, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone || !allow(e) {
		return nil, false
	}
	e.gone = true
	if !e.tracker.Final() {
		// Delivered sessions keep their final state.
		_ = e.tracker.Fire(lifecycle.EventRemoved)
	}

	s.mu.Lock()
	if s.sessions[id] == e {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	return e.snapshot(), true
}

func (e *entry) snapshot() *model.Session {
	out := e.session.Clone()
	out.State = e.tracker.State()
	return out
}
