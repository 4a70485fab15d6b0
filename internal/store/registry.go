package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/google/uuid"
)

// Registry is a SessionStore that keeps every session in memory and writes
// each change through to a Backend. The in-memory copy is authoritative: a
// failed write is logged and the request proceeds.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	current  map[domain.SessionKey]string

	backend Backend
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	persistFailures atomic.Int64
}

// entry serializes writers of one session. Readers load the snapshot pointer
// without locking and never see a partially applied change.
type entry struct {
	mu   sync.Mutex
	snap atomic.Pointer[domain.Session]
}

// NewRegistry loads all sessions from backend.
func NewRegistry(ctx context.Context, backend Backend, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		sessions: make(map[string]*entry),
		current:  make(map[domain.SessionKey]string),
		backend:  backend,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}

	loaded, err := backend.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, s := range loaded {
		e := &entry{}
		e.snap.Store(s)
		r.sessions[s.ID] = e

		key := s.Key()
		if cur, ok := r.current[key]; ok {
			if r.sessions[cur].snap.Load().CreatedAt.After(s.CreatedAt) {
				continue
			}
		}
		r.current[key] = s.ID
	}
	logger.Info("Sessions loaded", "count", len(loaded))
	return r, nil
}

// Get returns a snapshot of a session, or nil if it does not exist.
func (r *Registry) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return e.snap.Load().Clone(), nil
}

// Current returns the session key points to, or nil.
func (r *Registry) Current(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	r.mu.RLock()
	id, ok := r.current[key]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.Get(ctx, id)
}

// Create seeds the current session for key, or starts a new one when the
// current session already has turns.
func (r *Registry) Create(ctx context.Context, key domain.SessionKey, seed Seed) (*domain.Session, error) {
	r.mu.Lock()
	e := r.reusable(key)
	if e == nil {
		now := r.now()
		s := domain.NewSession(r.allocateID(key), key, now)
		e = &entry{}
		e.snap.Store(s)
		r.sessions[s.ID] = e
		r.current[key] = s.ID
		r.logger.Info("Session created", "session_id", s.ID, "session_key", key.String())
	}
	r.mu.Unlock()

	return r.mutate(ctx, e, func(s *domain.Session) error {
		return s.Seed(seed.Situation, seed.Prompts, seed.InitialDistance, r.now())
	})
}

// reusable returns the current entry for key if it has not started. Caller holds r.mu.
func (r *Registry) reusable(key domain.SessionKey) *entry {
	id, ok := r.current[key]
	if !ok {
		return nil
	}
	e := r.sessions[id]
	s := e.snap.Load()
	if len(s.Turns) > 0 || s.Feedback != nil {
		return nil
	}
	return e
}

// allocateID uses the room id when it names a room and is free. Caller holds r.mu.
func (r *Registry) allocateID(key domain.SessionKey) string {
	if key.Room != domain.DefaultRoom {
		if _, taken := r.sessions[key.Room]; !taken {
			return key.Room
		}
	}
	return r.newID()
}

// AppendTurn records an accepted turn.
func (r *Registry) AppendTurn(ctx context.Context, sessionID string, turn domain.Turn, rewrite string) (*domain.Session, error) {
	e, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return r.mutate(ctx, e, func(s *domain.Session) error {
		return s.ApplyTurn(turn, rewrite)
	})
}

// RecordRejection records a reply that failed verification.
func (r *Registry) RecordRejection(ctx context.Context, sessionID string, rejection domain.Rejection) error {
	e, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	_, err = r.mutate(ctx, e, func(s *domain.Session) error {
		s.Reject(rejection)
		return nil
	})
	return err
}

// Finalize attaches the closing letter.
func (r *Registry) Finalize(ctx context.Context, sessionID string, letter domain.Letter) (*domain.Session, error) {
	e, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return r.mutate(ctx, e, func(s *domain.Session) error {
		return s.Finalize(letter)
	})
}

// List returns session summaries, newest first.
func (r *Registry) List(_ context.Context, filter Filter) ([]domain.Summary, error) {
	r.mu.RLock()
	out := make([]domain.Summary, 0, len(r.sessions))
	for _, e := range r.sessions {
		s := e.snap.Load()
		if filter.Nickname != "" && s.UserNickname != filter.Nickname {
			continue
		}
		out = append(out, s.Summarize())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Ping verifies the backend is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	return r.backend.Ping(ctx)
}

// Close closes the backend.
func (r *Registry) Close() error {
	return r.backend.Close()
}

// PersistFailures counts writes that failed since start.
func (r *Registry) PersistFailures() int64 {
	return r.persistFailures.Load()
}

func (r *Registry) lookup(sessionID string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// mutate applies fn to a copy of the session, publishes the copy, then writes
// it through. Writers of one session are serialized so writes land in order.
func (r *Registry) mutate(ctx context.Context, e *entry, fn func(*domain.Session) error) (*domain.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.snap.Load().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.snap.Store(next)

	if err := r.backend.Save(ctx, next); err != nil {
		r.persistFailures.Add(1)
		r.logger.Error("Session write failed, in-memory state kept (durability gap)",
			"session_id", next.ID,
			"error", err,
		)
	}
	return next.Clone(), nil
}
