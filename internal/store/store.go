// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
)

// ErrNotFound is returned when mutating a session that does not exist.
var ErrNotFound = errors.New("session not found")

// SessionStore is the keyed record of coaching sessions. Implementations own
// their concurrency: every mutation is atomic with respect to reads of the
// same session.
type SessionStore interface {
	// Get returns a snapshot of a session, or nil if it does not exist.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Current returns the session the key currently points to, or nil.
	Current(ctx context.Context, key domain.SessionKey) (*domain.Session, error)

	// Create seeds a session for key. A current session without turns is
	// reseeded in place; otherwise a new session replaces it as current.
	Create(ctx context.Context, key domain.SessionKey, seed Seed) (*domain.Session, error)

	// AppendTurn records an accepted turn and rewrites the next prompt.
	AppendTurn(ctx context.Context, sessionID string, turn domain.Turn, rewrite string) (*domain.Session, error)

	// RecordRejection records a reply that failed verification.
	RecordRejection(ctx context.Context, sessionID string, rejection domain.Rejection) error

	// Finalize attaches the closing letter.
	Finalize(ctx context.Context, sessionID string, letter domain.Letter) (*domain.Session, error)

	// List returns session summaries, newest first.
	List(ctx context.Context, filter Filter) ([]domain.Summary, error)

	// Ping verifies the durable backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the durable backend.
	Close() error
}

// Seed is the generated start of a session.
type Seed struct {
	Situation       string
	Prompts         []string
	InitialDistance int
}

// Filter narrows List results.
type Filter struct {
	Nickname string
}

// Backend durably stores whole session documents.
type Backend interface {
	// Save atomically replaces the stored document for s.ID.
	Save(ctx context.Context, s *domain.Session) error

	// LoadAll reads every stored session.
	LoadAll(ctx context.Context) ([]*domain.Session, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
