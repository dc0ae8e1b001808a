// Package history persists repair sessions and their execution attempts so
// the HTTP gateway can serve past runs. The sandbox itself keeps no durable
// state — everything recorded here is written by the callers that own the
// session.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is one recorded repair run.
type Session struct {
	ID        uuid.UUID `json:"id"`
	ClientID  string    `json:"client_id"`
	Prompt    string    `json:"prompt"`
	State     string    `json:"state"` // Terminal repair state.
	Code      string    `json:"code"`  // Final code text.
	Attempts  []Attempt `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// Attempt is one execution within a session.
type Attempt struct {
	Seq       int           `json:"seq"` // 0-based position in the session.
	Code      string        `json:"code"`
	Outcome   string        `json:"outcome"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	Elapsed   time.Duration `json:"elapsed"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store persists sessions. Both the SQLite and PostgreSQL backends implement
// it through the shared GORM store.
type Store interface {
	// SaveSession records a completed session with all its attempts.
	SaveSession(ctx context.Context, session *Session) error
	// GetSession loads a session and its attempts, oldest attempt first.
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	// ListSessions returns the most recent sessions for a client,
	// newest first, without attempt bodies.
	ListSessions(ctx context.Context, clientID string, limit int) ([]*Session, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// Record converts a finished repair session into a history Session and saves
// it. A nil store makes this a no-op, so callers never branch on persistence
// being configured.
func Record(ctx context.Context, store Store, session *Session) error {
	if store == nil {
		return nil
	}
	return store.SaveSession(ctx, session)
}
