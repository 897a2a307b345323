package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStore persists progress runs.
type RunStore interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id uuid.UUID) (*Run, error)
	// FindIncomplete returns the most recently updated incomplete run for
	// (user, module), or ErrRunNotFound.
	FindIncomplete(ctx context.Context, userID uuid.UUID, module int) (*Run, error)
	// SavePosition persists the run's current position and completion flag.
	SavePosition(ctx context.Context, run *Run) error
}

// ChatStore persists the append-only conversation transcript.
type ChatStore interface {
	Append(ctx context.Context, entry *ChatEntry) error
	// ListByRun returns all entries for (user, module, run) ordered by sent
	// time ascending.
	ListByRun(ctx context.Context, userID uuid.UUID, module int, runID uuid.UUID) ([]*ChatEntry, error)
}

// HintStore persists hint usage records.
type HintStore interface {
	Append(ctx context.Context, usage *HintUsage) error
	// ListByKey returns usage rows for (run, problem, subproblem) in
	// insertion order.
	ListByKey(ctx context.Context, runID uuid.UUID, problem, subproblem int) ([]*HintUsage, error)
}

// TimerStore persists timed sessions. Close must be idempotent: closing an
// already-ended session is a no-op, since the teardown beacon can race a
// normal end.
type TimerStore interface {
	Create(ctx context.Context, session *TimedSession) error
	Get(ctx context.Context, id uuid.UUID) (*TimedSession, error)
	Close(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSeconds int) error
}

// TokenStore resolves bearer tokens to user identities.
type TokenStore interface {
	// UserIDByToken returns the user owning the token, or ErrUnauthenticated.
	UserIDByToken(ctx context.Context, token string) (uuid.UUID, error)
}
