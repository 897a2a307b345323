package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// TimerStore implements timed-session persistence backed by SQLite.
type TimerStore struct {
	db *DB
}

// NewTimerStore creates a new SQLite-backed timer store.
func NewTimerStore(db *DB) *TimerStore {
	return &TimerStore{db: db}
}

// Create inserts an open timed session.
func (s *TimerStore) Create(ctx context.Context, session *domain.TimedSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO time_logs (id, user_id, module, run_id, problem_index,
			subproblem_index, hint_level, kind, started_at, ended_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Module, session.RunID,
		session.ProblemIndex, session.SubproblemIndex, session.HintLevel,
		string(session.Kind), session.StartedAt,
		nullTime(session.EndedAt), session.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("insert timed session: %w", err)
	}
	return nil
}

// Get retrieves a timed session by ID.
func (s *TimerStore) Get(ctx context.Context, id uuid.UUID) (*domain.TimedSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, module, run_id, problem_index, subproblem_index,
			hint_level, kind, started_at, ended_at, duration_seconds
		FROM time_logs WHERE id = ?`, id)

	var sess domain.TimedSession
	var kind string
	var endedAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Module, &sess.RunID,
		&sess.ProblemIndex, &sess.SubproblemIndex,
		&sess.HintLevel, &kind, &sess.StartedAt, &endedAt, &sess.DurationSeconds,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTimerNotFound
		}
		return nil, fmt.Errorf("scan timed session: %w", err)
	}

	sess.Kind = domain.TimerKind(kind)
	sess.StartedAt = sess.StartedAt.UTC()
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		sess.EndedAt = &t
	}
	return &sess, nil
}

// Close ends a session. Closing an already-ended session leaves the first
// close in place, so the teardown beacon can race a normal end.
func (s *TimerStore) Close(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSeconds int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE time_logs
		SET ended_at = ?, duration_seconds = ?
		WHERE id = ? AND ended_at IS NULL`,
		endedAt.UTC(), durationSeconds, id,
	)
	if err != nil {
		return fmt.Errorf("close timed session: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		// Already closed, or never existed. Distinguish for the caller.
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM time_logs WHERE id = ?", id).Scan(&count); err != nil {
			return fmt.Errorf("check timed session: %w", err)
		}
		if count == 0 {
			return domain.ErrTimerNotFound
		}
	}
	return nil
}

// nullTime converts a *time.Time to sql.NullTime for storage.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
