package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// TimerStore implements timed-session persistence using PostgreSQL.
type TimerStore struct {
	pool *pgxpool.Pool
}

// NewTimerStore creates a new PostgreSQL-backed timer store.
func NewTimerStore(pool *pgxpool.Pool) *TimerStore {
	return &TimerStore{pool: pool}
}

func (s *TimerStore) Create(ctx context.Context, session *domain.TimedSession) error {
	query := `
		INSERT INTO time_logs (id, user_id, module, run_id, problem_index,
			subproblem_index, hint_level, kind, started_at, ended_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(ctx, query,
		session.ID, session.UserID, session.Module, session.RunID,
		session.ProblemIndex, session.SubproblemIndex, session.HintLevel,
		string(session.Kind), session.StartedAt, session.EndedAt, session.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("insert timed session: %w", err)
	}
	return nil
}

func (s *TimerStore) Get(ctx context.Context, id uuid.UUID) (*domain.TimedSession, error) {
	query := `
		SELECT id, user_id, module, run_id, problem_index, subproblem_index,
			hint_level, kind, started_at, ended_at, duration_seconds
		FROM time_logs WHERE id = $1
	`
	sess := &domain.TimedSession{}
	var kind string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.UserID, &sess.Module, &sess.RunID,
		&sess.ProblemIndex, &sess.SubproblemIndex,
		&sess.HintLevel, &kind, &sess.StartedAt, &sess.EndedAt, &sess.DurationSeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTimerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get timed session: %w", err)
	}
	sess.Kind = domain.TimerKind(kind)
	return sess, nil
}

// Close ends a session; a second close is a no-op so the teardown beacon can
// race a normal end.
func (s *TimerStore) Close(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSeconds int) error {
	query := `
		UPDATE time_logs
		SET ended_at = $1, duration_seconds = $2
		WHERE id = $3 AND ended_at IS NULL
	`
	tag, err := s.pool.Exec(ctx, query, endedAt.UTC(), durationSeconds, id)
	if err != nil {
		return fmt.Errorf("close timed session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var count int
		if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM time_logs WHERE id = $1", id).Scan(&count); err != nil {
			return fmt.Errorf("check timed session: %w", err)
		}
		if count == 0 {
			return domain.ErrTimerNotFound
		}
	}
	return nil
}

var _ domain.TimerStore = (*TimerStore)(nil)
