package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// RunStore implements run persistence backed by SQLite.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new SQLite-backed run store.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// Create inserts a fresh run.
func (s *RunStore) Create(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, user_id, module, current_problem, current_subproblem,
			complete, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, run.Module, run.CurrentProblem, run.CurrentSubproblem,
		run.Complete, run.StartedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, module, current_problem, current_subproblem,
			complete, started_at, updated_at
		FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// FindIncomplete returns the most recently updated incomplete run for
// (user, module).
func (s *RunStore) FindIncomplete(ctx context.Context, userID uuid.UUID, module int) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, module, current_problem, current_subproblem,
			complete, started_at, updated_at
		FROM runs
		WHERE user_id = ? AND module = ? AND complete = 0
		ORDER BY updated_at DESC
		LIMIT 1`, userID, module)
	return scanRun(row)
}

// SavePosition persists the run's position and completion flag.
func (s *RunStore) SavePosition(ctx context.Context, run *domain.Run) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET current_problem = ?, current_subproblem = ?, complete = ?, updated_at = ?
		WHERE id = ?`,
		run.CurrentProblem, run.CurrentSubproblem, run.Complete, run.UpdatedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run position: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func scanRun(row *sql.Row) (*domain.Run, error) {
	var run domain.Run
	err := row.Scan(
		&run.ID, &run.UserID, &run.Module,
		&run.CurrentProblem, &run.CurrentSubproblem,
		&run.Complete, &run.StartedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = run.StartedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()
	return &run, nil
}
