package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// RunStore implements run persistence using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new PostgreSQL-backed run store.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

func (s *RunStore) Create(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO runs (id, user_id, module, current_problem, current_subproblem,
			complete, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		run.ID, run.UserID, run.Module, run.CurrentProblem, run.CurrentSubproblem,
		run.Complete, run.StartedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, user_id, module, current_problem, current_subproblem,
			complete, started_at, updated_at
		FROM runs WHERE id = $1
	`
	run := &domain.Run{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.UserID, &run.Module,
		&run.CurrentProblem, &run.CurrentSubproblem,
		&run.Complete, &run.StartedAt, &run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *RunStore) FindIncomplete(ctx context.Context, userID uuid.UUID, module int) (*domain.Run, error) {
	query := `
		SELECT id, user_id, module, current_problem, current_subproblem,
			complete, started_at, updated_at
		FROM runs
		WHERE user_id = $1 AND module = $2 AND complete = false
		ORDER BY updated_at DESC
		LIMIT 1
	`
	run := &domain.Run{}
	err := s.pool.QueryRow(ctx, query, userID, module).Scan(
		&run.ID, &run.UserID, &run.Module,
		&run.CurrentProblem, &run.CurrentSubproblem,
		&run.Complete, &run.StartedAt, &run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find incomplete run: %w", err)
	}
	return run, nil
}

func (s *RunStore) SavePosition(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE runs
		SET current_problem = $1, current_subproblem = $2, complete = $3, updated_at = $4
		WHERE id = $5
	`
	tag, err := s.pool.Exec(ctx, query,
		run.CurrentProblem, run.CurrentSubproblem, run.Complete, run.UpdatedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

var _ domain.RunStore = (*RunStore)(nil)
