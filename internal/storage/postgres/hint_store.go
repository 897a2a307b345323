package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// HintStore implements hint usage persistence using PostgreSQL.
type HintStore struct {
	pool *pgxpool.Pool
}

// NewHintStore creates a new PostgreSQL-backed hint store.
func NewHintStore(pool *pgxpool.Pool) *HintStore {
	return &HintStore{pool: pool}
}

func (s *HintStore) Append(ctx context.Context, usage *domain.HintUsage) error {
	query := `
		INSERT INTO hint_usage (id, user_id, module, run_id, problem_index,
			subproblem_index, level, hint, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		usage.ID, usage.UserID, usage.Module, usage.RunID,
		usage.ProblemIndex, usage.SubproblemIndex,
		usage.Level, usage.Hint, usage.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert hint usage: %w", err)
	}
	return nil
}

func (s *HintStore) ListByKey(ctx context.Context, runID uuid.UUID, problem, subproblem int) ([]*domain.HintUsage, error) {
	query := `
		SELECT id, user_id, module, run_id, problem_index, subproblem_index,
			level, hint, requested_at
		FROM hint_usage
		WHERE run_id = $1 AND problem_index = $2 AND subproblem_index = $3
		ORDER BY requested_at, id
	`
	rows, err := s.pool.Query(ctx, query, runID, problem, subproblem)
	if err != nil {
		return nil, fmt.Errorf("list hint usage: %w", err)
	}
	defer rows.Close()

	var usages []*domain.HintUsage
	for rows.Next() {
		var u domain.HintUsage
		if err := rows.Scan(
			&u.ID, &u.UserID, &u.Module, &u.RunID,
			&u.ProblemIndex, &u.SubproblemIndex,
			&u.Level, &u.Hint, &u.RequestedAt,
		); err != nil {
			return nil, fmt.Errorf("scan hint usage: %w", err)
		}
		usages = append(usages, &u)
	}
	return usages, rows.Err()
}

var _ domain.HintStore = (*HintStore)(nil)
