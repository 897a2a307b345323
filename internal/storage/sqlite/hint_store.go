package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// HintStore implements hint usage persistence backed by SQLite.
type HintStore struct {
	db *DB
}

// NewHintStore creates a new SQLite-backed hint store.
func NewHintStore(db *DB) *HintStore {
	return &HintStore{db: db}
}

// Append inserts a hint usage record.
func (s *HintStore) Append(ctx context.Context, usage *domain.HintUsage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hint_usage (id, user_id, module, run_id, problem_index,
			subproblem_index, level, hint, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		usage.ID, usage.UserID, usage.Module, usage.RunID,
		usage.ProblemIndex, usage.SubproblemIndex,
		usage.Level, usage.Hint, usage.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert hint usage: %w", err)
	}
	return nil
}

// ListByKey returns usage rows for (run, problem, subproblem) in insertion order.
func (s *HintStore) ListByKey(ctx context.Context, runID uuid.UUID, problem, subproblem int) ([]*domain.HintUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, module, run_id, problem_index, subproblem_index,
			level, hint, requested_at
		FROM hint_usage
		WHERE run_id = ? AND problem_index = ? AND subproblem_index = ?
		ORDER BY requested_at, id`, runID, problem, subproblem)
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
		u.RequestedAt = u.RequestedAt.UTC()
		usages = append(usages, &u)
	}
	return usages, rows.Err()
}
