package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// ChatStore implements transcript persistence using PostgreSQL.
type ChatStore struct {
	pool *pgxpool.Pool
}

// NewChatStore creates a new PostgreSQL-backed chat store.
func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

func (s *ChatStore) Append(ctx context.Context, entry *domain.ChatEntry) error {
	query := `
		INSERT INTO chat_logs (id, user_id, module, run_id, problem_index,
			subproblem_index, role, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		entry.ID, entry.UserID, entry.Module, entry.RunID,
		entry.ProblemIndex, entry.SubproblemIndex,
		string(entry.Role), entry.Message, entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert chat entry: %w", err)
	}
	return nil
}

func (s *ChatStore) ListByRun(ctx context.Context, userID uuid.UUID, module int, runID uuid.UUID) ([]*domain.ChatEntry, error) {
	query := `
		SELECT id, user_id, module, run_id, problem_index, subproblem_index,
			role, message, sent_at
		FROM chat_logs
		WHERE user_id = $1 AND module = $2 AND run_id = $3
		ORDER BY sent_at, id
	`
	rows, err := s.pool.Query(ctx, query, userID, module, runID)
	if err != nil {
		return nil, fmt.Errorf("list chat entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ChatEntry
	for rows.Next() {
		var e domain.ChatEntry
		var role string
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Module, &e.RunID,
			&e.ProblemIndex, &e.SubproblemIndex,
			&role, &e.Message, &e.SentAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat entry: %w", err)
		}
		e.Role = domain.Role(role)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ domain.ChatStore = (*ChatStore)(nil)
