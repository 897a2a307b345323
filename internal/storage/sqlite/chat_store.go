package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// ChatStore implements transcript persistence backed by SQLite.
type ChatStore struct {
	db *DB
}

// NewChatStore creates a new SQLite-backed chat store.
func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db}
}

// Append inserts a chat entry. The transcript is append-only.
func (s *ChatStore) Append(ctx context.Context, entry *domain.ChatEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_logs (id, user_id, module, run_id, problem_index,
			subproblem_index, role, message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Module, entry.RunID,
		entry.ProblemIndex, entry.SubproblemIndex,
		string(entry.Role), entry.Message, entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert chat entry: %w", err)
	}
	return nil
}

// ListByRun returns all entries for (user, module, run) ordered by sent time.
func (s *ChatStore) ListByRun(ctx context.Context, userID uuid.UUID, module int, runID uuid.UUID) ([]*domain.ChatEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, module, run_id, problem_index, subproblem_index,
			role, message, sent_at
		FROM chat_logs
		WHERE user_id = ? AND module = ? AND run_id = ?
		ORDER BY sent_at, id`, userID, module, runID)
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
		e.SentAt = e.SentAt.UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
