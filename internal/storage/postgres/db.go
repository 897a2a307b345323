package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool and verifies connectivity.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate bootstraps the schema. Statements are idempotent so startup can run
// this unconditionally.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         UUID PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS api_tokens (
			token      TEXT PRIMARY KEY,
			user_id    UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id                 UUID PRIMARY KEY,
			user_id            UUID NOT NULL,
			module             INTEGER NOT NULL,
			current_problem    INTEGER NOT NULL,
			current_subproblem INTEGER NOT NULL,
			complete           BOOLEAN NOT NULL DEFAULT false,
			started_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_user_module
			ON runs(user_id, module, complete, updated_at)`,
		`CREATE TABLE IF NOT EXISTS chat_logs (
			id               UUID PRIMARY KEY,
			user_id          UUID NOT NULL,
			module           INTEGER NOT NULL,
			run_id           UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			problem_index    INTEGER NOT NULL,
			subproblem_index INTEGER NOT NULL,
			role             TEXT NOT NULL,
			message          TEXT NOT NULL,
			sent_at          TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_logs_run
			ON chat_logs(user_id, module, run_id, sent_at)`,
		`CREATE TABLE IF NOT EXISTS hint_usage (
			id               UUID PRIMARY KEY,
			user_id          UUID NOT NULL,
			module           INTEGER NOT NULL,
			run_id           UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			problem_index    INTEGER NOT NULL,
			subproblem_index INTEGER NOT NULL,
			level            INTEGER NOT NULL,
			hint             TEXT NOT NULL,
			requested_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hint_usage_key
			ON hint_usage(run_id, problem_index, subproblem_index, requested_at)`,
		`CREATE TABLE IF NOT EXISTS time_logs (
			id               UUID PRIMARY KEY,
			user_id          UUID NOT NULL,
			module           INTEGER NOT NULL,
			run_id           UUID NOT NULL,
			problem_index    INTEGER NOT NULL,
			subproblem_index INTEGER NOT NULL,
			hint_level       INTEGER NOT NULL DEFAULT 0,
			kind             TEXT NOT NULL,
			started_at       TIMESTAMPTZ NOT NULL,
			ended_at         TIMESTAMPTZ,
			duration_seconds INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_time_logs_open
			ON time_logs(user_id, kind, ended_at)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
