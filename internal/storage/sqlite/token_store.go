package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// TokenStore resolves bearer tokens against the api_tokens table.
type TokenStore struct {
	db *DB
}

// NewTokenStore creates a new SQLite-backed token store.
func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

// UserIDByToken returns the user owning the token.
func (s *TokenStore) UserIDByToken(ctx context.Context, token string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id FROM api_tokens WHERE token = ?", token).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, domain.ErrUnauthenticated
		}
		return uuid.Nil, fmt.Errorf("lookup token: %w", err)
	}
	return userID, nil
}
