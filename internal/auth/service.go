package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// Service resolves bearer tokens to user identities.
type Service struct {
	tokens domain.TokenStore
}

// NewService creates an auth service over a token store.
func NewService(tokens domain.TokenStore) *Service {
	return &Service{tokens: tokens}
}

// Authenticate resolves an Authorization header value to a user ID. Accepts
// "Bearer <token>" or a bare token.
func (s *Service) Authenticate(ctx context.Context, header string) (uuid.UUID, error) {
	token := strings.TrimSpace(header)
	if after, ok := strings.CutPrefix(token, "Bearer "); ok {
		token = strings.TrimSpace(after)
	}
	if token == "" {
		return uuid.Nil, domain.ErrUnauthenticated
	}

	userID, err := s.tokens.UserIDByToken(ctx, token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("authenticate: %w", err)
	}
	return userID, nil
}
