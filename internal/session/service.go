package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
	"github.com/pathwaylabs/pathway/internal/events"
)

// Session is the loaded state a learner works within: the run they are
// positioned in plus the full transcript for that run.
type Session struct {
	UserID      uuid.UUID
	RunID       uuid.UUID
	Run         *domain.Run
	ChatHistory []*domain.ChatEntry
}

// Service loads and restarts sessions.
type Service struct {
	runs      domain.RunStore
	chats     domain.ChatStore
	publisher events.Publisher
	logger    *slog.Logger
}

// NewService creates a session service.
func NewService(runs domain.RunStore, chats domain.ChatStore, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, chats: chats, publisher: publisher, logger: logger}
}

// Initialize resumes the latest incomplete run for (user, module), or creates
// a fresh one at position (1,1). Completed runs are never resumed. Calling
// Initialize repeatedly without progress returns the same run and position.
func (s *Service) Initialize(ctx context.Context, userID uuid.UUID, module int) (*Session, error) {
	run, err := s.runs.FindIncomplete(ctx, userID, module)
	if errors.Is(err, domain.ErrRunNotFound) {
		return s.startFresh(ctx, userID, module)
	}
	if err != nil {
		return nil, fmt.Errorf("find incomplete run: %w", err)
	}

	history, err := s.chats.ListByRun(ctx, userID, module, run.ID)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	s.logger.Info("session resumed",
		"user_id", userID,
		"module", module,
		"run_id", run.ID,
		"problem", run.CurrentProblem,
		"subproblem", run.CurrentSubproblem,
		"history_len", len(history))

	return &Session{UserID: userID, RunID: run.ID, Run: run, ChatHistory: history}, nil
}

// Restart abandons any in-progress run and creates a fresh one. Prior runs
// are left untouched; the fresh run is newer, so it wins the next resume.
func (s *Service) Restart(ctx context.Context, userID uuid.UUID, module int) (*Session, error) {
	return s.startFresh(ctx, userID, module)
}

func (s *Service) startFresh(ctx context.Context, userID uuid.UUID, module int) (*Session, error) {
	run := domain.NewRun(userID, module)
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	s.logger.Info("session started",
		"user_id", userID,
		"module", module,
		"run_id", run.ID)

	event := events.New(events.TypeRunStarted, userID, module, run.ID, nil)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "type", events.TypeRunStarted, "error", err)
	}

	return &Session{UserID: userID, RunID: run.ID, Run: run, ChatHistory: nil}, nil
}
