package timer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/domain"
	"github.com/pathwaylabs/pathway/internal/events"
)

// Service records timed sessions: dwell time on a subproblem and time spent
// reading a hint. Ends are idempotent so the page-teardown beacon can race a
// normal end.
type Service struct {
	store     domain.TimerStore
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a timer service.
func NewService(store domain.TimerStore, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// Start opens a timed session of the given kind and returns its id.
func (s *Service) Start(ctx context.Context, kind domain.TimerKind, key domain.TimerKey) (uuid.UUID, error) {
	sess := domain.NewTimedSession(kind, key)
	sess.StartedAt = s.now().UTC()
	if err := s.store.Create(ctx, sess); err != nil {
		return uuid.Nil, fmt.Errorf("start timer: %w", err)
	}
	return sess.ID, nil
}

// End closes a timed session, recording a rounded, never-negative duration in
// seconds. Ending an already-ended session is a no-op.
func (s *Service) End(ctx context.Context, id uuid.UUID) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Ended() {
		return nil
	}

	endedAt := s.now().UTC()
	secs := int(math.Round(endedAt.Sub(sess.StartedAt).Seconds()))
	if secs < 0 {
		secs = 0
	}

	if err := s.store.Close(ctx, id, endedAt, secs); err != nil {
		return fmt.Errorf("end timer: %w", err)
	}

	event := events.New(events.TypeTimerClosed, sess.UserID, sess.Module, sess.RunID, map[string]any{
		"kind":             string(sess.Kind),
		"problem":          sess.ProblemIndex,
		"subproblem":       sess.SubproblemIndex,
		"duration_seconds": secs,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "type", events.TypeTimerClosed, "error", err)
	}
	return nil
}

// Tracker keeps at most one open session per timer family, ending the
// previous one before starting the next. Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	svc  *Service
	open map[domain.TimerKind]uuid.UUID
}

// NewTracker creates a tracker over a timer service.
func NewTracker(svc *Service) *Tracker {
	return &Tracker{svc: svc, open: make(map[domain.TimerKind]uuid.UUID)}
}

// Start opens a session for the key, first ending any open session of the
// same family.
func (t *Tracker) Start(ctx context.Context, kind domain.TimerKind, key domain.TimerKey) (uuid.UUID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.open[kind]; ok {
		if err := t.svc.End(ctx, prev); err != nil {
			t.svc.logger.Warn("failed to end previous timed session",
				"kind", kind, "session_id", prev, "error", err)
		}
		delete(t.open, kind)
	}

	id, err := t.svc.Start(ctx, kind, key)
	if err != nil {
		return uuid.Nil, err
	}
	t.open[kind] = id
	return id, nil
}

// End closes the open session of the family, if any.
func (t *Tracker) End(ctx context.Context, kind domain.TimerKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.open[kind]
	if !ok {
		return nil
	}
	delete(t.open, kind)
	return t.svc.End(ctx, id)
}

// Open returns the id of the open session for the family, or uuid.Nil.
func (t *Tracker) Open(kind domain.TimerKind) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open[kind]
}
