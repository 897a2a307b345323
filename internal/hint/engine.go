package hint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pathwaylabs/pathway/internal/content"
	"github.com/pathwaylabs/pathway/internal/domain"
	"github.com/pathwaylabs/pathway/internal/events"
	"github.com/pathwaylabs/pathway/internal/timer"
	"github.com/pathwaylabs/pathway/internal/tutor"
)

// apologyText is shown when the gateway cannot produce a hint. Nothing is
// persisted in that case; the ladder does not move.
const apologyText = "Sorry, I couldn't fetch a hint right now. Please try again."

// Engine walks the hint ladder for one (run, problem, subproblem) at a time.
// Levels unlock strictly in order 1, 2, 3; level 3 delivers the solution and
// is terminal. Persisted usage never resets, so the ladder survives reloads.
type Engine struct {
	mu sync.Mutex

	userID uuid.UUID
	module int
	runID  uuid.UUID
	units  []domain.ContentUnit

	hints     domain.HintStore
	gateway   tutor.Gateway
	timers    *timer.Service
	publisher events.Publisher
	logger    *slog.Logger

	problem    int
	subproblem int
	level      int // 0 = no hint delivered yet
	lastHint   string
	readTimer  uuid.UUID // open hint-read session, uuid.Nil if none
}

// NewEngine creates a hint engine keyed to a position.
func NewEngine(
	userID uuid.UUID,
	module int,
	runID uuid.UUID,
	units []domain.ContentUnit,
	hints domain.HintStore,
	gateway tutor.Gateway,
	timers *timer.Service,
	publisher events.Publisher,
	logger *slog.Logger,
	problem, subproblem int,
) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		userID:     userID,
		module:     module,
		runID:      runID,
		units:      units,
		hints:      hints,
		gateway:    gateway,
		timers:     timers,
		publisher:  publisher,
		logger:     logger,
		problem:    problem,
		subproblem: subproblem,
	}
}

// Level returns the highest hint level delivered at the current position.
func (e *Engine) Level() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// LastHint returns the text of the most recently delivered hint.
func (e *Engine) LastHint() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastHint
}

// LoadExisting restores the ladder from persisted usage: the highest level
// reached and the text of the most recent row at that level.
func (e *Engine) LoadExisting(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.hints.ListByKey(ctx, e.runID, e.problem, e.subproblem)
	if err != nil {
		return fmt.Errorf("load hint usage: %w", err)
	}

	e.level = 0
	e.lastHint = ""
	for _, row := range rows {
		// Rows arrive in insertion order, so a later row at the same level
		// wins the tie.
		if row.Level >= e.level {
			e.level = row.Level
			e.lastHint = row.Hint
		}
	}
	return nil
}

// Open shows the hint panel. The first-ever open requests level 1; later
// opens re-show the current hint. A hint-read timer starts whenever a hint is
// actually shown.
func (e *Engine) Open(ctx context.Context, history []*domain.ChatEntry, userCode string) (string, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.level == 0 {
		if _, err := e.fetchAndRecord(ctx, 1, history, userCode); err != nil {
			// No hint was delivered; a read timer here would record
			// dwell on nothing, at level 0.
			return apologyText, 0, nil
		}
	}

	e.startReadTimer(ctx)
	return e.lastHint, e.level, nil
}

// RequestLevel delivers hint level n. n may be the current level (re-show,
// no gateway call) or the next one up; anything else is ErrHintSequence and
// the ladder does not move.
func (e *Engine) RequestLevel(ctx context.Context, n int, history []*domain.ChatEntry, userCode string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requestLevelLocked(ctx, n, history, userCode)
}

func (e *Engine) requestLevelLocked(ctx context.Context, n int, history []*domain.ChatEntry, userCode string) (string, error) {
	if !domain.ValidHintLevel(n) {
		return "", fmt.Errorf("%w: level %d out of range", domain.ErrHintSequence, n)
	}
	if n == e.level {
		return e.lastHint, nil
	}
	if n != e.level+1 {
		return "", fmt.Errorf("%w: requested %d at level %d", domain.ErrHintSequence, n, e.level)
	}

	text, err := e.fetchAndRecord(ctx, n, history, userCode)
	if err != nil {
		return apologyText, nil
	}
	return text, nil
}

// AdvanceToNext moves one rung up the ladder: the open read timer is closed,
// the next level requested, and a fresh read timer opened. At level 3 this is
// a no-op.
func (e *Engine) AdvanceToNext(ctx context.Context, history []*domain.ChatEntry, userCode string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.level >= domain.HintLevelMax {
		return e.lastHint, nil
	}

	e.closeReadTimer(ctx)
	text, err := e.requestLevelLocked(ctx, e.level+1, history, userCode)
	e.startReadTimer(ctx)
	return text, err
}

// Close dismisses the hint panel, ending the open read timer.
func (e *Engine) Close(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeReadTimer(ctx)
}

// ButtonLabel derives the escalation button text from the current level.
func (e *Engine) ButtonLabel() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.level {
	case 1:
		return "Need More Help?"
	case 2:
		return "Need The Solution?"
	case 3:
		return "Solution Provided"
	default:
		return "Need A Hint?"
	}
}

// Reset re-keys the engine to a new position. Persisted usage rows remain;
// only the in-memory ladder resets.
func (e *Engine) Reset(ctx context.Context, problem, subproblem int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeReadTimer(ctx)
	e.problem = problem
	e.subproblem = subproblem
	e.level = 0
	e.lastHint = ""
}

// fetchAndRecord asks the gateway for level n and persists the delivered
// hint. On gateway failure nothing is persisted and the level is unchanged.
func (e *Engine) fetchAndRecord(ctx context.Context, n int, history []*domain.ChatEntry, userCode string) (string, error) {
	unit := content.UnitAt(e.units, e.problem, e.subproblem)
	if unit == nil {
		e.logger.Error("no content at position",
			"module", e.module, "problem", e.problem, "subproblem", e.subproblem)
		return "", domain.ErrContentNotFound
	}

	text, err := e.gateway.Hint(ctx, &tutor.HintRequest{
		Module:          e.module,
		ProblemIndex:    e.problem,
		SubproblemIndex: e.subproblem,
		Level:           n,
		ProblemText:     unit.ProblemText,
		SubproblemText:  unit.SubproblemText,
		SolutionText:    unit.SolutionText,
		ChatHistory:     tutor.Turns(history),
		UserCode:        userCode,
	})
	if err != nil {
		e.logger.Error("gateway hint failed", "level", n, "error", err)
		return "", err
	}

	usage := domain.NewHintUsage(e.userID, e.module, e.runID, e.problem, e.subproblem, n, text)
	if err := e.hints.Append(ctx, usage); err != nil {
		e.logger.Error("failed to persist hint usage", "level", n, "error", err)
	}

	event := events.New(events.TypeHintRequested, e.userID, e.module, e.runID, map[string]any{
		"problem":    e.problem,
		"subproblem": e.subproblem,
		"level":      n,
	})
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish event", "type", events.TypeHintRequested, "error", err)
	}

	e.level = n
	e.lastHint = text
	return text, nil
}

// startReadTimer opens a read session at the current level. Level 0 means no
// hint is on screen, so there is nothing to time.
func (e *Engine) startReadTimer(ctx context.Context) {
	if e.timers == nil || e.level == 0 {
		return
	}
	e.closeReadTimer(ctx)

	id, err := e.timers.Start(ctx, domain.TimerHintRead, domain.TimerKey{
		UserID:          e.userID,
		Module:          e.module,
		RunID:           e.runID,
		ProblemIndex:    e.problem,
		SubproblemIndex: e.subproblem,
		HintLevel:       e.level,
	})
	if err != nil {
		e.logger.Warn("failed to start hint-read timer", "error", err)
		return
	}
	e.readTimer = id
}

func (e *Engine) closeReadTimer(ctx context.Context) {
	if e.timers == nil || e.readTimer == uuid.Nil {
		return
	}
	if err := e.timers.End(ctx, e.readTimer); err != nil {
		e.logger.Warn("failed to end hint-read timer", "session_id", e.readTimer, "error", err)
	}
	e.readTimer = uuid.Nil
}
