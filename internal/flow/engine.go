package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pathwaylabs/pathway/internal/content"
	"github.com/pathwaylabs/pathway/internal/domain"
	"github.com/pathwaylabs/pathway/internal/events"
	"github.com/pathwaylabs/pathway/internal/session"
	"github.com/pathwaylabs/pathway/internal/tutor"
)

// Messages shown without a gateway round trip.
const (
	congratulationText = "Well Done! You have completed all problems for this week. Keep up the great work!"
	apologyText        = "Sorry, I ran into a problem generating a response. Please try again."
)

// Sink receives streaming updates as they happen so the caller can re-render.
// Verdict fires before any chunk of the validation response.
type Sink interface {
	Verdict(correct bool)
	Chunk(entryID string, text string)
}

// NopSink discards updates.
type NopSink struct{}

func (NopSink) Verdict(bool) {}

func (NopSink) Chunk(string, string) {}

// SubmitResult reports the outcome of an answer submission.
type SubmitResult struct {
	Correct bool
	State   domain.ProblemState
	// Entries are the ai entries appended by this submission, in order.
	Entries []*domain.ChatEntry
}

// Engine drives one learner's progression through a module. All operations
// are serialized by an internal mutex; concurrent submits from multiple tabs
// are applied one at a time in arrival order.
type Engine struct {
	mu sync.Mutex

	sess  *session.Session
	units []domain.ContentUnit

	runs      domain.RunStore
	chats     domain.ChatStore
	gateway   tutor.Gateway
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a flow engine bound to a loaded session.
func NewEngine(
	sess *session.Session,
	units []domain.ContentUnit,
	runs domain.RunStore,
	chats domain.ChatStore,
	gateway tutor.Gateway,
	publisher events.Publisher,
	logger *slog.Logger,
) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sess:      sess,
		units:     units,
		runs:      runs,
		chats:     chats,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// State returns the engine's current position.
func (e *Engine) State() domain.ProblemState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Run.State()
}

// History returns the transcript accumulated so far.
func (e *Engine) History() []*domain.ChatEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.ChatEntry, len(e.sess.ChatHistory))
	copy(out, e.sess.ChatHistory)
	return out
}

// Init opens the conversation for a fresh session. With existing history or a
// completed run there is nothing to do: the client renders the transcript.
func (e *Engine) Init(ctx context.Context, sink Sink) (*domain.ChatEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sess.ChatHistory) > 0 || e.sess.Run.Complete {
		return nil, nil
	}

	entry := e.streamEntry(ctx, tutor.ActionInitialize, "", sink)
	return entry, nil
}

// Submit validates the learner's answer. The user entry is persisted before
// the gateway is consulted; a correct verdict advances the position.
func (e *Engine) Submit(ctx context.Context, userMessage, userCode string, sink Sink) (*SubmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run := e.sess.Run
	if run.Complete {
		return &SubmitResult{State: run.State()}, nil
	}

	userEntry := domain.NewChatEntry(
		e.sess.UserID, run.Module, run.ID,
		run.CurrentProblem, run.CurrentSubproblem,
		domain.RoleUser, userMessage,
	)
	e.appendEntry(ctx, userEntry)

	correct, reply := e.streamValidate(ctx, userCode, sink)

	result := &SubmitResult{Correct: correct}
	if reply != nil {
		result.Entries = append(result.Entries, reply)
	}

	if correct {
		entries, err := e.advance(ctx, sink)
		if err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, entries...)
	}

	result.State = run.State()
	return result, nil
}

// Restart swaps in a freshly created session and opens its conversation.
func (e *Engine) Restart(ctx context.Context, fresh *session.Session, sink Sink) (*domain.ChatEntry, error) {
	e.mu.Lock()
	e.sess = fresh
	e.mu.Unlock()
	return e.Init(ctx, sink)
}

// advance moves to the next unit, or completes the run when none is left.
// The position write must land; everything after it is best-effort.
func (e *Engine) advance(ctx context.Context, sink Sink) ([]*domain.ChatEntry, error) {
	run := e.sess.Run
	p, s := run.CurrentProblem, run.CurrentSubproblem

	if s < content.MaxSubproblem(e.units, p) {
		run.AdvanceTo(p, s+1)
	} else if p < content.MaxProblem(e.units) {
		run.AdvanceTo(p+1, 1)
	} else {
		run.MarkComplete()
	}

	if err := e.runs.SavePosition(ctx, run); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}

	if run.Complete {
		e.publish(ctx, events.TypeRunCompleted, nil)

		// Terminal: fixed congratulation, no gateway call.
		entry := domain.NewChatEntry(
			e.sess.UserID, run.Module, run.ID,
			run.CurrentProblem, run.CurrentSubproblem,
			domain.RoleAI, congratulationText,
		)
		sink.Chunk(entry.ID.String(), congratulationText)
		e.appendEntry(ctx, entry)
		return []*domain.ChatEntry{entry}, nil
	}

	entry := e.streamEntry(ctx, tutor.ActionNext, "", sink)
	if entry == nil {
		return nil, nil
	}
	return []*domain.ChatEntry{entry}, nil
}

// streamValidate runs the validate action. Gateway failure yields a
// non-correct verdict and an apology entry; the session survives.
func (e *Engine) streamValidate(ctx context.Context, userCode string, sink Sink) (bool, *domain.ChatEntry) {
	run := e.sess.Run
	unit := content.UnitAt(e.units, run.CurrentProblem, run.CurrentSubproblem)
	if unit == nil {
		e.logger.Error("no content at position",
			"module", run.Module, "problem", run.CurrentProblem, "subproblem", run.CurrentSubproblem)
		sink.Verdict(false)
		return false, e.apologize(ctx, sink)
	}

	req := e.buildRequest(tutor.ActionValidate, unit, userCode)
	stream, err := e.gateway.Stream(ctx, req)
	if err != nil {
		e.logger.Error("gateway stream failed", "action", "validate", "error", err)
		sink.Verdict(false)
		return false, e.apologize(ctx, sink)
	}

	correct := stream.Correct != nil && *stream.Correct
	sink.Verdict(correct)

	entry := e.consume(ctx, stream, sink)
	return correct, entry
}

// streamEntry runs a non-validate action into a fresh ai entry.
func (e *Engine) streamEntry(ctx context.Context, action tutor.Action, userCode string, sink Sink) *domain.ChatEntry {
	run := e.sess.Run
	unit := content.UnitAt(e.units, run.CurrentProblem, run.CurrentSubproblem)
	if unit == nil {
		e.logger.Error("no content at position",
			"module", run.Module, "problem", run.CurrentProblem, "subproblem", run.CurrentSubproblem)
		return e.apologize(ctx, sink)
	}

	req := e.buildRequest(action, unit, userCode)
	stream, err := e.gateway.Stream(ctx, req)
	if err != nil {
		e.logger.Error("gateway stream failed", "action", action.String(), "error", err)
		return e.apologize(ctx, sink)
	}

	return e.consume(ctx, stream, sink)
}

// consume drains a stream into a placeholder entry, forwarding each chunk to
// the sink, then persists the finished entry. A mid-stream error keeps the
// partial text; an empty result becomes the apology.
func (e *Engine) consume(ctx context.Context, stream *tutor.Stream, sink Sink) *domain.ChatEntry {
	run := e.sess.Run
	entry := domain.NewPlaceholder(
		e.sess.UserID, run.Module, run.ID,
		run.CurrentProblem, run.CurrentSubproblem,
	)

	for chunk := range stream.Chunks {
		if chunk.Err != nil {
			e.logger.Error("gateway stream interrupted", "error", chunk.Err)
			break
		}
		entry.Append(chunk.Text)
		sink.Chunk(entry.ID.String(), chunk.Text)
	}

	if entry.Message == "" {
		entry.Append(apologyText)
		sink.Chunk(entry.ID.String(), apologyText)
	}

	entry.Finalize(e.now())
	e.appendEntry(ctx, entry)
	return entry
}

// apologize appends a fixed apology entry so the learner is never left with
// silence after a failure.
func (e *Engine) apologize(ctx context.Context, sink Sink) *domain.ChatEntry {
	run := e.sess.Run
	entry := domain.NewChatEntry(
		e.sess.UserID, run.Module, run.ID,
		run.CurrentProblem, run.CurrentSubproblem,
		domain.RoleAI, apologyText,
	)
	sink.Chunk(entry.ID.String(), apologyText)
	e.appendEntry(ctx, entry)
	return entry
}

// appendEntry records an entry in memory and durably. Store and event bus
// failures are logged, never fatal to the conversation.
func (e *Engine) appendEntry(ctx context.Context, entry *domain.ChatEntry) {
	e.sess.ChatHistory = append(e.sess.ChatHistory, entry)

	if err := e.chats.Append(ctx, entry); err != nil {
		e.logger.Error("failed to persist chat entry",
			"entry_id", entry.ID, "role", entry.Role, "error", err)
	}

	e.publish(ctx, events.TypeChatAppended, map[string]any{
		"entry_id":   entry.ID.String(),
		"role":       string(entry.Role),
		"problem":    entry.ProblemIndex,
		"subproblem": entry.SubproblemIndex,
	})
}

func (e *Engine) publish(ctx context.Context, eventType string, payload map[string]any) {
	run := e.sess.Run
	event := events.New(eventType, e.sess.UserID, run.Module, run.ID, payload)
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}

// buildRequest assembles the gateway payload for the current position.
func (e *Engine) buildRequest(action tutor.Action, unit *domain.ContentUnit, userCode string) *tutor.StreamRequest {
	run := e.sess.Run
	state := run.State()
	return &tutor.StreamRequest{
		Action:      action,
		Problem:     unit.ProblemText,
		Subproblem:  unit.SubproblemText,
		Solution:    unit.SolutionText,
		ChatHistory: tutor.Turns(e.sess.ChatHistory),
		UserCode:    userCode,
		State: &tutor.State{
			CurrentProblemIndex:    state.ProblemIndex,
			CurrentSubproblemIndex: state.SubproblemIndex,
			IsComplete:             state.Complete,
		},
	}
}
