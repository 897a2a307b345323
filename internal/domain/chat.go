package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat entry.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// ChatEntry is one turn in the tutoring conversation, keyed by the position
// the learner was at when it was sent. Entries are append-only and form the
// durable transcript used to resume a session.
type ChatEntry struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Module          int
	RunID           uuid.UUID
	ProblemIndex    int
	SubproblemIndex int
	Role            Role
	Message         string
	SentAt          time.Time
}

// NewChatEntry creates a chat entry at the given position.
func NewChatEntry(userID uuid.UUID, module int, runID uuid.UUID, problem, subproblem int, role Role, message string) *ChatEntry {
	return &ChatEntry{
		ID:              uuid.New(),
		UserID:          userID,
		Module:          module,
		RunID:           runID,
		ProblemIndex:    problem,
		SubproblemIndex: subproblem,
		Role:            role,
		Message:         message,
		SentAt:          time.Now().UTC(),
	}
}

// NewPlaceholder creates an empty AI entry that a stream appends into. The id
// is stable for the lifetime of the stream so UI updates can target it; the
// timestamp is finalized when the stream completes.
func NewPlaceholder(userID uuid.UUID, module int, runID uuid.UUID, problem, subproblem int) *ChatEntry {
	return NewChatEntry(userID, module, runID, problem, subproblem, RoleAI, "")
}

// Append concatenates a streamed chunk onto the entry's message.
func (e *ChatEntry) Append(chunk string) {
	e.Message += chunk
}

// Finalize stamps the entry with its real sent time after streaming ends.
func (e *ChatEntry) Finalize(at time.Time) {
	e.SentAt = at.UTC()
}
