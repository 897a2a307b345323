package domain

import (
	"time"

	"github.com/google/uuid"
)

// Hint ladder bounds. Levels unlock strictly in order; level 3 delivers the
// solution and is terminal.
const (
	HintLevelMin = 1
	HintLevelMax = 3
)

// HintUsage records one hint actually delivered to the user. One row per
// level requested, not per view. Append-only.
type HintUsage struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Module          int
	RunID           uuid.UUID
	ProblemIndex    int
	SubproblemIndex int
	Level           int
	Hint            string
	RequestedAt     time.Time
}

// NewHintUsage creates a usage record for a delivered hint.
func NewHintUsage(userID uuid.UUID, module int, runID uuid.UUID, problem, subproblem, level int, hint string) *HintUsage {
	return &HintUsage{
		ID:              uuid.New(),
		UserID:          userID,
		Module:          module,
		RunID:           runID,
		ProblemIndex:    problem,
		SubproblemIndex: subproblem,
		Level:           level,
		Hint:            hint,
		RequestedAt:     time.Now().UTC(),
	}
}

// ValidHintLevel reports whether level is within the ladder bounds.
func ValidHintLevel(level int) bool {
	return level >= HintLevelMin && level <= HintLevelMax
}
