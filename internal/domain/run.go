package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run represents one attempt at a module by a user. A run owns the learner's
// current position and completion flag. At most one incomplete run exists per
// (user, module) at a time; completed runs are never mutated and remain
// queryable for history.
type Run struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Module            int
	CurrentProblem    int
	CurrentSubproblem int
	Complete          bool
	StartedAt         time.Time
	UpdatedAt         time.Time
}

// ProblemState is the derived, in-memory view of a run's position.
type ProblemState struct {
	ProblemIndex    int
	SubproblemIndex int
	Complete        bool
}

// NewRun creates a fresh run at position (1,1), incomplete.
func NewRun(userID uuid.UUID, module int) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:                uuid.New(),
		UserID:            userID,
		Module:            module,
		CurrentProblem:    1,
		CurrentSubproblem: 1,
		StartedAt:         now,
		UpdatedAt:         now,
	}
}

// State returns the run's position as a ProblemState.
func (r *Run) State() ProblemState {
	return ProblemState{
		ProblemIndex:    r.CurrentProblem,
		SubproblemIndex: r.CurrentSubproblem,
		Complete:        r.Complete,
	}
}

// AdvanceTo moves the run to a new position.
func (r *Run) AdvanceTo(problem, subproblem int) {
	r.CurrentProblem = problem
	r.CurrentSubproblem = subproblem
	r.UpdatedAt = time.Now().UTC()
}

// MarkComplete flags the run as complete. The position is left at the final
// unit so completed runs remain positionally meaningful.
func (r *Run) MarkComplete() {
	r.Complete = true
	r.UpdatedAt = time.Now().UTC()
}
