package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// TimerKind distinguishes the two timed-session families.
type TimerKind string

const (
	TimerSubproblem TimerKind = "subproblem"
	TimerHintRead   TimerKind = "hint_read"
)

// TimedSession is a wall-clock interval spent on a subproblem or reading a
// hint. Opened when the user begins looking, closed on navigation, the next
// hint, or page teardown. HintLevel is set for hint-read sessions only.
type TimedSession struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Module          int
	RunID           uuid.UUID
	ProblemIndex    int
	SubproblemIndex int
	HintLevel       int
	Kind            TimerKind
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
}

// TimerKey identifies what a timed session is measuring.
type TimerKey struct {
	UserID          uuid.UUID
	Module          int
	RunID           uuid.UUID
	ProblemIndex    int
	SubproblemIndex int
	HintLevel       int // hint-read sessions only
}

// NewTimedSession opens a session of the given kind at the given key.
func NewTimedSession(kind TimerKind, key TimerKey) *TimedSession {
	return &TimedSession{
		ID:              uuid.New(),
		UserID:          key.UserID,
		Module:          key.Module,
		RunID:           key.RunID,
		ProblemIndex:    key.ProblemIndex,
		SubproblemIndex: key.SubproblemIndex,
		HintLevel:       key.HintLevel,
		Kind:            kind,
		StartedAt:       time.Now().UTC(),
	}
}

// Ended reports whether the session has been closed.
func (s *TimedSession) Ended() bool {
	return s.EndedAt != nil
}

// Close ends the session at the given instant, computing the rounded duration
// in seconds. Durations are clamped at zero; closing an already-ended session
// is a no-op so a teardown beacon can race a normal end.
func (s *TimedSession) Close(at time.Time) {
	if s.Ended() {
		return
	}
	at = at.UTC()
	secs := int(math.Round(at.Sub(s.StartedAt).Seconds()))
	if secs < 0 {
		secs = 0
	}
	s.EndedAt = &at
	s.DurationSeconds = secs
}
