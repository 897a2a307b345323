package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testKey() TimerKey {
	return TimerKey{
		UserID:          uuid.New(),
		Module:          1,
		RunID:           uuid.New(),
		ProblemIndex:    1,
		SubproblemIndex: 1,
	}
}

func TestTimedSession_Close_RoundsDuration(t *testing.T) {
	sess := NewTimedSession(TimerSubproblem, testKey())
	sess.StartedAt = time.Now().UTC().Add(-90*time.Second - 400*time.Millisecond)

	sess.Close(time.Now().UTC())

	if !sess.Ended() {
		t.Fatal("session should be ended")
	}
	if sess.DurationSeconds != 90 {
		t.Errorf("DurationSeconds = %d; want 90", sess.DurationSeconds)
	}
}

func TestTimedSession_Close_Idempotent(t *testing.T) {
	sess := NewTimedSession(TimerHintRead, testKey())
	first := time.Now().UTC()
	sess.Close(first)
	got := sess.DurationSeconds

	sess.Close(first.Add(time.Hour))

	if sess.DurationSeconds != got {
		t.Errorf("second Close changed duration: %d -> %d", got, sess.DurationSeconds)
	}
	if !sess.EndedAt.Equal(first) {
		t.Error("second Close changed end time")
	}
}

func TestTimedSession_Close_NeverNegative(t *testing.T) {
	sess := NewTimedSession(TimerSubproblem, testKey())

	// Clock skew: end before start.
	sess.Close(sess.StartedAt.Add(-5 * time.Second))

	if sess.DurationSeconds != 0 {
		t.Errorf("DurationSeconds = %d; want 0", sess.DurationSeconds)
	}
}

func TestValidHintLevel(t *testing.T) {
	for _, tt := range []struct {
		level int
		want  bool
	}{
		{0, false}, {1, true}, {2, true}, {3, true}, {4, false},
	} {
		if got := ValidHintLevel(tt.level); got != tt.want {
			t.Errorf("ValidHintLevel(%d) = %v; want %v", tt.level, got, tt.want)
		}
	}
}
