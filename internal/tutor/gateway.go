package tutor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pathwaylabs/pathway/internal/domain"
)

// Action is the closed set of tutoring actions the gateway understands.
type Action int

const (
	// ActionInitialize opens a conversation for a fresh position.
	ActionInitialize Action = iota
	// ActionValidate judges the learner's latest answer.
	ActionValidate
	// ActionNext introduces the position just advanced to.
	ActionNext
)

// String returns the wire representation of the action.
func (a Action) String() string {
	switch a {
	case ActionInitialize:
		return "initialize"
	case ActionValidate:
		return "validate"
	case ActionNext:
		return "next"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes the action to its wire string.
func (a Action) MarshalJSON() ([]byte, error) {
	if a < ActionInitialize || a > ActionNext {
		return nil, fmt.Errorf("invalid action %d", int(a))
	}
	return json.Marshal(a.String())
}

// Turn is one conversation turn as sent to the gateway.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turns converts chat entries to wire turns.
func Turns(history []*domain.ChatEntry) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, e := range history {
		turns = append(turns, Turn{Role: string(e.Role), Content: e.Message})
	}
	return turns
}

// State mirrors the engine's position for the gateway payload.
type State struct {
	CurrentProblemIndex    int  `json:"currentProblemIndex"`
	CurrentSubproblemIndex int  `json:"currentSubproblemIndex"`
	IsComplete             bool `json:"isComplete"`
}

// StreamRequest is the payload for the streaming tutoring endpoint.
type StreamRequest struct {
	Action      Action `json:"action"`
	Problem     string `json:"problem"`
	Subproblem  string `json:"subproblem"`
	Solution    string `json:"solution,omitempty"`
	ChatHistory []Turn `json:"chatHistory"`
	UserCode    string `json:"userCode,omitempty"`
	State       *State `json:"currentState,omitempty"`
}

// HintRequest is the payload for the single-shot hint endpoint.
type HintRequest struct {
	Module          int    `json:"weekNumber"`
	ProblemIndex    int    `json:"problemIndex"`
	SubproblemIndex int    `json:"subproblemIndex"`
	Level           int    `json:"hintLevel"`
	ProblemText     string `json:"problemText"`
	SubproblemText  string `json:"subProblemText"`
	SolutionText    string `json:"subProblemSolutionText"`
	ChatHistory     []Turn `json:"chatHistory"`
	UserCode        string `json:"userCode"`
}

// Chunk is one fragment of streamed tutoring text. A non-nil Err terminates
// the stream.
type Chunk struct {
	Text string
	Err  error
}

// Stream is a lazy, in-order, finite sequence of text chunks. For validate
// actions the correctness verdict is extracted from the first protocol frame
// before any chunks are delivered, so Correct is populated by the time the
// stream is returned.
type Stream struct {
	// Correct is the validation verdict; nil for non-validate actions.
	Correct *bool
	// Chunks closes when the transport ends the response.
	Chunks <-chan Chunk
}

// Gateway is the streaming AI collaborator the engines talk to.
type Gateway interface {
	// Stream starts a tutoring exchange and streams the response.
	Stream(ctx context.Context, req *StreamRequest) (*Stream, error)

	// Hint performs a single-shot hint request.
	Hint(ctx context.Context, req *HintRequest) (string, error)
}
