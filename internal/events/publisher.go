package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the platform.
const (
	TypeRunStarted    = "run.started"
	TypeRunCompleted  = "run.completed"
	TypeChatAppended  = "chat.appended"
	TypeHintRequested = "hint.requested"
	TypeTimerClosed   = "timer.closed"
)

// Event is one analytics event. Payload carries type-specific fields.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	UserID     uuid.UUID      `json:"user_id"`
	Module     int            `json:"module"`
	RunID      uuid.UUID      `json:"run_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// New creates an event stamped with a fresh ID and the current time.
func New(eventType string, userID uuid.UUID, module int, runID uuid.UUID, payload map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     userID,
		Module:     module,
		RunID:      runID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers analytics events. Publishing is best-effort: callers log
// failures and move on, the learner-facing path never blocks on the broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// AMQPPublisher publishes events to RabbitMQ.
type AMQPPublisher struct {
	conn *Connection
}

// NewAMQPPublisher creates a publisher over an existing connection.
func NewAMQPPublisher(conn *Connection) *AMQPPublisher {
	return &AMQPPublisher{conn: conn}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	return p.conn.publishJSON(ctx, event)
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

var (
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = NopPublisher{}
)
