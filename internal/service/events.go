package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Workspace lifecycle event types.
const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventCacheCleared = "cache.cleared"
)

// WorkspaceEvent is published on every grading lifecycle transition.
type WorkspaceEvent struct {
	Source     string    `json:"source"`
	Type       string    `json:"type"`
	Token      uint64    `json:"token"`
	Files      int       `json:"files,omitempty"`
	BatchID    string    `json:"batch_id,omitempty"`
	StatusText string    `json:"status_text"`
	SentAt     time.Time `json:"sent_at"`
}

// EventPublisher fans workspace events out to other processes.
type EventPublisher interface {
	Publish(ctx context.Context, event WorkspaceEvent) error
}

type natsEventPublisher struct {
	conn    *nats.Conn
	subject string
	nodeID  string
	logger  zerolog.Logger
}

// NewNATSEventPublisher publishes events on subject. A nil connection yields a no-op publisher.
func NewNATSEventPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) EventPublisher {
	if conn == nil || subject == "" {
		return noopPublisher{}
	}
	return &natsEventPublisher{
		conn:    conn,
		subject: subject,
		nodeID:  uuid.NewString(),
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsEventPublisher) Publish(ctx context.Context, event WorkspaceEvent) error {
	event.Source = p.nodeID
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject+"."+event.Type, payload); err != nil {
		p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish workspace event")
		return err
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, WorkspaceEvent) error { return nil }
