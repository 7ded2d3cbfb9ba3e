// Package events publishes build lifecycle events to NATS so external
// dashboards can follow pipeline progress. Publishing is fire-and-forget
// telemetry: failures are logged and never affect the pipeline.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// BuildEvent is the wire form of one lifecycle transition.
type BuildEvent struct {
	Task      string    `json:"task"`
	Round     int       `json:"round"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits build events.
type Publisher interface {
	Publish(ev BuildEvent)
	Close()
}

// NoopPublisher drops all events (publishing disabled).
type NoopPublisher struct{}

func (NoopPublisher) Publish(BuildEvent) {}
func (NoopPublisher) Close()             {}

// NATSPublisher publishes events to a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to NATS. The connection reconnects
// automatically; events raised while disconnected are dropped.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("appforge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to NATS for build events", "url", url, "subject", subject)
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Publish emits one event.
func (p *NATSPublisher) Publish(ev BuildEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("failed to marshal build event", "task", ev.Task, "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		slog.Warn("failed to publish build event", "task", ev.Task, "error", err)
	}
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
