package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject merge events are published on.
const DefaultSubject = "consolidation.merged"

// MergeEvent announces a non-empty merge.
type MergeEvent struct {
	RunID     string    `json:"run_id"`
	Partition string    `json:"partition"`
	File      string    `json:"file"`
	Added     int       `json:"added"`
	Total     int       `json:"total"`
	At        time.Time `json:"at"`
}

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier publishes merge events.
type Notifier struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

// NewNotifier publishes through pub. An empty subject uses DefaultSubject.
func NewNotifier(pub Publisher, subject string) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{pub: pub, subject: subject}
}

// ConnectNATS dials url and returns a Notifier that owns the connection.
func ConnectNATS(url, subject string) (*Notifier, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("consolidator"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	n := NewNotifier(conn, subject)
	n.conn = conn
	return n, nil
}

// Subject returns the subject events are published on.
func (n *Notifier) Subject() string {
	return n.subject
}

// Notify publishes ev. A zero At is stamped with the current time.
func (n *Notifier) Notify(ctx context.Context, ev MergeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal merge event: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains and closes an owned connection.
func (n *Notifier) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
