// Package notify publishes a summary of every build run so downstream
// consumers (site deploys, chat bots) can react without polling.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/logfields"
)

// Summary is the message published after a run.
type Summary struct {
	BuildID            string    `json:"build_id"`
	Status             string    `json:"status"` // success|warning|failed|canceled
	StartedAt          time.Time `json:"started_at"`
	DurationMs         int64     `json:"duration_ms"`
	Producers          int       `json:"producers"`
	Materials          int       `json:"materials"`
	Filaments          int       `json:"filaments"`
	IdentifiersMinted  int       `json:"identifiers_minted"`
	DocumentsSkipped   int       `json:"documents_skipped"`
	DescriptorsWritten int       `json:"descriptors_written"`
	LeafFailures       int       `json:"leaf_failures"`
	CatalogSHA256      string    `json:"catalog_sha256,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// Notifier delivers run summaries.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
	Close() error
}

// Noop discards summaries.
type Noop struct{}

func (Noop) Notify(context.Context, Summary) error { return nil }
func (Noop) Close() error                          { return nil }

// conn is the part of *nats.Conn the notifier uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSNotifier publishes summaries as JSON on a NATS subject.
type NATSNotifier struct {
	conn    conn
	subject string
	logger  *slog.Logger
}

// NewNATSNotifier connects to the NATS server at url.
func NewNATSNotifier(url, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("catalogbuilder"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, ferrors.NotifyError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", url).
			Build()
	}
	logger.Info("NATS notifier connected", slog.String("url", url), slog.String("subject", subject))
	return &NATSNotifier{conn: nc, subject: subject, logger: logger}, nil
}

// Notify publishes s and waits for the server to acknowledge the flush.
func (n *NATSNotifier) Notify(ctx context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return ferrors.InternalError("failed to marshal run summary").WithCause(err).Build()
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return ferrors.NotifyError("failed to publish run summary").
			WithCause(err).
			WithContext("subject", n.subject).
			Build()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return ferrors.NotifyError("failed to flush run summary").
			WithCause(err).
			WithContext("subject", n.subject).
			Build()
	}
	n.logger.Debug("Published run summary",
		logfields.BuildID(s.BuildID),
		slog.String("subject", n.subject),
		slog.String("status", s.Status))
	return nil
}

// Close closes the connection. Calling it again is a no-op.
func (n *NATSNotifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	return nil
}
