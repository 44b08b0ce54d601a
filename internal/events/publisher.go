// Package events publishes merge lifecycle events over NATS.
// Delivery is best-effort: publication failures are logged and never
// escalate to the caller.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectSchemaMerged is the subject merge-completed events are published on.
const SubjectSchemaMerged = "schema.merged"

// MergedEvent is the payload published after a merge commit lands.
type MergedEvent struct {
	Database     string                 `json:"database"`
	SourceBranch string                 `json:"source_branch"`
	TargetBranch string                 `json:"target_branch"`
	CommitID     string                 `json:"commit_id"`
	Conflicts    int                    `json:"conflicts"`
	AutoResolved bool                   `json:"auto_resolved"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    string                 `json:"timestamp"`
}

// Publisher sends events to a NATS server. A nil Publisher is valid and
// drops all events, so callers never need to branch on configuration.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect establishes a NATS connection. An empty URL disables eventing
// and returns a nil publisher without error.
func Connect(url string, logger *slog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("ovc"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return &Publisher{conn: conn, logger: logger}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

// PublishMerged publishes a schema.merged event. Errors are logged and
// swallowed; the merge has already succeeded by the time this runs.
func (p *Publisher) PublishMerged(event *MergedEvent) {
	if p == nil || p.conn == nil {
		return
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("events: marshal merged event", "error", err)
		return
	}

	if err := p.conn.Publish(SubjectSchemaMerged, data); err != nil {
		p.logger.Warn("events: publish failed", "subject", SubjectSchemaMerged, "error", err)
		return
	}
	p.logger.Debug("events: published", "subject", SubjectSchemaMerged, "commit", event.CommitID)
}
