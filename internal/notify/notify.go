// Package notify publishes run-completion events for downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunSummary is the event payload for one finished sourcing run.
type RunSummary struct {
	RunID       uuid.UUID `json:"run_id"`
	JDID        int64     `json:"jd_id"`
	Requested   int       `json:"requested"`
	Acquired    int       `json:"acquired"`
	Rounds      int       `json:"rounds"`
	Satisfied   bool      `json:"satisfied"`
	CompletedAt time.Time `json:"completed_at"`
}

// Notifier delivers run-completion events.
type Notifier interface {
	RunCompleted(ctx context.Context, summary RunSummary) error
}

// Noop swallows events. It is the default backend.
type Noop struct{}

// RunCompleted discards the event.
func (Noop) RunCompleted(context.Context, RunSummary) error { return nil }

// PubSub publishes run summaries to a Google Cloud Pub/Sub topic.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSub creates a Pub/Sub client and verifies the topic exists, failing
// fast on misconfiguration. Authentication uses Application Default
// Credentials.
func NewPubSub(ctx context.Context, projectID, topicName string, logger *zap.Logger) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check topic %q: %w", topicName, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicName, projectID)
	}
	return &PubSub{client: client, topic: topic, logger: logger}, nil
}

// RunCompleted publishes the summary as JSON and blocks until the server
// acknowledges it. Runs finish once, right before process exit, so
// fire-and-forget would risk dropping the event.
func (p *PubSub) RunCompleted(ctx context.Context, summary RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event": "run_completed"},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	return nil
}

// Close stops the topic's publisher and closes the client.
func (p *PubSub) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// Memory captures events for tests.
type Memory struct {
	mu     sync.Mutex
	events []RunSummary
}

// NewMemory returns an empty in-memory notifier.
func NewMemory() *Memory {
	return &Memory{}
}

// RunCompleted records the summary.
func (m *Memory) RunCompleted(_ context.Context, summary RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, summary)
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []RunSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RunSummary, len(m.events))
	copy(out, m.events)
	return out
}
