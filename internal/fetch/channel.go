// Package fetch acquires raw profile content from an adversarial target
// site through an ordered chain of acquisition channels, then coordinates
// caching, rate limiting and concurrency for whole batches.
package fetch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/metrics"
)

// ErrNoContent reports that a channel produced nothing usable for a URL.
var ErrNoContent = errors.New("fetch: no content")

// Channel is one strategy for acquiring a profile's raw content. Channels
// swallow their own transient errors; the chain treats any error as a
// fall-through to the next channel.
type Channel interface {
	// Name identifies the channel in logs, metrics and candidate records.
	Name() string
	// Available reports whether the channel can be attempted at all:
	// credentials present, circuit closed.
	Available() bool
	// MinContentLen is the channel's own usability threshold; shorter
	// content falls through to the next channel.
	MinContentLen() int
	Fetch(ctx context.Context, profileURL string) (string, error)
}

// Chain tries channels in order and returns the first result that meets the
// producing channel's threshold.
type Chain struct {
	channels []Channel
	logger   *zap.Logger
}

// NewChain builds a chain over the given channels in priority order.
func NewChain(logger *zap.Logger, channels ...Channel) *Chain {
	return &Chain{channels: channels, logger: logger}
}

// Fetch returns the winning content and the name of the channel that
// produced it. Exhausting every channel returns ErrNoContent; callers treat
// that as a soft skip for the URL, never a batch failure.
func (c *Chain) Fetch(ctx context.Context, profileURL string) (string, string, error) {
	for _, ch := range c.channels {
		if !ch.Available() {
			metrics.ObserveChannelAttempt(ch.Name(), "skipped")
			continue
		}
		start := time.Now()
		content, err := ch.Fetch(ctx, profileURL)
		metrics.ObserveFetchDuration(ch.Name(), time.Since(start))
		if err != nil {
			metrics.ObserveChannelAttempt(ch.Name(), "error")
			c.logger.Debug("channel failed, falling through",
				zap.String("channel", ch.Name()),
				zap.String("url", profileURL),
				zap.Error(err),
			)
			continue
		}
		if len(content) < ch.MinContentLen() {
			metrics.ObserveChannelAttempt(ch.Name(), "thin")
			c.logger.Debug("channel content below threshold",
				zap.String("channel", ch.Name()),
				zap.String("url", profileURL),
				zap.Int("len", len(content)),
			)
			continue
		}
		metrics.ObserveChannelAttempt(ch.Name(), "success")
		return content, ch.Name(), nil
	}
	return "", "", ErrNoContent
}
