package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SessionConfig configures the session-based scraping fallback.
type SessionConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// SessionChannel is a third-party session-scraping API. It only belongs in
// a chain when the dataset channel has no key; the two cover the same
// ground and the dataset API is preferred.
type SessionChannel struct {
	apiKey   string
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// NewSession builds the channel.
func NewSession(cfg SessionConfig) *SessionChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &SessionChannel{
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   cfg.Logger,
	}
}

func (s *SessionChannel) Name() string { return "session" }

func (s *SessionChannel) Available() bool { return s.apiKey != "" && s.endpoint != "" }

func (s *SessionChannel) MinContentLen() int { return 200 }

// Fetch requests one profile through the session API.
func (s *SessionChannel) Fetch(ctx context.Context, profileURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"url": profileURL})
	if err != nil {
		return "", fmt.Errorf("marshal session request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("session request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("session request: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read session response: %w", err)
	}
	return string(raw), nil
}
