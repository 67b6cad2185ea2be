// Package llm wraps the structured-extraction service behind typed prompt
// contracts. Every contract has one validated record shape with explicit
// defaults; a response that does not match the shape is reported as
// ErrSchemaMismatch and recovered by the caller, never a crash.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/metrics"
)

// ErrSchemaMismatch reports a response that did not match the contract shape.
var ErrSchemaMismatch = errors.New("llm: response does not match contract")

// Service is the structured-extraction surface used by the rest of the
// system.
type Service interface {
	ParseJD(ctx context.Context, rawText string) (ParsedJD, error)
	EnrichProfile(ctx context.Context, corpus string) (Enrichment, error)
	GenerateQueries(ctx context.Context, jdSummary string, n int) ([]string, error)
	RefineQueries(ctx context.Context, jdSummary, coverageSummary string, n int) ([]string, error)
	SynthesizeProfile(ctx context.Context, name, jobTitle, company string) (Enrichment, error)
}

// Config holds the extraction client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client calls an OpenAI-compatible chat API with JSON-object responses.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a Client. The logger must not be nil; use zap.NewNop in tests.
func New(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// completeJSON runs one chat completion and decodes the JSON body into out.
func (c *Client) completeJSON(ctx context.Context, contract, system, user string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		metrics.ObserveLLMRequest(contract, "error")
		return fmt.Errorf("%s completion: %w", contract, err)
	}
	if len(resp.Choices) == 0 {
		metrics.ObserveLLMRequest(contract, "error")
		return fmt.Errorf("%s completion: empty response", contract)
	}

	body := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		metrics.ObserveLLMRequest(contract, "mismatch")
		c.logger.Warn("contract shape mismatch",
			zap.String("contract", contract),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", contract, ErrSchemaMismatch)
	}
	metrics.ObserveLLMRequest(contract, "success")
	return nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
