// Package embed wraps the embedding service.
package embed

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/metrics"
	"github.com/wadl-labs/candidate-sourcer/internal/talent"
)

// Service turns text into a fixed-length vector.
type Service interface {
	Embed(ctx context.Context, text string) (talent.Vector, error)
	ModelName() string
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Embedder calls an OpenAI-compatible embeddings API.
type Embedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	timeout time.Duration
	logger  *zap.Logger
}

// New builds an Embedder.
func New(cfg Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Embedder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   openai.EmbeddingModel(cfg.Model),
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// ModelName reports the configured embedding model.
func (e *Embedder) ModelName() string {
	return string(e.model)
}

// Embed returns the vector for one text.
func (e *Embedder) Embed(ctx context.Context, text string) (talent.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		metrics.ObserveEmbeddingRequest("error")
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		metrics.ObserveEmbeddingRequest("error")
		return nil, fmt.Errorf("create embedding: empty response")
	}
	metrics.ObserveEmbeddingRequest("success")
	return talent.Vector(resp.Data[0].Embedding), nil
}
