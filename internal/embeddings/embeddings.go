// Package embeddings adapts an external embedding provider to a narrow
// text-to-vector interface.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrProviderUnavailable reports that the embedding provider could not be
// reached or returned malformed output. Callers must not treat this as an
// empty or zero vector: a default vector would produce false similarity
// matches downstream.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Embedder converts text into a fixed-length vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client is an Embedder backed by an OpenAI-compatible embeddings endpoint.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient builds an embeddings client. baseURL may be empty for the
// provider's public endpoint.
func NewClient(log *slog.Logger, apiKey, baseURL, model string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  log.With(slog.String("service", "embeddings")),
	}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		c.logger.Warn("embedding request failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrProviderUnavailable)
	}
	return resp.Data[0].Embedding, nil
}
