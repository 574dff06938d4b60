package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/siherrmann/docqa/core/pipeline"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
)

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client calls an OpenAI compatible embeddings endpoint.
// Inputs are sent in batches, every call has its own timeout and transient failures are retried.
type Client struct {
	rest          *helper.RestClient
	model         string
	batchSize     int
	maxBatchChars int
	dimensions    int
	observed      atomic.Int64
	timeout       time.Duration
	retry         helper.RetryPolicy
	logger        *slog.Logger
}

// NewClient creates an embedding client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg model.EmbeddingConfig, logger *slog.Logger, httpClient *http.Client) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 16
	}
	maxBatchChars := cfg.MaxBatchChars
	if maxBatchChars < 1 {
		maxBatchChars = 32000
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rest:          cfg.RestClient(httpClient),
		model:         cfg.Model,
		batchSize:     batchSize,
		maxBatchChars: maxBatchChars,
		dimensions:    cfg.Dimensions,
		timeout:       timeout,
		retry:         cfg.Retry.Policy(),
		logger:        logger,
	}
}

// ModelName returns the configured model or deployment name.
func (c *Client) ModelName() string {
	return c.model
}

// Dimensions returns the configured dimension, or the one seen in the last response.
// It is 0 while neither is known.
func (c *Client) Dimensions() int {
	if c.dimensions > 0 {
		return c.dimensions
	}
	return int(c.observed.Load())
}

// EmbedFunc adapts the client to the pipeline.
func (c *Client) EmbedFunc() pipeline.EmbedFunc {
	return c.Embed
}

// EmbedQuery embeds a single text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Embed returns one vector per text in input order.
// Every failure is reported as model.ErrEmbeddingUnavailable wrapping the cause.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: empty input text at position %d", model.ErrEmbeddingUnavailable, i)
		}
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range c.batches(texts) {
		vectors, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrEmbeddingUnavailable, err)
		}
		out = append(out, vectors...)
	}

	return out, nil
}

// batches groups texts in order, bounded by count and total characters.
// A single text longer than the character bound forms its own batch.
func (c *Client) batches(texts []string) [][]string {
	var batches [][]string
	var current []string
	chars := 0
	for _, text := range texts {
		length := len([]rune(text))
		if len(current) > 0 && (len(current) >= c.batchSize || chars+length > c.maxBatchChars) {
			batches = append(batches, current)
			current = nil
			chars = 0
		}
		current = append(current, text)
		chars += length
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	err := c.retry.Do(ctx, c.logger, "embeddings", func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		body, err := c.rest.Post(callCtx, "embeddings", embeddingRequest{
			Model:      c.model,
			Input:      batch,
			Dimensions: c.dimensions,
		})
		if err != nil {
			return helper.ClassifyHTTPError(err)
		}

		vectors, err = c.decode(body, len(batch))
		if err != nil {
			return helper.Permanent(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Embedded batch", slog.Int("num_texts", len(batch)), slog.String("model", c.model))
	return vectors, nil
}

// decode orders the response items by their index and checks the dimensions.
func (c *Client) decode(body []byte, expected int) ([][]float32, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, helper.NewError("decode embeddings", err)
	}
	if len(resp.Data) != expected {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), expected)
	}

	vectors := make([][]float32, expected)
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= expected || vectors[item.Index] != nil {
			return nil, fmt.Errorf("invalid embedding index %d", item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", item.Index)
		}
		if c.dimensions > 0 && len(item.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d", model.ErrDimensionMismatch, len(item.Embedding), c.dimensions)
		}
		vectors[item.Index] = item.Embedding
	}

	c.observed.Store(int64(len(vectors[0])))
	return vectors, nil
}
