package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatFunc sends a conversation to a reasoning model and returns the reply text.
type ChatFunc func(ctx context.Context, messages []Message) (string, error)

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client calls an OpenAI compatible chat completions endpoint.
type Client struct {
	rest        *helper.RestClient
	model       string
	temperature float64
	maxTokens   int
	jsonMode    bool
	timeout     time.Duration
	retry       helper.RetryPolicy
	logger      *slog.Logger
}

// NewClient creates a chat client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg model.ChatConfig, logger *slog.Logger, httpClient *http.Client) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		rest:        cfg.RestClient(httpClient),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		jsonMode:    cfg.JSONMode,
		timeout:     timeout,
		retry:       cfg.Retry.Policy(),
		logger:      logger,
	}
}

// ChatFunc adapts the client to the synthesizer.
func (c *Client) ChatFunc() ChatFunc {
	return c.Chat
}

// Chat returns the content of the first choice.
// Transient failures are retried, each attempt with its own timeout.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if c.jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var content string
	err := c.retry.Do(ctx, c.logger, "chat", func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		body, err := c.rest.Post(callCtx, "chat/completions", req)
		if err != nil {
			return helper.ClassifyHTTPError(err)
		}

		var resp chatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return helper.Permanent(helper.NewError("decode chat response", err))
		}
		if len(resp.Choices) == 0 {
			return helper.Permanent(fmt.Errorf("chat response has no choices"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("Chat completed", slog.String("model", c.model), slog.Int("reply_length", len(content)))
	return content, nil
}
