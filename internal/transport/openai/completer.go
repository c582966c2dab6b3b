package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/aero-edu/aero/internal/domain"
	"github.com/aero-edu/aero/internal/metrics"
)

// Completer calls the hosted chat-completion API. Every call carries an
// explicit timeout; the pipeline never holds a lock while a call is in
// flight.
type Completer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// CompleterConfig holds the completion provider settings.
type CompleterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewCompleter creates an OpenAI-compatible completion client.
func NewCompleter(cfg *CompleterConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Completer{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Complete implements domain.Completer. Failures map onto the core taxonomy:
// deadline -> ErrCompletionTimeout, rate limit and server errors ->
// ErrCompletionUnavailable. The caller owns retry policy.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	duration := time.Since(start)

	if err != nil {
		status := "error"
		mapped := parseCompletionError(ctx, err)
		if errors.Is(mapped, domain.ErrCompletionTimeout) {
			status = "timeout"
		}
		metrics.CompletionRequestDuration.WithLabelValues(c.model, status).Observe(duration.Seconds())
		return domain.CompletionResult{}, mapped
	}

	metrics.CompletionRequestDuration.WithLabelValues(c.model, "success").Observe(duration.Seconds())

	if len(resp.Choices) == 0 {
		return domain.CompletionResult{}, fmt.Errorf("empty completion response: %w", domain.ErrCompletionUnavailable)
	}

	return domain.CompletionResult{
		Answer:      resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

func parseCompletionError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("completion request: %w", domain.ErrCompletionTimeout)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("completion rate limited: %w", domain.ErrCompletionUnavailable)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("completion API error %d: %s: %w",
				apiErr.HTTPStatusCode, apiErr.Message, domain.ErrCompletionUnavailable)
		default:
			return fmt.Errorf("completion API error %d: %s: %w",
				apiErr.HTTPStatusCode, apiErr.Message, domain.ErrCompletionUnavailable)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("completion request error %d: %w",
			reqErr.HTTPStatusCode, domain.ErrCompletionUnavailable)
	}

	return fmt.Errorf("completion request failed: %w", domain.ErrCompletionUnavailable)
}
