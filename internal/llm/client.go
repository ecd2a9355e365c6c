// Package llm adapts langchaingo chat models to the pipeline's generation contract.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"ragflow/internal/domain"
)

// Model is the subset of llms.Model the client needs.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Config tunes every generation call.
type Config struct {
	Temperature       float64
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client sends prompts to a Model with a fixed temperature and a per-call timeout.
// It is safe for concurrent use when the underlying Model is.
type Client struct {
	model       Model
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewClient wraps model.
func NewClient(model Model, cfg Config) *Client {
	t := cfg.Timeout
	if t == 0 {
		t = 120 * time.Second
	}
	c := &Client{model: model, temperature: cfg.Temperature, timeout: t}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Generate returns the text of the first choice. Every failure, including an
// expired timeout, is reported as domain.ErrGenerationUnavailable.
func (c *Client) Generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: waiting for rate limiter: %w", domain.ErrGenerationUnavailable, err)
		}
	}
	resp, err := c.model.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, errors.New("no choices returned"))
	}
	return resp.Choices[0].Content, nil
}
