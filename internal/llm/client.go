package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/AlexJJJChen/NormBench/internal/model"
	"github.com/AlexJJJChen/NormBench/internal/util"
	"github.com/AlexJJJChen/NormBench/internal/worker"
)

// Completer is the narrow surface the inference stage needs from a model
// endpoint. Tests substitute a scripted implementation.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	ModelName() string
}

// Client calls an OpenAI-compatible chat completion endpoint with
// per-endpoint rate limiting and application-layer retries.
type Client struct {
	api     *openai.Client
	spec    *ResolvedModel
	cfg     model.LLMConfig
	limiter *worker.Limiter
	baseURL string
}

// NewClient builds a client for one resolved model
func NewClient(spec *ResolvedModel, cfg model.LLMConfig, limiter *worker.Limiter) *Client {
	clientConfig := openai.DefaultConfig(spec.APIKey)
	if spec.APIBase != "" {
		clientConfig.BaseURL = spec.APIBase
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
		},
	}
	return &Client{
		api:     openai.NewClientWithConfig(clientConfig),
		spec:    spec,
		cfg:     cfg,
		limiter: limiter,
		baseURL: clientConfig.BaseURL,
	}
}

// ModelName returns the upstream model identifier
func (c *Client) ModelName() string {
	return c.spec.Model
}

// Complete sends one chat completion request. Transient failures retry
// with exponential backoff; client-side request errors fail immediately.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	maxTokens := c.cfg.MaxTokens
	if c.spec.MaxTokens > 0 {
		maxTokens = c.spec.MaxTokens
	}
	req := openai.ChatCompletionRequest{
		Model:       c.spec.Model,
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	backoff := c.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	attempts := c.cfg.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, c.baseURL); err != nil {
				return "", err
			}
		}

		callCtx := ctx
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
		resp, err := c.api.CreateChatCompletion(callCtx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !retryable(err) {
				return "", fmt.Errorf("chat completion (%s): %w", c.spec.Alias, err)
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty completion from %s", c.spec.Alias)
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("chat completion (%s) after %d attempts: %w", c.spec.Alias, attempts, lastErr)
}

// retryable classifies an API error. Rate limits, server errors and
// transport failures retry; authentication and request shape errors do not.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	// Transport-level failure (timeout, connection reset).
	return true
}
