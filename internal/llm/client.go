package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultRequestTimeout = 60 * time.Second

// Client wraps a Backend with a per-client rate gate, a per-call timeout and
// a retry policy. Each Client owns its own gate, so clients never throttle
// one another.
type Client struct {
	backend Backend
	model   ModelConfig
	limiter *rate.Limiter
	policy  RetryPolicy
	timeout time.Duration
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// WithTimeout sets the default per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCallsPerSecond sets the minimum interval between calls to 1/cps.
// A non-positive value disables the gate.
func WithCallsPerSecond(cps float64) ClientOption {
	return func(c *Client) {
		if cps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(cps), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for model over backend.
func NewClient(backend Backend, model ModelConfig, opts ...ClientOption) *Client {
	c := &Client{
		backend: backend,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		policy:  DefaultRetryPolicy(),
		timeout: defaultRequestTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configuration the client was created for.
func (c *Client) Model() ModelConfig {
	return c.model
}

// Submit sends one logical request. It waits for the rate gate once, then
// attempts the call under the retry policy with a fresh timeout per attempt.
func (c *Client) Submit(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	completion := Completion{
		Model:       c.model.Name,
		Messages:    BuildMessages(req),
		Temperature: c.model.Temperature,
		MaxTokens:   c.model.MaxTokens,
	}
	if req.Temperature > 0 {
		completion.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		completion.MaxTokens = req.MaxTokens
	}

	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	policy := c.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("retrying backend call",
			zap.String("provider", string(c.model.Provider)),
			zap.String("model", c.model.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", policy.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err))
	}

	return Call(ctx, policy, func(ctx context.Context, attempt int) (*Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return c.backend.Complete(callCtx, completion)
	})
}

// BuildMessages orders a request as system message (if any), history, then
// the user message.
func BuildMessages(req Request) []Message {
	messages := make([]Message, 0, len(req.History)+2)
	if req.SystemMessage != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemMessage})
	}
	messages = append(messages, req.History...)
	messages = append(messages, Message{Role: RoleUser, Content: req.UserMessage})
	return messages
}
