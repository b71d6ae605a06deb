package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"llm-meeting/config"
)

// Factory creates one Client per model. The set of providers is closed and
// resolved by the switch in Backend.
type Factory struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithHTTPClient sets the HTTP client shared by all backends.
func WithHTTPClient(c *http.Client) FactoryOption {
	return func(f *Factory) {
		f.httpClient = c
	}
}

// WithFactoryLogger sets the logger handed to created clients.
func WithFactoryLogger(l *zap.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithBackoffSleep replaces the wait used between retries.
func WithBackoffSleep(sleep func(ctx context.Context, d time.Duration) error) FactoryOption {
	return func(f *Factory) {
		f.sleep = sleep
	}
}

// NewFactory returns a factory reading credentials and limits from cfg.
func NewFactory(cfg *config.Config, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ParseProvider normalizes a provider name, accepting common aliases.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "openrouter":
		return ProviderOpenRouter, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
}

// Backend returns the wire protocol implementation for provider.
func (f *Factory) Backend(provider Provider) (Backend, error) {
	switch provider {
	case ProviderOpenAI:
		if f.cfg.OpenAIAPIKey == "" {
			return nil, missingKey(provider, "OPENAI_API_KEY")
		}
		return NewOpenAIBackend(provider, f.cfg.OpenAIBaseURL, f.cfg.OpenAIAPIKey, f.httpClient), nil
	case ProviderOpenRouter:
		if f.cfg.OpenRouterAPIKey == "" {
			return nil, missingKey(provider, "OPENROUTER_API_KEY")
		}
		return NewOpenAIBackend(provider, f.cfg.OpenRouterBaseURL, f.cfg.OpenRouterAPIKey, f.httpClient), nil
	case ProviderGemini:
		if f.cfg.GoogleAPIKey == "" {
			return nil, missingKey(provider, "GOOGLE_API_KEY")
		}
		return NewOpenAIBackend(provider, f.cfg.GeminiBaseURL, f.cfg.GoogleAPIKey, f.httpClient), nil
	case ProviderAnthropic:
		if f.cfg.AnthropicAPIKey == "" {
			return nil, missingKey(provider, "ANTHROPIC_API_KEY")
		}
		return NewAnthropicBackend(f.cfg.AnthropicBaseURL, f.cfg.AnthropicAPIKey, f.httpClient), nil
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrInitialization, ErrUnsupportedProvider, provider)
	}
}

// Create returns a client for model with configured defaults applied.
func (f *Factory) Create(model ModelConfig) (Invoker, error) {
	if strings.TrimSpace(model.Name) == "" {
		return nil, fmt.Errorf("%w: model name is empty", ErrInitialization)
	}

	backend, err := f.Backend(model.Provider)
	if err != nil {
		return nil, err
	}

	if model.Temperature <= 0 {
		model.Temperature = f.cfg.DefaultTemperature
	}
	if model.MaxTokens <= 0 {
		model.MaxTokens = f.cfg.DefaultMaxTokens
	}

	policy := RetryPolicy{
		MaxRetries: f.cfg.MaxRetries,
		BaseDelay:  f.cfg.RetryBaseDelay,
		MaxDelay:   f.cfg.RetryMaxDelay,
		Sleep:      f.sleep,
	}

	return NewClient(backend, model,
		WithRetryPolicy(policy),
		WithTimeout(f.cfg.RequestTimeout),
		WithCallsPerSecond(f.cfg.CallsPerSecond),
		WithLogger(f.logger.With(zap.String("model", model.Name))),
	), nil
}

func missingKey(provider Provider, env string) error {
	return fmt.Errorf("%w: %w: provider %s requires %s", ErrInitialization, ErrMissingCredential, provider, env)
}
