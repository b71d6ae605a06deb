package llm

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-meeting/config"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{" OpenAI ", ProviderOpenAI, false},
		{"claude", ProviderAnthropic, false},
		{"google", ProviderGemini, false},
		{"openrouter", ProviderOpenRouter, false},
		{"mistral", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedProvider)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFactoryCreate(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.AnthropicAPIKey = "ak-test"

	f := NewFactory(cfg)

	t.Run("applies defaults", func(t *testing.T) {
		inv, err := f.Create(ModelConfig{Provider: ProviderOpenAI, Name: "gpt-4o"})
		require.NoError(t, err)
		assert.Equal(t, cfg.DefaultTemperature, inv.Model().Temperature)
		assert.Equal(t, cfg.DefaultMaxTokens, inv.Model().MaxTokens)
	})

	t.Run("keeps explicit settings", func(t *testing.T) {
		inv, err := f.Create(ModelConfig{Provider: ProviderAnthropic, Name: "claude", Temperature: 0.2, MaxTokens: 50})
		require.NoError(t, err)
		assert.Equal(t, 0.2, inv.Model().Temperature)
		assert.Equal(t, 50, inv.Model().MaxTokens)
	})

	t.Run("missing credential", func(t *testing.T) {
		_, err := f.Create(ModelConfig{Provider: ProviderGemini, Name: "gemini-2.5-pro"})
		assert.ErrorIs(t, err, ErrInitialization)
		assert.ErrorIs(t, err, ErrMissingCredential)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := f.Create(ModelConfig{Provider: "mistral", Name: "large"})
		assert.ErrorIs(t, err, ErrInitialization)
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("empty model name", func(t *testing.T) {
		_, err := f.Create(ModelConfig{Provider: ProviderOpenAI})
		assert.ErrorIs(t, err, ErrInitialization)
	})
}

func TestFactoryClientUsesConfiguredEndpointAndRetries(t *testing.T) {
	var calls atomic.Int32
	server := mockChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			errorHandler(502, "bad gateway")(w, r)
			return
		}
		chatHandler(t, "via openrouter", 3)(w, r)
	})

	cfg := config.Default()
	cfg.OpenRouterAPIKey = "or-key"
	cfg.OpenRouterBaseURL = server.URL
	cfg.CallsPerSecond = 1000
	cfg.RetryBaseDelay = time.Millisecond

	var slept []time.Duration
	f := NewFactory(cfg, WithHTTPClient(server.Client()), WithBackoffSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))

	inv, err := f.Create(ModelConfig{Provider: ProviderOpenRouter, Name: "x-ai/grok-4"})
	require.NoError(t, err)

	resp, err := inv.Submit(context.Background(), Request{UserMessage: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "via openrouter", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{time.Millisecond}, slept)
}
