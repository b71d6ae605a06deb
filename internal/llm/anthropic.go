package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	anthropicVersion          = "2023-06-01"
	anthropicDefaultMaxTokens = 1024
)

// AnthropicBackend speaks the Anthropic messages protocol.
type AnthropicBackend struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewAnthropicBackend returns a backend posting to url.
func NewAnthropicBackend(url, apiKey string, httpClient *http.Client) *AnthropicBackend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AnthropicBackend{url: url, apiKey: apiKey, httpClient: httpClient}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

func (b *AnthropicBackend) Provider() Provider { return ProviderAnthropic }

// Complete performs one messages POST. The system turn moves to the
// top-level field and consecutive same-role turns are merged.
func (b *AnthropicBackend) Complete(ctx context.Context, c Completion) (*Response, error) {
	system, messages := splitSystem(c.Messages)

	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	temperature := c.Temperature
	if temperature > 1 {
		temperature = 1
	}

	payloadBytes, err := json.Marshal(anthropicRequest{
		Model:       c.Model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	body, err := doRequest(b.httpClient, req, ProviderAnthropic, c.Model)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, &Error{Kind: KindBackendStatus, Provider: ProviderAnthropic, Model: c.Model, Message: "malformed response body"}
	}

	// Extract text from response
	var text strings.Builder
	gjson.GetBytes(body, `content.#(type=="text")#.text`).ForEach(func(_, value gjson.Result) bool {
		text.WriteString(value.String())
		return true
	})

	usage := gjson.GetBytes(body, "usage")
	return &Response{
		Content:    text.String(),
		TokensUsed: int(usage.Get("input_tokens").Int() + usage.Get("output_tokens").Int()),
	}, nil
}

func splitSystem(in []Message) (string, []Message) {
	var system []string
	out := make([]Message, 0, len(in))
	for _, m := range in {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := m.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, Message{Role: role, Content: m.Content})
	}
	return strings.Join(system, "\n\n"), out
}
