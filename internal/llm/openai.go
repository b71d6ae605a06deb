package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 512

// OpenAIBackend speaks the OpenAI chat-completions protocol. OpenRouter and
// Gemini's OpenAI-compatible endpoint use it too.
type OpenAIBackend struct {
	provider   Provider
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIBackend returns a backend posting to url with a bearer key.
func NewOpenAIBackend(provider Provider, url, apiKey string, httpClient *http.Client) *OpenAIBackend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAIBackend{
		provider:   provider,
		url:        url,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

func (b *OpenAIBackend) Provider() Provider { return b.provider }

// Complete performs one chat-completions POST.
func (b *OpenAIBackend) Complete(ctx context.Context, c Completion) (*Response, error) {
	payloadBytes, err := json.Marshal(chatCompletionRequest{
		Model:       c.Model,
		Messages:    c.Messages,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := doRequest(b.httpClient, req, b.provider, c.Model)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, &Error{Kind: KindBackendStatus, Provider: b.provider, Model: c.Model, Message: "malformed response body"}
	}
	choice := gjson.GetBytes(body, "choices.0")
	if !choice.Exists() {
		return nil, &Error{Kind: KindBackendStatus, Provider: b.provider, Model: c.Model, Message: "no choices in response"}
	}

	return &Response{
		Content:    choice.Get("message.content").String(),
		TokensUsed: int(gjson.GetBytes(body, "usage.total_tokens").Int()),
	}, nil
}

// doRequest executes req and returns the body of a 2xx response, or a
// classified *Error.
func doRequest(client *http.Client, req *http.Request, provider Provider, model string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Kind: Classify(err), Provider: provider, Model: model, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransientNetwork, Provider: provider, Model: model, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := KindForStatus(resp.StatusCode)
		if kind == KindRateLimited && quotaExhausted(body) {
			kind = KindBackendStatus
		}
		return nil, &Error{
			Kind:       kind,
			Provider:   provider,
			Model:      model,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}
	return body, nil
}

// errorMessage pulls a readable message out of a provider error body.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "0.error.message", "error", "message"} {
			if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String {
				return v.String()
			}
		}
	}
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}

// quotaCodes are error codes for an exhausted account quota. Waiting does
// not clear them, so they are not rate limits.
var quotaCodes = map[string]bool{
	"insufficient_quota":         true,
	"billing_hard_limit_reached": true,
}

// quotaExhausted reports whether a 429 body describes an exhausted quota
// rather than a temporary rate limit. Gemini wraps its error in an array and
// reports per-minute limits as RESOURCE_EXHAUSTED too.
func quotaExhausted(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		root = root.Get("0")
	}
	e := root.Get("error")
	if !e.IsObject() {
		return false
	}
	if quotaCodes[e.Get("code").String()] || quotaCodes[e.Get("type").String()] {
		return true
	}
	if e.Get("status").String() != "RESOURCE_EXHAUSTED" {
		return false
	}
	msg := strings.ToLower(e.Get("message").String())
	return strings.Contains(msg, "quota") && !strings.Contains(msg, "per minute")
}
