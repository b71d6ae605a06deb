package llm

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicBackendComplete(t *testing.T) {
	var payload map[string]any
	server := mockChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		payload = decodeBody(t, r)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "Part one. "},
				{"type": "tool_use", "id": "x"},
				{"type": "text", "text": "Part two."}
			],
			"usage": {"input_tokens": 12, "output_tokens": 30}
		}`))
	})

	backend := NewAnthropicBackend(server.URL, "test-key", nil)
	resp, err := backend.Complete(context.Background(), Completion{
		Model: "claude-sonnet",
		Messages: []Message{
			{Role: RoleSystem, Content: "Be brief."},
			{Role: RoleUser, Content: "[history]"},
			{Role: RoleUser, Content: "Question"},
		},
		Temperature: 1.5,
	})

	require.NoError(t, err)
	assert.Equal(t, "Part one. Part two.", resp.Content)
	assert.Equal(t, 42, resp.TokensUsed)

	assert.Equal(t, "Be brief.", payload["system"])
	assert.Equal(t, float64(anthropicDefaultMaxTokens), payload["max_tokens"])
	assert.Equal(t, 1.0, payload["temperature"])
	messages, ok := payload["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, "[history]\n\nQuestion", messages[0].(map[string]any)["content"])
}

func TestAnthropicBackendOverloaded(t *testing.T) {
	server := mockChatServer(t, errorHandler(529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))

	backend := NewAnthropicBackend(server.URL, "k", nil)
	_, err := backend.Complete(context.Background(), Completion{Model: "claude"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindTransientNetwork, apiErr.Kind)
	assert.Equal(t, "Overloaded", apiErr.Message)
}

func TestSplitSystem(t *testing.T) {
	system, messages := splitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "u1"},
		{Role: RoleAssistant, Content: "x"},
		{Role: "tool", Content: "u2"},
	})

	assert.Equal(t, "a", system)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "u1"},
		{Role: RoleAssistant, Content: "x"},
		{Role: RoleUser, Content: "u2"},
	}, messages)
}
