// Package llm is the invocation layer: one rate-limited, retrying client per
// configured backend model, over a small set of wire protocols.
package llm

import (
	"context"
	"time"
)

// Provider names a backend family.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGemini     Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ModelConfig identifies one backend model and how it should speak.
// Zero Temperature and MaxTokens fall back to configured defaults.
type ModelConfig struct {
	Provider    Provider `json:"provider" yaml:"provider"`
	Name        string   `json:"name" yaml:"name"`
	Persona     string   `json:"persona,omitempty" yaml:"persona"`
	Temperature float64  `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// Message is a chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one logical call. Zero-valued overrides use the model defaults.
type Request struct {
	UserMessage   string
	History       []Message
	SystemMessage string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
}

// Response is the text a backend produced and the tokens it billed.
type Response struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// Invoker is the uniform call contract shared by every backend client.
type Invoker interface {
	Submit(ctx context.Context, req Request) (*Response, error)
	Model() ModelConfig
}

// Completion is the resolved payload a Backend sends in a single attempt.
type Completion struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Backend performs exactly one network attempt. Retries, pacing and
// timeouts belong to Client.
type Backend interface {
	Complete(ctx context.Context, c Completion) (*Response, error)
	Provider() Provider
}
