// Package llm provides the language model providers used by the catch-all
// handler.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by providers that lack credentials.
var ErrNotConfigured = errors.New("llm provider not configured")

// Provider defines the interface for LLM providers.
type Provider interface {
	// Chat sends a message and returns the response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string

	// Available returns true if the provider is configured.
	Available() bool
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	// Model to use; the provider default when empty.
	Model string `json:"model"`

	// SystemPrompt sets the model's behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	Messages []Message `json:"messages"`

	// MaxTokens limits response length; the provider default when zero.
	MaxTokens int `json:"max_tokens,omitempty"`

	Temperature float64 `json:"temperature,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatResponse contains the model's response.
type ChatResponse struct {
	Content          string        `json:"content"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Duration         time.Duration `json:"duration"`
	FinishReason     string        `json:"finish_reason,omitempty"`
}

// ProviderConfig contains configuration for an LLM provider.
type ProviderConfig struct {
	Name      string
	Endpoint  string // API base URL; the SDK default when empty
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}
