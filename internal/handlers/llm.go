package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/normanking/switchboard/internal/dispatch"
	"github.com/normanking/switchboard/internal/llm"
)

// LLMName is the registered name of the language model fallback handler.
const LLMName = "LLM"

// LLM forwards any query to a language model. It accepts everything and
// adds no scoring bonus, so it only wins when no specialised handler
// qualifies or when it is registered ahead of equally scored handlers.
type LLM struct {
	provider  llm.Provider
	system    string
	maxTokens int
}

var (
	_ dispatch.Handler       = (*LLM)(nil)
	_ dispatch.HealthChecker = (*LLM)(nil)
)

// NewLLM creates the fallback handler on provider.
func NewLLM(provider llm.Provider, systemPrompt string, maxTokens int) *LLM {
	return &LLM{provider: provider, system: systemPrompt, maxTokens: maxTokens}
}

func (h *LLM) Name() string { return LLMName }

func (h *LLM) Specialization() string {
	return fmt.Sprintf("Open-ended questions (%s)", h.provider.Name())
}

func (h *LLM) CanHandle(query string) bool {
	return strings.TrimSpace(query) != ""
}

func (h *LLM) Process(ctx context.Context, query string) (string, error) {
	resp, err := h.provider.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: h.system,
		Messages:     []llm.Message{{Role: "user", Content: strings.TrimSpace(query)}},
		MaxTokens:    h.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("%s returned an empty response", h.provider.Name())
	}
	return resp.Content, nil
}

func (h *LLM) ScoringBonus(string) float64            { return 0 }
func (h *LLM) ConfidenceBonus(string, string) float64 { return 0 }

// Health reports a provider without credentials.
func (h *LLM) Health(context.Context) error {
	if !h.provider.Available() {
		return fmt.Errorf("%s: %w", h.provider.Name(), llm.ErrNotConfigured)
	}
	return nil
}
