package handlers

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/normanking/switchboard/internal/config"
	"github.com/normanking/switchboard/internal/dispatch"
	"github.com/normanking/switchboard/internal/handlers/script"
	"github.com/normanking/switchboard/internal/llm"
)

// BuildOptions overrides the dependencies Build would otherwise create.
type BuildOptions struct {
	Probe    Probe
	Provider llm.Provider
}

// Build creates the configured handlers in registration order: enabled
// built-ins, then Lua scripts, then the llm fallback. The llm handler is
// left out when its provider has no credentials. Scripts that fail to load
// are logged and skipped.
func Build(cfg *config.Config, opts BuildOptions) ([]dispatch.Handler, error) {
	var (
		out       []dispatch.Handler
		wantLLM   bool
		llmConfig = cfg.Handlers.LLM
	)

	for _, name := range cfg.Handlers.Enabled {
		switch strings.ToLower(name) {
		case config.HandlerMath:
			out = append(out, NewMath())
		case config.HandlerSystem:
			out = append(out, NewSystem(opts.Probe))
		case config.HandlerKnowledge:
			out = append(out, NewKnowledge())
		case config.HandlerLLM:
			wantLLM = true
		default:
			return nil, fmt.Errorf("unknown handler %q", name)
		}
	}

	scripts, err := script.LoadDir(cfg.Handlers.ScriptDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.Handlers.ScriptDir).Msg("some handler scripts failed to load")
	}
	for _, s := range scripts {
		out = append(out, s)
	}

	if wantLLM {
		provider := opts.Provider
		if provider == nil {
			provider = llm.NewAnthropicProvider(llm.ProviderConfig{
				Name:      llmConfig.Provider,
				Endpoint:  llmConfig.BaseURL,
				APIKey:    llmConfig.APIKey,
				Model:     llmConfig.Model,
				MaxTokens: llmConfig.MaxTokens,
				Timeout:   cfg.Dispatch.Timeout,
			})
		}
		if provider.Available() {
			out = append(out, NewLLM(provider, llmConfig.SystemPrompt, llmConfig.MaxTokens))
		} else {
			log.Info().Str("provider", provider.Name()).Msg("llm handler disabled: no credentials")
		}
	}

	return out, nil
}
