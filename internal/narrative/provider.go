package narrative

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	DefaultMaxTokens      = 600
)

// ErrDisabled is returned when no LLM provider is configured.
var ErrDisabled = eris.New("llm disabled")

// Provider turns a system and user prompt into generated text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	Provider       string
	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	MaxTokens      int64
}

// New builds the configured provider. An empty provider name returns
// ErrDisabled.
func New(cfg Config) (Provider, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return nil, ErrDisabled
	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, eris.New("llm.openai_api_key is required for the openai provider")
		}
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, cfg.MaxTokens), nil
	case ProviderAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, eris.New("llm.anthropic_api_key is required for the anthropic provider")
		}
		return NewAnthropic(cfg.AnthropicKey, cfg.AnthropicModel, cfg.MaxTokens), nil
	default:
		return nil, eris.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
