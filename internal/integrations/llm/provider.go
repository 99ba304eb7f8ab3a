package llm

import "fmt"

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIModel    = "gpt-4.1"
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

// ProviderConfig carries the credentials needed to build a Transport.
type ProviderConfig struct {
	Provider        string
	Model           string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
}

// NewTransport builds the transport for the configured provider and resolves
// the model name, falling back to the provider default.
func NewTransport(cfg ProviderConfig) (Transport, string, error) {
	model := cfg.Model
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), model, nil
	case ProviderAnthropic:
		if model == "" {
			model = defaultAnthropicModel
		}
		return NewAnthropic(cfg.AnthropicAPIKey), model, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
