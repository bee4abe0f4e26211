package llm

import (
	"fmt"
	"strings"
)

// Backend adapts one provider API to the shared streaming pipeline.
type Backend interface {
	Name() string
	Framing() Framing
	NewRequest(conv Conversation, params Params) (*Request, error)
	Decoder
}

type API string

const (
	APIAnthropic  API = "anthropic"
	APIOpenAI     API = "openai"
	APIGoogle     API = "google"
	APIMistral    API = "mistral"
	APIMistralFIM API = "mistral-fim"
	APIOllama     API = "ollama"
)

func ParseAPI(value string) (API, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "anthropic", "claude":
		return APIAnthropic, nil
	case "openai", "gpt":
		return APIOpenAI, nil
	case "google", "gemini":
		return APIGoogle, nil
	case "mistral":
		return APIMistral, nil
	case "mistral-fim", "mistralfim", "fim", "codestral":
		return APIMistralFIM, nil
	case "ollama":
		return APIOllama, nil
	case "":
		return "", fmt.Errorf("api is required")
	default:
		return "", fmt.Errorf("unsupported api %q", value)
	}
}

// DefaultEnv is the environment variable holding the api key when nothing else
// names one.
func (a API) DefaultEnv() string {
	switch a {
	case APIAnthropic:
		return "ANTHROPIC_API_KEY"
	case APIOpenAI:
		return "OPENAI_API_KEY"
	case APIGoogle:
		return "GOOGLE_API_KEY"
	case APIMistral, APIMistralFIM:
		return "MISTRAL_API_KEY"
	}
	return ""
}

// NeedsKey reports whether requests to the API carry a credential.
func (a API) NeedsKey() bool { return a != APIOllama }

type BackendConfig struct {
	API     API
	BaseURL string
	Token   string
	Version string
}

func NewBackend(cfg BackendConfig) (Backend, error) {
	switch cfg.API {
	case APIAnthropic:
		return NewAnthropicBackend(AnthropicConfig{BaseURL: cfg.BaseURL, Token: cfg.Token, Version: cfg.Version})
	case APIOpenAI:
		return NewOpenAIBackend(OpenAIConfig{BaseURL: cfg.BaseURL, Token: cfg.Token})
	case APIMistral:
		return NewMistralBackend(OpenAIConfig{BaseURL: cfg.BaseURL, Token: cfg.Token})
	case APIMistralFIM:
		return NewMistralFIMBackend(OpenAIConfig{BaseURL: cfg.BaseURL, Token: cfg.Token})
	case APIGoogle:
		return NewGeminiBackend(GeminiConfig{BaseURL: cfg.BaseURL, Token: cfg.Token})
	case APIOllama:
		return NewOllamaBackend(OllamaConfig{BaseURL: cfg.BaseURL}), nil
	default:
		return nil, fmt.Errorf("unsupported api %q", cfg.API)
	}
}
