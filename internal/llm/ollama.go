package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
)

type OllamaConfig struct {
	BaseURL string
}

type OllamaBackend struct {
	baseURL string
}

func NewOllamaBackend(cfg OllamaConfig) *OllamaBackend {
	return &OllamaBackend{baseURL: firstNonEmpty(strings.TrimSpace(cfg.BaseURL), defaultOllamaURL)}
}

func (b *OllamaBackend) Name() string { return "ollama" }

func (b *OllamaBackend) Framing() Framing { return FramingNDJSON }

func (b *OllamaBackend) NewRequest(conv Conversation, params Params) (*Request, error) {
	convSystem, rest := conv.System()
	messages := make([]Message, 0, len(rest)+1)
	if system := firstNonEmpty(params.System, convSystem); system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: system})
	}
	messages = append(messages, rest...)
	payload := ollamaChatRequest{
		Model:    firstNonEmpty(params.Model, defaultOllamaModel),
		Messages: messages,
		Stream:   true,
	}
	if params.Temperature != nil || params.TopP != nil || params.TopK != nil {
		payload.Options = &ollamaOptions{
			Temperature: params.Temperature,
			TopP:        params.TopP,
			TopK:        params.TopK,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req := newJSONRequest(b.Name(), joinEndpoint(b.baseURL, "/api/chat"), body)
	req.Header.Set("Accept", "application/x-ndjson")
	return req, nil
}

func (b *OllamaBackend) Decode(raw RawEvent) (Event, error) {
	var chunk OllamaChunk
	if err := json.Unmarshal([]byte(raw.Data), &chunk); err != nil {
		return nil, &DecodeError{Backend: b.Name(), Data: raw.Data, Err: err}
	}
	return chunk, nil
}

// OllamaChunk is one line of an /api/chat stream.
type OllamaChunk struct {
	Model    string   `json:"model"`
	Message  *Message `json:"message,omitempty"`
	Finished bool     `json:"done"`
	Error    string   `json:"error,omitempty"`
}

func (c OllamaChunk) Delta() Delta {
	if c.Message == nil {
		return Delta{}
	}
	return Delta{Text: c.Message.Content}
}

func (c OllamaChunk) Done() bool { return c.Finished }

func (c OllamaChunk) Err() error {
	if c.Error == "" {
		return nil
	}
	return &APIError{Backend: "ollama", Message: c.Error}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
}
