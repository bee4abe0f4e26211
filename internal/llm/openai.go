package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIURL       = "https://api.openai.com/v1"
	defaultOpenAIModel     = "gpt-4o"
	defaultMistralURL      = "https://api.mistral.ai/v1"
	defaultMistralModel    = "mistral-large-latest"
	defaultMistralFIMModel = "codestral-2405"

	doneMarker = "[DONE]"
)

type OpenAIConfig struct {
	BaseURL string
	Token   string
}

// OpenAIBackend speaks the chat completion chunk protocol shared by OpenAI,
// Mistral and the Mistral fill-in-the-middle endpoint.
type OpenAIBackend struct {
	name    string
	baseURL string
	path    string
	token   string
	payload func(conv Conversation, params Params) any
}

func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	return newChatCompletionBackend("openai", defaultOpenAIURL, "/chat/completions", cfg, openAIPayload)
}

func NewMistralBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	return newChatCompletionBackend("mistral", defaultMistralURL, "/chat/completions", cfg, mistralPayload)
}

func NewMistralFIMBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	return newChatCompletionBackend("mistral-fim", defaultMistralURL, "/fim/completions", cfg, mistralFIMPayload)
}

func newChatCompletionBackend(name, defaultURL, path string, cfg OpenAIConfig, payload func(Conversation, Params) any) (*OpenAIBackend, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("%s token is required", name)
	}
	return &OpenAIBackend{
		name:    name,
		baseURL: firstNonEmpty(strings.TrimSpace(cfg.BaseURL), defaultURL),
		path:    path,
		token:   token,
		payload: payload,
	}, nil
}

func (b *OpenAIBackend) Name() string { return b.name }

func (b *OpenAIBackend) Framing() Framing { return FramingSSE }

func (b *OpenAIBackend) NewRequest(conv Conversation, params Params) (*Request, error) {
	body, err := json.Marshal(b.payload(conv, params))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req := newJSONRequest(b.name, joinEndpoint(b.baseURL, b.path), body)
	req.Header.Set("Authorization", "Bearer "+b.token)
	return req, nil
}

func (b *OpenAIBackend) Decode(raw RawEvent) (Event, error) {
	if raw.IsComment() {
		return ChatChunk{}, nil
	}
	data := strings.TrimSpace(raw.Data)
	if data == doneMarker {
		return ChatChunk{done: true}, nil
	}
	var chunk ChatChunk
	if err := json.Unmarshal([]byte(data), &chunk.Response); err != nil {
		return nil, &DecodeError{Backend: b.name, Data: raw.Data, Err: err}
	}
	var envelope struct {
		Error *chunkError `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err == nil && envelope.Error != nil {
		chunk.Error = envelope.Error
		chunk.backend = b.name
	}
	return chunk, nil
}

// ChatChunk is one "chat.completion.chunk" event. A zero ChatChunk stands for
// a comment or keep-alive frame.
type ChatChunk struct {
	Response openai.ChatCompletionStreamResponse
	Error    *chunkError

	backend string
	done    bool
}

func (c ChatChunk) Delta() Delta {
	if len(c.Response.Choices) == 0 {
		return Delta{}
	}
	return Delta{Text: c.Response.Choices[0].Delta.Content}
}

func (c ChatChunk) Done() bool { return c.done }

func (c ChatChunk) Err() error {
	if c.Error == nil {
		return nil
	}
	return &APIError{Backend: c.backend, Type: c.Error.Type, Message: c.Error.Message}
}

type chunkError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func chatMessages(conv Conversation, system string) []openai.ChatCompletionMessage {
	convSystem, rest := conv.System()
	system = firstNonEmpty(system, convSystem)
	messages := make([]openai.ChatCompletionMessage, 0, len(rest)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, message := range rest {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    chatRole(message.Role),
			Content: message.Content,
		})
	}
	return messages
}

func chatRole(role Role) string {
	switch role {
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

func openAIPayload(conv Conversation, params Params) any {
	req := openai.ChatCompletionRequest{
		Model:    firstNonEmpty(params.Model, defaultOpenAIModel),
		Messages: chatMessages(conv, params.System),
		Stream:   true,
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	return req
}

type mistralChatRequest struct {
	Model       string                         `json:"model"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
	Temperature *float32                       `json:"temperature,omitempty"`
	TopP        *float32                       `json:"top_p,omitempty"`
	MaxTokens   *int                           `json:"max_tokens,omitempty"`
	MinTokens   *int                           `json:"min_tokens,omitempty"`
	Stream      bool                           `json:"stream"`
}

func mistralPayload(conv Conversation, params Params) any {
	return mistralChatRequest{
		Model:       firstNonEmpty(params.Model, defaultMistralModel),
		Messages:    chatMessages(conv, params.System),
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
		MinTokens:   params.MinTokens,
		Stream:      true,
	}
}

type mistralFIMRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Suffix      string   `json:"suffix,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	MinTokens   *int     `json:"min_tokens,omitempty"`
	Stream      bool     `json:"stream"`
}

func mistralFIMPayload(conv Conversation, params Params) any {
	var prompts []string
	for _, message := range conv {
		if message.Role == RoleUser {
			prompts = append(prompts, message.Content)
		}
	}
	return mistralFIMRequest{
		Model:       firstNonEmpty(params.Model, defaultMistralFIMModel),
		Prompt:      strings.Join(prompts, "\n"),
		Suffix:      params.Suffix,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
		MinTokens:   params.MinTokens,
		Stream:      true,
	}
}
