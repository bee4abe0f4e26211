package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultAnthropicURL       = "https://api.anthropic.com/v1"
	defaultAnthropicModel     = "claude-3-5-sonnet-20240620"
	defaultAnthropicVersion   = "2023-06-01"
	defaultAnthropicMaxTokens = 4096
)

type AnthropicConfig struct {
	BaseURL string
	Token   string
	Version string
}

type AnthropicBackend struct {
	baseURL string
	token   string
	version string
}

func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("anthropic token is required")
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = defaultAnthropicVersion
	}
	return &AnthropicBackend{
		baseURL: firstNonEmpty(strings.TrimSpace(cfg.BaseURL), defaultAnthropicURL),
		token:   token,
		version: version,
	}, nil
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Framing() Framing { return FramingSSE }

func (b *AnthropicBackend) NewRequest(conv Conversation, params Params) (*Request, error) {
	system, rest := conv.System()
	messages := make([]Message, 0, len(rest))
	for _, message := range rest {
		// The messages API only knows user and assistant turns.
		if message.Role == RoleSystem {
			continue
		}
		messages = append(messages, message)
	}
	payload := anthropicChatRequest{
		Model:       firstNonEmpty(params.Model, defaultAnthropicModel),
		Messages:    messages,
		System:      firstNonEmpty(params.System, system),
		MaxTokens:   defaultAnthropicMaxTokens,
		Stream:      true,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
	}
	if params.MaxTokens != nil {
		payload.MaxTokens = *params.MaxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req := newJSONRequest(b.Name(), joinEndpoint(b.baseURL, "/messages"), body)
	req.Header.Set("x-api-key", b.token)
	req.Header.Set("anthropic-version", b.version)
	return req, nil
}

func (b *AnthropicBackend) Decode(raw RawEvent) (Event, error) {
	if raw.IsComment() {
		return AnthropicEvent{Type: AnthropicComment, Comment: raw.Comment}, nil
	}
	var ev AnthropicEvent
	if err := json.Unmarshal([]byte(raw.Data), &ev); err != nil {
		return nil, &DecodeError{Backend: b.Name(), Data: raw.Data, Err: err}
	}
	if ev.Type == "" {
		ev.Type = AnthropicEventType(raw.Type)
	}
	if !ev.Type.known() {
		return nil, &DecodeError{Backend: b.Name(), Data: raw.Data, Err: fmt.Errorf("unknown event type %q", ev.Type)}
	}
	return ev, nil
}

type AnthropicEventType string

const (
	AnthropicMessageStart      AnthropicEventType = "message_start"
	AnthropicContentBlockStart AnthropicEventType = "content_block_start"
	AnthropicContentBlockDelta AnthropicEventType = "content_block_delta"
	AnthropicContentBlockStop  AnthropicEventType = "content_block_stop"
	AnthropicMessageDelta      AnthropicEventType = "message_delta"
	AnthropicMessageStop       AnthropicEventType = "message_stop"
	AnthropicPing              AnthropicEventType = "ping"
	AnthropicError             AnthropicEventType = "error"
	AnthropicComment           AnthropicEventType = "comment"
)

func (t AnthropicEventType) known() bool {
	switch t {
	case AnthropicMessageStart, AnthropicContentBlockStart, AnthropicContentBlockDelta,
		AnthropicContentBlockStop, AnthropicMessageDelta, AnthropicMessageStop,
		AnthropicPing, AnthropicError, AnthropicComment:
		return true
	}
	return false
}

// AnthropicEvent is one event of the messages streaming API, tagged by Type.
type AnthropicEvent struct {
	Type         AnthropicEventType `json:"type"`
	Message      *anthropicMessage  `json:"message,omitempty"`
	Index        int                `json:"index,omitempty"`
	ContentBlock *anthropicContent  `json:"content_block,omitempty"`
	BlockDelta   *anthropicDelta    `json:"delta,omitempty"`
	Usage        *anthropicUsage    `json:"usage,omitempty"`
	Error        *anthropicError    `json:"error,omitempty"`
	Comment      string             `json:"-"`
}

func (e AnthropicEvent) Delta() Delta {
	if e.Type != AnthropicContentBlockDelta || e.BlockDelta == nil {
		return Delta{}
	}
	return Delta{Text: e.BlockDelta.Text}
}

func (e AnthropicEvent) Done() bool { return e.Type == AnthropicMessageStop }

func (e AnthropicEvent) Err() error {
	if e.Type != AnthropicError {
		return nil
	}
	apiErr := &APIError{Backend: "anthropic", Message: "stream error"}
	if e.Error != nil {
		apiErr.Type = e.Error.Type
		apiErr.Message = e.Error.Message
	}
	return apiErr
}

type anthropicChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
	TopP        *float32  `json:"top_p,omitempty"`
	TopK        *int      `json:"top_k,omitempty"`
}

type anthropicMessage struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason,omitempty"`
	Usage      *anthropicUsage `json:"usage,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

type anthropicError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
