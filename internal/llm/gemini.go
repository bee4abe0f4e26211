package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiURL       = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel     = "gemini-1.5-pro"
	defaultGeminiMaxTokens = 4096
)

type GeminiConfig struct {
	BaseURL string
	Token   string
}

type GeminiBackend struct {
	baseURL string
	token   string
}

func NewGeminiBackend(cfg GeminiConfig) (*GeminiBackend, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("gemini token is required")
	}
	return &GeminiBackend{
		baseURL: firstNonEmpty(strings.TrimSpace(cfg.BaseURL), defaultGeminiURL),
		token:   token,
	}, nil
}

func (b *GeminiBackend) Name() string { return "google" }

func (b *GeminiBackend) Framing() Framing { return FramingSSE }

func (b *GeminiBackend) NewRequest(conv Conversation, params Params) (*Request, error) {
	model := firstNonEmpty(params.Model, defaultGeminiModel)
	endpoint, err := buildGeminiEndpoint(b.baseURL, model, b.token)
	if err != nil {
		return nil, err
	}
	contents, system := buildGeminiContents(conv, params.System)
	payload := geminiGenerateContentRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: defaultGeminiMaxTokens,
			Temperature:     params.Temperature,
			TopP:            params.TopP,
			TopK:            params.TopK,
		},
	}
	if params.MaxTokens != nil {
		payload.GenerationConfig.MaxOutputTokens = *params.MaxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return newJSONRequest(b.Name(), endpoint, body), nil
}

func (b *GeminiBackend) Decode(raw RawEvent) (Event, error) {
	if raw.IsComment() {
		return GeminiChunk{}, nil
	}
	var chunk GeminiChunk
	if err := json.Unmarshal([]byte(raw.Data), &chunk); err != nil {
		return nil, &DecodeError{Backend: b.Name(), Data: raw.Data, Err: err}
	}
	return chunk, nil
}

// GeminiChunk is one streamGenerateContent response.
type GeminiChunk struct {
	Candidates   []*genai.Candidate `json:"candidates,omitempty"`
	ModelVersion string             `json:"modelVersion,omitempty"`
	Error        *geminiError       `json:"error,omitempty"`
}

func (c GeminiChunk) Delta() Delta {
	if len(c.Candidates) == 0 || c.Candidates[0] == nil || c.Candidates[0].Content == nil {
		return Delta{}
	}
	var builder strings.Builder
	for _, part := range c.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		builder.WriteString(part.Text)
	}
	return Delta{Text: builder.String()}
}

// Done is always false: the API ends the reply by closing the connection.
func (c GeminiChunk) Done() bool { return false }

func (c GeminiChunk) Err() error {
	if c.Error == nil {
		return nil
	}
	return &APIError{Backend: "google", StatusCode: c.Error.Code, Type: c.Error.Status, Message: c.Error.Message}
}

type geminiGenerateContentRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func buildGeminiEndpoint(baseURL, model, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	apiPath := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(apiPath, "/v1") && !strings.HasSuffix(apiPath, "/v1beta") {
		apiPath = path.Join(apiPath, "/v1beta")
	}
	u.Path = path.Join(apiPath, "models", fmt.Sprintf("%s:streamGenerateContent", model))
	query := u.Query()
	query.Set("alt", "sse")
	query.Set("key", token)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func buildGeminiContents(conv Conversation, system string) ([]*genai.Content, *genai.Content) {
	convSystem, rest := conv.System()
	system = firstNonEmpty(system, convSystem)
	var instruction *genai.Content
	if system != "" {
		instruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	contents := make([]*genai.Content, 0, len(rest))
	for _, message := range rest {
		switch message.Role {
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleUser))
		}
	}
	return contents, instruction
}
