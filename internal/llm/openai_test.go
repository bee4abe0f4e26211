package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing auth header")
		}
		var req struct {
			Model    string    `json:"model"`
			Stream   bool      `json:"stream"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream || req.Model != "gpt-test" {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[1].Content != "hi" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		writeEvents(w,
			"data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"A\"}}]}\n\n",
			"data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"\"}}]}\n\n",
			"data: {not json\n\n",
			"data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"B\"}}]}\n\n",
			"data: [DONE]\n\n",
		)
	}))
	defer server.Close()

	backend, err := NewOpenAIBackend(OpenAIConfig{BaseURL: server.URL, Token: "token"})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	metrics := NewMetrics()
	stream, err := NewClient(backend, WithMetrics(metrics)).Stream(context.Background(),
		Conversation{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
		Params{Model: "gpt-test"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	texts, err := recvAll(stream)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	want := []string{"A", "", "", "B"}
	if len(texts) != len(want) {
		t.Fatalf("unexpected fragments: %q", texts)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("fragment %d: got %q want %q", i, texts[i], want[i])
		}
	}
	if got := counterValue(t, metrics.decodeErrors, "openai"); got != 1 {
		t.Fatalf("unexpected decode error count: %v", got)
	}
}

func TestOpenAIErrorChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, "data: {\"error\":{\"message\":\"overloaded\",\"type\":\"server_error\"}}\n\n")
	}))
	defer server.Close()

	backend, err := NewOpenAIBackend(OpenAIConfig{BaseURL: server.URL, Token: "token"})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	stream, err := NewClient(backend).Stream(context.Background(), Conversation{{Role: RoleUser, Content: "hi"}}, Params{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	_, err = recvAll(stream)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "overloaded" || apiErr.Backend != "openai" {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestMistralRequest(t *testing.T) {
	backend, err := NewMistralBackend(OpenAIConfig{Token: "token"})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	minTokens := 10
	req, err := backend.NewRequest(Conversation{{Role: RoleUser, Content: "hi"}}, Params{MinTokens: &minTokens})
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if req.URL != "https://api.mistral.ai/v1/chat/completions" {
		t.Fatalf("unexpected url: %s", req.URL)
	}
	var body mistralChatRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Model != defaultMistralModel || body.MinTokens == nil || *body.MinTokens != 10 || !body.Stream {
		t.Fatalf("unexpected body: %s", req.Body)
	}
}

func TestMistralFIMRequest(t *testing.T) {
	backend, err := NewMistralFIMBackend(OpenAIConfig{BaseURL: "http://fim.test/v1/", Token: "token"})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	req, err := backend.NewRequest(Conversation{
		{Role: RoleUser, Content: "func add(a, b int) int {"},
		{Role: RoleAssistant, Content: "ignored"},
	}, Params{Suffix: "}"})
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if req.URL != "http://fim.test/v1/fim/completions" {
		t.Fatalf("unexpected url: %s", req.URL)
	}
	var body mistralFIMRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Prompt != "func add(a, b int) int {" || body.Suffix != "}" || body.Model != defaultMistralFIMModel {
		t.Fatalf("unexpected body: %s", req.Body)
	}
}

func TestOpenAIDecodeDone(t *testing.T) {
	backend, err := NewOpenAIBackend(OpenAIConfig{Token: "token"})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	ev, err := backend.Decode(RawEvent{Data: " [DONE] "})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ev.Done() || ev.Delta().Text != "" {
		t.Fatalf("expected terminal chunk")
	}
	ev, err = backend.Decode(RawEvent{Comment: "OPENROUTER PROCESSING"})
	if err != nil || ev.Done() || ev.Delta().Text != "" {
		t.Fatalf("expected inert comment chunk, got %+v %v", ev, err)
	}
}
