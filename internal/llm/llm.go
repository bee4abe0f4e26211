package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ordered list of messages sent to a backend.
type Conversation []Message

// System returns the content of the leading system message, if any, and the
// remaining messages.
func (c Conversation) System() (string, Conversation) {
	if len(c) == 0 || c[0].Role != RoleSystem {
		return "", c
	}
	return c[0].Content, c[1:]
}

// Params are the model parameters shared by every backend. Nil pointers are
// left out of the request body.
type Params struct {
	Model       string
	System      string
	Suffix      string
	MaxTokens   *int
	MinTokens   *int
	Temperature *float32
	TopP        *float32
	TopK        *int
}

// Request is a fully formed HTTP request descriptor. The body is kept as bytes
// so the transport can replay it on reconnect.
type Request struct {
	Backend string
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
}

func newJSONRequest(backend, url string, body []byte) *Request {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &Request{
		Backend: backend,
		Method:  http.MethodPost,
		URL:     url,
		Header:  header,
		Body:    body,
	}
}

func (r *Request) build(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range r.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	return httpReq, nil
}

func joinEndpoint(baseURL, suffix string) string {
	return strings.TrimRight(baseURL, "/") + suffix
}

// RedactedURL returns the request URL with credentials masked.
func (r *Request) RedactedURL() string {
	return redactURL(r.URL)
}
