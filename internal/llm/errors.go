package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ConnectionError reports that the initial handshake with a backend failed.
type ConnectionError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %s", redactURL(e.URL), redactURL(e.Err.Error()))
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DisconnectError reports a stream that dropped after data flowed and could
// not be re-established.
type DisconnectError struct {
	Attempts int
	Err      error
}

func (e *DisconnectError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("stream disconnected after %d reconnect attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("stream disconnected: %v", e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// DecodeError is returned by a backend decoder for a single malformed event.
// Streams recover from it locally.
type DecodeError struct {
	Backend string
	Data    string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode event %q: %v", e.Backend, truncate(e.Data, 80), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// APIError is an error reported by the provider, either as a non-2xx status or
// as an error event inside the stream.
type APIError struct {
	Backend    string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Type != "" {
		msg = e.Type + ": " + msg
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Backend, msg, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Backend, msg)
}

// IsRetryable reports whether the status is worth another connection attempt.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

func readAPIError(body io.Reader, status int) *APIError {
	data, _ := io.ReadAll(io.LimitReader(body, 64*1024))
	apiErr := &APIError{StatusCode: status}
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && len(payload.Error) > 0 {
		var detail struct {
			Type    string `json:"type"`
			Message string `json:"message"`
			Status  string `json:"status"`
		}
		if err := json.Unmarshal(payload.Error, &detail); err == nil {
			apiErr.Type = firstNonEmpty(detail.Type, detail.Status)
			apiErr.Message = detail.Message
			return apiErr
		}
		var message string
		if err := json.Unmarshal(payload.Error, &message); err == nil {
			apiErr.Message = message
			return apiErr
		}
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

func isAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func redactURL(raw string) string {
	if i := strings.Index(raw, "key="); i >= 0 {
		end := strings.IndexByte(raw[i:], '&')
		if end < 0 {
			return raw[:i] + "key=REDACTED"
		}
		return raw[:i] + "key=REDACTED" + raw[i+end:]
	}
	return raw
}

func truncate(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[:n] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
