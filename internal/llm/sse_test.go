package llm

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSSEDecoder(t *testing.T) {
	body := ": hello\n" +
		"event: message_start\n" +
		"id: 7\n" +
		"data: {\"a\":1}\n\n" +
		"data: line one\r\n" +
		"data: line two\r\n" +
		"\r\n" +
		"retry: 1000\n\n" +
		":\n" +
		"data:no-space\n" +
		"data: trailing"

	decoder := NewSSEDecoder(strings.NewReader(body))
	want := []RawEvent{
		{Comment: "hello"},
		{Type: "message_start", ID: "7", Data: `{"a":1}`},
		{ID: "7", Data: "line one\nline two"},
		{Comment: ":"},
		{ID: "7", Data: "no-space\ntrailing"},
	}
	for i, expected := range want {
		ev, err := decoder.Next()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if ev != expected {
			t.Fatalf("event %d: got %+v want %+v", i, ev, expected)
		}
	}
	if _, err := decoder.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestSSEDecoderEmptyBody(t *testing.T) {
	decoder := NewSSEDecoder(strings.NewReader("\n\n"))
	if _, err := decoder.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestSSEDecoderReadError(t *testing.T) {
	decoder := NewSSEDecoder(&failingReader{data: "data: a\n\n", err: io.ErrUnexpectedEOF})
	ev, err := decoder.Next()
	if err != nil || ev.Data != "a" {
		t.Fatalf("unexpected first event: %+v %v", ev, err)
	}
	if _, err := decoder.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLineDecoder(t *testing.T) {
	decoder := NewLineDecoder(strings.NewReader("{\"a\":1}\n\n  \r\n{\"b\":2}"))
	for _, want := range []string{`{"a":1}`, `{"b":2}`} {
		ev, err := decoder.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if ev.Data != want {
			t.Fatalf("got %q want %q", ev.Data, want)
		}
	}
	if _, err := decoder.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
