package llm

import (
	"bufio"
	"io"
	"strings"
)

// Framing selects how a response body is split into raw events.
type Framing int

const (
	FramingSSE Framing = iota
	FramingNDJSON
)

func (f Framing) String() string {
	switch f {
	case FramingSSE:
		return "sse"
	case FramingNDJSON:
		return "ndjson"
	default:
		return "unknown"
	}
}

func (f Framing) accept() string {
	if f == FramingNDJSON {
		return "application/x-ndjson"
	}
	return "text/event-stream"
}

// RawEvent is one framed unit of a response body before any backend
// interpretation. Comment is set, and Data empty, for SSE comment lines.
type RawEvent struct {
	Type    string
	Data    string
	ID      string
	Comment string
}

func (e RawEvent) IsComment() bool {
	return e.Comment != "" && e.Data == "" && e.Type == ""
}

type eventDecoder interface {
	Next() (RawEvent, error)
}

func newEventDecoder(f Framing, r io.Reader) eventDecoder {
	if f == FramingNDJSON {
		return NewLineDecoder(r)
	}
	return NewSSEDecoder(r)
}

// SSEDecoder decodes a Server-Sent Events body.
type SSEDecoder struct {
	r *bufio.Reader

	event   string
	id      string
	data    []string
	hasData bool
}

func NewSSEDecoder(r io.Reader) *SSEDecoder {
	return &SSEDecoder{r: bufio.NewReader(r)}
}

// Next returns the next dispatched event or comment. It returns io.EOF when
// the body ends cleanly and the underlying read error otherwise. A trailing
// event without the closing blank line is still dispatched.
func (d *SSEDecoder) Next() (RawEvent, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return RawEvent{}, err
		}
		if line == "" && err == io.EOF {
			if ev, ok := d.dispatch(); ok {
				return ev, nil
			}
			return RawEvent{}, io.EOF
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if ev, ok := d.dispatch(); ok {
				return ev, nil
			}
			if err == io.EOF {
				return RawEvent{}, io.EOF
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			comment := strings.TrimSpace(strings.TrimPrefix(line, ":"))
			if comment == "" {
				comment = ":"
			}
			return RawEvent{Comment: comment}, nil
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			d.event = value
		case "data":
			d.data = append(d.data, value)
			d.hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.id = value
			}
		}

		if err == io.EOF {
			if ev, ok := d.dispatch(); ok {
				return ev, nil
			}
			return RawEvent{}, io.EOF
		}
	}
}

func (d *SSEDecoder) dispatch() (RawEvent, bool) {
	if !d.hasData {
		d.event = ""
		return RawEvent{}, false
	}
	ev := RawEvent{
		Type: d.event,
		Data: strings.Join(d.data, "\n"),
		ID:   d.id,
	}
	d.event = ""
	d.data = d.data[:0]
	d.hasData = false
	return ev, true
}

// LineDecoder decodes newline-delimited JSON: each non-blank line is one event.
type LineDecoder struct {
	r *bufio.Reader
}

func NewLineDecoder(r io.Reader) *LineDecoder {
	return &LineDecoder{r: bufio.NewReader(r)}
}

func (d *LineDecoder) Next() (RawEvent, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return RawEvent{}, err
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return RawEvent{Data: line}, nil
		}
		if err == io.EOF {
			return RawEvent{}, io.EOF
		}
	}
}
