package llm

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Delta is one fragment of generated text. An empty Text is valid and means
// nothing visible arrived with this event.
type Delta struct {
	Text string
}

// Stream yields deltas until io.EOF. Once io.EOF or another error has been
// returned, every later Recv returns io.EOF.
type Stream interface {
	Recv() (Delta, error)
	Close() error
}

// Event is a decoded backend event.
type Event interface {
	// Delta extracts the text carried by the event, if any.
	Delta() Delta
	// Done reports whether the event terminates the reply.
	Done() bool
	// Err returns an error reported in-band by the provider.
	Err() error
}

// Decoder turns one raw framed event into a backend event.
type Decoder interface {
	Decode(raw RawEvent) (Event, error)
}

type rawSource interface {
	Next() (RawEvent, error)
	Close() error
}

type deltaStream struct {
	backend string
	source  rawSource
	decoder Decoder
	logger  *slog.Logger
	metrics *Metrics

	started  time.Time
	sawText  bool
	pending  error
	finished bool
}

func newDeltaStream(backend string, source rawSource, decoder Decoder, logger *slog.Logger, metrics *Metrics) *deltaStream {
	return &deltaStream{
		backend: backend,
		source:  source,
		decoder: decoder,
		logger:  logger,
		metrics: metrics,
		started: time.Now(),
	}
}

func (s *deltaStream) Recv() (Delta, error) {
	if s.finished {
		return Delta{}, io.EOF
	}
	if s.pending != nil {
		err := s.pending
		s.finish()
		return Delta{}, err
	}

	raw, err := s.source.Next()
	if err != nil {
		s.finish()
		if errors.Is(err, io.EOF) {
			return Delta{}, io.EOF
		}
		return Delta{}, err
	}

	ev, err := s.decoder.Decode(raw)
	if err != nil {
		s.logger.Warn("skipping undecodable event", "backend", s.backend, "error", err)
		s.metrics.decodeError(s.backend)
		return s.deliver(Delta{}), nil
	}

	delta := ev.Delta()
	if apiErr := ev.Err(); apiErr != nil {
		s.pending = apiErr
	} else if ev.Done() {
		s.pending = io.EOF
	}
	if s.pending != nil && delta.Text == "" {
		err := s.pending
		s.finish()
		return Delta{}, err
	}
	return s.deliver(delta), nil
}

func (s *deltaStream) deliver(d Delta) Delta {
	if d.Text != "" && !s.sawText {
		s.sawText = true
		s.metrics.firstFragment(s.backend, time.Since(s.started))
	}
	s.metrics.fragment(s.backend, d)
	return d
}

func (s *deltaStream) finish() {
	s.finished = true
	s.pending = nil
	s.source.Close()
}

func (s *deltaStream) Close() error {
	s.finished = true
	return s.source.Close()
}

// Collect drains a stream and returns the concatenated, trimmed text.
func Collect(stream Stream) (string, error) {
	defer stream.Close()
	var builder strings.Builder
	for {
		delta, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return strings.TrimSpace(builder.String()), nil
			}
			return strings.TrimSpace(builder.String()), err
		}
		builder.WriteString(delta.Text)
	}
}
