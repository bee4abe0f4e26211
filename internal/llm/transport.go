package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Transport opens long-lived streaming responses and re-establishes them
// according to its ReconnectPolicy.
type Transport struct {
	HTTPClient *http.Client
	Policy     ReconnectPolicy
	Logger     *slog.Logger
	Metrics    *Metrics

	// sleep is swapped out by tests to observe backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewTransport(client *http.Client, policy ReconnectPolicy) *Transport {
	if client == nil {
		client = &http.Client{}
	}
	return &Transport{
		HTTPClient: client,
		Policy:     policy,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		sleep:      sleep,
	}
}

// Open performs the initial handshake and returns an EventSource positioned at
// the first event of the response.
func (t *Transport) Open(ctx context.Context, req *Request, framing Framing) (*EventSource, error) {
	es := &EventSource{
		t:       t,
		ctx:     ctx,
		req:     req,
		framing: framing,
		backend: req.Backend,
	}
	var attempt int
	for {
		err := es.connect()
		if err == nil {
			return es, nil
		}
		attempt++
		if !t.Policy.RetryInitialConnection || !retryableConnectError(err) || t.Policy.exhausted(attempt) {
			return nil, &ConnectionError{URL: req.URL, Attempts: attempt, Err: err}
		}
		delay := t.Policy.Delay(attempt)
		t.logger().Info("initial connection failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		if err := t.wait(ctx, delay); err != nil {
			return nil, &ConnectionError{URL: req.URL, Attempts: attempt, Err: err}
		}
	}
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t.Logger
}

func (t *Transport) wait(ctx context.Context, d time.Duration) error {
	if t.sleep == nil {
		return sleep(ctx, d)
	}
	return t.sleep(ctx, d)
}

func retryableConnectError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if apiErr, ok := isAPIError(err); ok {
		return apiErr.IsRetryable()
	}
	return true
}

// EventSource yields raw events from one logical stream, hiding reconnects
// from the caller. It is not safe for concurrent use.
type EventSource struct {
	t       *Transport
	ctx     context.Context
	req     *Request
	framing Framing
	backend string

	body    io.ReadCloser
	decoder eventDecoder

	lastID    string
	delivered int
	skip      int
	failures  int
	closed    bool
}

// Next returns the next raw event. io.EOF marks a clean end of stream.
func (es *EventSource) Next() (RawEvent, error) {
	if es.closed {
		return RawEvent{}, io.EOF
	}
	for {
		ev, err := es.decoder.Next()
		if err == nil {
			// Heartbeat comments are not replayed in step with data, so they
			// neither count as delivered nor use up the replay skip.
			if ev.IsComment() {
				return ev, nil
			}
			if es.skip > 0 {
				es.skip--
				continue
			}
			es.failures = 0
			if ev.ID != "" {
				es.lastID = ev.ID
			}
			es.delivered++
			return ev, nil
		}
		if errors.Is(err, io.EOF) {
			es.Close()
			return RawEvent{}, io.EOF
		}
		if rerr := es.reconnect(err); rerr != nil {
			es.Close()
			return RawEvent{}, rerr
		}
	}
}

// Close releases the current response body. Further calls to Next return io.EOF.
func (es *EventSource) Close() error {
	es.closed = true
	if es.body == nil {
		return nil
	}
	err := es.body.Close()
	es.body = nil
	return err
}

func (es *EventSource) connect() error {
	httpReq, err := es.req.build(es.ctx)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", firstNonEmpty(es.req.Header.Get("Accept"), es.framing.accept()))
	httpReq.Header.Set("Cache-Control", "no-cache")
	if es.lastID != "" {
		httpReq.Header.Set("Last-Event-ID", es.lastID)
	}

	resp, err := es.t.HTTPClient.Do(httpReq)
	if err != nil {
		return err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := readAPIError(resp.Body, resp.StatusCode)
		resp.Body.Close()
		apiErr.Backend = es.backend
		return apiErr
	}
	es.body = resp.Body
	es.decoder = newEventDecoder(es.framing, resp.Body)
	return nil
}

func (es *EventSource) reconnect(cause error) error {
	policy := es.t.Policy
	if es.body != nil {
		es.body.Close()
		es.body = nil
	}
	if !policy.RetryOnDisconnect {
		return &DisconnectError{Err: cause}
	}
	for {
		if err := es.ctx.Err(); err != nil {
			return &DisconnectError{Attempts: es.failures, Err: err}
		}
		es.failures++
		if policy.exhausted(es.failures) {
			return &DisconnectError{Attempts: es.failures - 1, Err: cause}
		}
		delay := policy.Delay(es.failures)
		es.t.logger().Info("stream disconnected, reconnecting",
			"attempt", es.failures, "delay", delay, "delivered", es.delivered, "error", cause)
		if err := es.t.wait(es.ctx, delay); err != nil {
			return &DisconnectError{Attempts: es.failures, Err: err}
		}
		es.t.Metrics.reconnect(es.backend)
		err := es.connect()
		if err == nil {
			// Without an event id the server replays from the start.
			if es.lastID == "" {
				es.skip = es.delivered
			}
			return nil
		}
		if !retryableConnectError(err) {
			return &DisconnectError{Attempts: es.failures, Err: err}
		}
		cause = err
	}
}
