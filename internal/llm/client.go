package llm

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

// Client streams replies from a single backend.
type Client struct {
	backend   Backend
	transport *Transport
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.transport.HTTPClient = client
		}
	}
}

func WithPolicy(policy ReconnectPolicy) Option {
	return func(c *Client) { c.transport.Policy = policy }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:   backend,
		transport: NewTransport(nil, DefaultReconnectPolicy()),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.transport.Logger = c.logger
	c.transport.Metrics = c.metrics
	return c
}

func (c *Client) Backend() Backend { return c.backend }

// Request builds the request that Stream would send, without sending it.
func (c *Client) Request(conv Conversation, params Params) (*Request, error) {
	return c.backend.NewRequest(conv, params)
}

func (c *Client) Stream(ctx context.Context, conv Conversation, params Params) (Stream, error) {
	req, err := c.backend.NewRequest(conv, params)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("sending request", "backend", c.backend.Name(), "url", redactURL(req.URL), "body", string(req.Body))
	source, err := c.transport.Open(ctx, req, c.backend.Framing())
	if err != nil {
		return nil, err
	}
	return newDeltaStream(c.backend.Name(), source, c.backend, c.logger, c.metrics), nil
}
