// Package stream is the composition root of the event stream client. A
// single Client owns the registry, the dispatcher and the connection manager;
// construct it once and share it among consumers.
package stream

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rickgao/eventstream/internal/connection"
	"github.com/rickgao/eventstream/internal/metrics"
	"github.com/rickgao/eventstream/internal/router"
)

// Config configures a Client.
type Config struct {
	Manager    connection.ManagerConfig
	InstanceID string // Generated when empty
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Manager: connection.DefaultManagerConfig()}
}

// Client multiplexes subscriptions onto one managed connection.
type Client struct {
	instanceID string
	logger     *slog.Logger

	registry   *router.Registry
	dispatcher *router.Dispatcher
	manager    *connection.Manager
}

type options struct {
	clock   connection.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	backoff *connection.Backoff
}

// Option configures a Client.
type Option func(*options)

// WithClock sets the clock for connection and debounce timers.
func WithClock(c connection.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBackoff sets the reconnect wait policy.
func WithBackoff(b connection.Backoff) Option {
	return func(o *options) { o.backoff = &b }
}

// New wires a Client. No connection is made until the first Subscribe.
func New(cfg Config, provider connection.Provider, dialer connection.Dialer, opts ...Option) *Client {
	o := options{clock: connection.RealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	id := cfg.InstanceID
	if id == "" {
		id = uuid.NewString()
	}
	logger := o.logger.With("instance", id)

	registry := router.NewRegistry(logger.With("component", "registry"), o.metrics)
	dispatcher := router.NewDispatcher(registry,
		router.WithClock(o.clock),
		router.WithLogger(logger.With("component", "dispatcher")),
		router.WithMetrics(o.metrics),
	)

	mopts := []connection.ManagerOption{
		connection.WithClock(o.clock),
		connection.WithLogger(logger.With("component", "connection")),
		connection.WithMetrics(o.metrics),
	}
	if o.backoff != nil {
		mopts = append(mopts, connection.WithBackoff(*o.backoff))
	}

	return &Client{
		instanceID: id,
		logger:     logger,
		registry:   registry,
		dispatcher: dispatcher,
		manager:    connection.NewManager(cfg.Manager, provider, dialer, dispatcher, registry, mopts...),
	}
}

// Subscribe registers h for event and returns its handler id, or "" when
// event or h is missing. The first subscription starts the connection; any
// later one refreshes a stale connection immediately.
func (c *Client) Subscribe(event string, h router.Handler, opts router.Options) string {
	id := c.registry.Subscribe(event, h, opts)
	if id == "" {
		return ""
	}

	if !c.manager.State().Started {
		c.manager.Start()
	} else if c.manager.IsStale() {
		c.logger.Info("stale connection on subscribe, refreshing", "handler_id", id)
		c.manager.Refresh()
	}

	return id
}

// Unsubscribe revokes a handler id. Unknown ids are ignored.
func (c *Client) Unsubscribe(id string) {
	c.registry.Unsubscribe(id)
}

// IsConnected returns whether the socket is open.
func (c *Client) IsConnected() bool { return c.manager.IsConnected() }

// ConnectionID returns the last resolved connection id.
func (c *Client) ConnectionID() string { return c.manager.ConnectionID() }

// State returns a snapshot of the connection state.
func (c *Client) State() connection.State { return c.manager.State() }

// InstanceID identifies this client process.
func (c *Client) InstanceID() string { return c.instanceID }

// Close shuts the connection down and cancels pending debounced deliveries.
func (c *Client) Close(ctx context.Context) error {
	err := c.manager.Close(ctx)
	c.dispatcher.Close()
	return err
}
