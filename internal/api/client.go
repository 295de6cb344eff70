package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/eventstream/internal/version"
)

// InstanceHeader carries the client instance id on every request.
const InstanceHeader = "X-Client-Instance"

// DefaultInfoPath is where the host serves connection info.
const DefaultInfoPath = "/connection-info"

// Client resolves connection info from the host over HTTP. It satisfies
// connection.Provider.
type Client struct {
	baseURL  string
	infoPath string
	header   http.Header

	httpClient *http.Client
	logger     *slog.Logger

	// Retry policy for retryable API errors
	maxRetries   int
	retryBackoff time.Duration

	// Coalesces concurrent Resolve calls
	group  singleflight.Group
	mu     sync.Mutex
	flight *flight
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a client for the host at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		infoPath:     DefaultInfoPath,
		header:       http.Header{},
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}
	c.header.Set("Accept", "application/json")
	c.header.Set("User-Agent", "eventstream/"+version.Version)

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// WithInstanceID sends id in the InstanceHeader.
func WithInstanceID(id string) ClientOption {
	return func(c *Client) {
		if id != "" {
			c.header.Set(InstanceHeader, id)
		}
	}
}

// WithInfoPath overrides DefaultInfoPath.
func WithInfoPath(path string) ClientOption {
	return func(c *Client) {
		c.infoPath = path
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each HTTP request. Zero keeps the current timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how many times a retryable error is retried and the
// first wait between attempts.
func WithRetries(max int, initial time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = initial
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}
