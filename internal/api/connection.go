package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rickgao/eventstream/internal/connection"
)

// ErrIncompleteInfo is returned when the host answers without a url or id.
var ErrIncompleteInfo = errors.New("incomplete connection info")

var _ connection.Provider = (*Client)(nil)

type connectionInfoResponse struct {
	ConnectionID string `json:"connectionId"`
	URL          string `json:"url"`
}

// Resolve fetches connection info. Concurrent calls share one request,
// which keeps running while any caller is still waiting for it; a caller
// whose ctx ends returns early without cancelling the others.
// A relative url is resolved against the base URL with a ws or wss scheme.
func (c *Client) Resolve(ctx context.Context) (connection.Info, error) {
	c.mu.Lock()
	fl := c.flight
	if fl == nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		c.flight = fl
	}
	fl.waiters++
	ch := c.group.DoChan(c.infoPath, func() (any, error) {
		defer c.finish(fl)
		return c.fetch(fl.ctx)
	})
	c.mu.Unlock()

	select {
	case res := <-ch:
		c.leave(fl)
		if res.Err != nil {
			return connection.Info{}, fmt.Errorf("resolve connection info: %w", res.Err)
		}
		info := res.Val.(connection.Info)
		c.logger.Debug("resolved connection info",
			"connection_id", info.ConnectionID,
			"shared", res.Shared,
		)
		return info, nil
	case <-ctx.Done():
		c.leave(fl)
		return connection.Info{}, fmt.Errorf("resolve connection info: %w", ctx.Err())
	}
}

// flight is the shared request behind coalesced Resolve calls.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// finish retires fl once its request has returned.
func (c *Client) finish(fl *flight) {
	c.mu.Lock()
	if c.flight == fl {
		c.flight = nil
	}
	c.mu.Unlock()
	fl.cancel()
}

// leave drops one waiter. The last one out abandons a request still in
// flight so later callers start a fresh one.
func (c *Client) leave(fl *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fl.waiters--
	if fl.waiters > 0 || c.flight != fl {
		return
	}
	c.flight = nil
	c.group.Forget(c.infoPath)
	fl.cancel()
}

func (c *Client) fetch(ctx context.Context) (connection.Info, error) {
	var resp connectionInfoResponse
	if err := c.get(ctx, c.infoPath, nil, &resp); err != nil {
		return connection.Info{}, err
	}
	if resp.ConnectionID == "" || resp.URL == "" {
		return connection.Info{}, ErrIncompleteInfo
	}

	u, err := c.socketURL(resp.URL)
	if err != nil {
		return connection.Info{}, err
	}

	return connection.Info{ConnectionID: resp.ConnectionID, URL: u}, nil
}

func (c *Client) socketURL(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	if ref.IsAbs() {
		return raw, nil
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	u := base.ResolveReference(ref)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	return u.String(), nil
}
