package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"uptime-watcher/internal/ipc"
	"uptime-watcher/internal/statesync"
)

// Client talks to a daemon over HTTP and the websocket event stream.
type Client struct {
	base   *url.URL
	secret string
	http   *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewClient(addr, secret string, logger *slog.Logger) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon address %q: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   u,
		secret: secret,
		http:   &http.Client{Timeout: 5 * time.Minute},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With("component", "ipc-client"),
	}, nil
}

// Invoke calls a channel. Errors are transport errors only; handler failures
// arrive inside the envelope.
func (c *Client) Invoke(ctx context.Context, channel ipc.Channel, params ...any) (ipc.Response, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("encode params: %w", err)
	}
	u := c.base.JoinPath("ipc", string(channel))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return ipc.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("invoke %s: %w", channel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return ipc.Response{}, fmt.Errorf("invoke %s: unauthorized", channel)
	}
	var out ipc.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ipc.Response{}, fmt.Errorf("invoke %s: decode envelope (HTTP %d): %w", channel, resp.StatusCode, err)
	}
	return out, nil
}

// Call invokes a channel and decodes its data into out.
func (c *Client) Call(ctx context.Context, channel ipc.Channel, out any, params ...any) error {
	resp, err := c.Invoke(ctx, channel, params...)
	if err != nil {
		return err
	}
	if out == nil {
		if !resp.Success {
			return fmt.Errorf("%s", resp.Error)
		}
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) FullSync(ctx context.Context) (statesync.Snapshot, error) {
	var snap statesync.Snapshot
	err := c.Call(ctx, ipc.RequestFullSync, &snap)
	return snap, err
}

// Events streams frames until ctx ends or the connection drops, then closes
// the channel.
func (c *Client) Events(ctx context.Context) (<-chan statesync.Frame, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u = *u.JoinPath("ipc", "events")

	header := http.Header{}
	c.authorize(header)
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("event stream: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("event stream: %w", err)
	}

	out := make(chan statesync.Frame, 64)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var f statesync.Frame
			if err := conn.ReadJSON(&f); err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("event stream closed", "error", err)
				}
				return
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) authorize(h http.Header) {
	if c.secret != "" {
		h.Set(SecretHeader, c.secret)
	}
}
