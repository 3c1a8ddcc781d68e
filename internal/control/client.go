// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

package control

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/samber/oops"
)

// DefaultClientTimeout bounds each control request.
const DefaultClientTimeout = 2 * time.Second

// Client talks to a host's control socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient creates a client for the socket at socketPath. A zero timeout
// uses DefaultClientTimeout.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: timeout,
		},
	}
}

// Health queries GET /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	return resp, c.do(ctx, http.MethodGet, "/health", &resp)
}

// Status queries GET /status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	return resp, c.do(ctx, http.MethodGet, "/status", &resp)
}

// Reload asks the host to reload its scripted mods.
func (c *Client) Reload(ctx context.Context) (MessageResponse, error) {
	var resp MessageResponse
	return resp, c.do(ctx, http.MethodPost, "/reload", &resp)
}

// Shutdown asks the host to stop.
func (c *Client) Shutdown(ctx context.Context) (MessageResponse, error) {
	var resp MessageResponse
	return resp, c.do(ctx, http.MethodPost, "/shutdown", &resp)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	if _, err := os.Stat(c.socketPath); errors.Is(err, fs.ErrNotExist) {
		return oops.In("control").Code("CONTROL_UNAVAILABLE").With("path", c.socketPath).
			Hint("is modhost running?").Errorf("control socket not found")
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://modhost"+path, http.NoBody)
	if err != nil {
		return oops.In("control").Wrap(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return oops.In("control").Code("CONTROL_UNAVAILABLE").With("path", c.socketPath).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.In("control").With("status", resp.StatusCode).Wrapf(err, "failed to decode response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := ""
		if m, ok := out.(*MessageResponse); ok {
			msg = m.Message
		}
		return oops.In("control").Code("CONTROL_REQUEST_FAILED").With("status", resp.StatusCode).Errorf("%s %s: %s", method, path, msg)
	}
	return nil
}
