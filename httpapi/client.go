// SPDX-License-Identifier: GPL-3.0-or-later

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/bassosimone/framewire"
	"github.com/bassosimone/sud"
	"golang.org/x/net/http2"
)

// NewClient returns a new [*Client] for the API served at endpoint.
//
// The cfg argument contains the common configuration for framewire operations.
//
// The logger argument is the [framewire.SLogger] to use for structured logging.
func NewClient(cfg *framewire.Config, endpoint framewire.Endpoint, logger framewire.SLogger) *Client {
	return &Client{
		Connect:      framewire.NewConnectFunc(cfg, logger),
		Endpoint:     endpoint,
		Logger:       logger,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Client invokes a remote [*Handler] over cleartext HTTP/2.
//
// Each call dials a fresh connection, which goes through the blocked
// target check and the logging of the framewire connector, and closes it
// once the response has been read.
//
// All fields are safe to modify after construction but before first use.
type Client struct {
	// Connect dials the API endpoint.
	//
	// Set by [NewClient] using [framewire.NewConnectFunc].
	Connect framewire.Func[framewire.Endpoint, net.Conn]

	// Endpoint is the API endpoint.
	Endpoint framewire.Endpoint

	// Logger is the [framewire.SLogger] to use.
	Logger framewire.SLogger

	// MaxBodyBytes limits the size of response bodies.
	MaxBodyBytes int64
}

// Probe asks the remote API to run one probe of protocol and returns
// its result together with the HTTP status code.
func (c *Client) Probe(ctx context.Context, protocol string, req Request) (framewire.OperationResult, int, error) {
	var result framewire.OperationResult
	status, err := c.post(ctx, "/probe/"+url.PathEscape(protocol), req, &result)
	return result, status, err
}

// FanOut asks the remote API to run req.
func (c *Client) FanOut(ctx context.Context, req FanOutRequest) (FanOutResponse, int, error) {
	var resp FanOutResponse
	status, err := c.post(ctx, "/probe", req, &resp)
	return resp, status, err
}

func (c *Client) post(ctx context.Context, path string, in, out any) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}
	URL := &url.URL{Scheme: "http", Host: c.Endpoint.String(), Path: path}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, URL.String(), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	conn, err := c.Connect.Call(ctx, c.Endpoint)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// The transport dials exactly once, reusing the connection above.
	dialer := sud.NewSingleUseDialer(conn)
	txp := &http2.Transport{
		AllowHTTP:      true,
		DialTLSContext: dialer.DialTLSContext,
	}
	defer txp.CloseIdleConnections()

	resp, err := txp.RoundTrip(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	c.Logger.Info(
		"apiResponse",
		slog.String("path", path),
		slog.String("proto", resp.Proto),
		slog.Int("status", resp.StatusCode),
	)
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.MaxBodyBytes))
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		var reject errorResponse
		json.Unmarshal(data, &reject)
		return resp.StatusCode, fmt.Errorf("httpapi: request rejected with %d: %s", resp.StatusCode, reject.Error)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}
