// SPDX-License-Identifier: GPL-3.0-or-later

package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bassosimone/framewire"
	"github.com/bassosimone/framewire/protocols/simple"
	"github.com/bassosimone/slogstub"
	"github.com/stretchr/testify/require"
)

// newCapturingLogger returns a logger recording the messages it receives.
func newCapturingLogger() (*slog.Logger, func() []string) {
	var (
		mu       sync.Mutex
		messages []string
	)
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			mu.Lock()
			messages = append(messages, record.Message)
			mu.Unlock()
			return nil
		},
	}
	return slog.New(handler), func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), messages...)
	}
}

// stubFactory returns a [ProbeFactory] whose probes call fn with the request.
func stubFactory(fn func(req Request) (*framewire.Outcome, error)) ProbeFactory {
	return ProbeFactory{
		DefaultPort:    7,
		DefaultTLSPort: 7007,
		New: func(cfg *framewire.Config, req Request, logger framewire.SLogger) (Probe, error) {
			return framewire.FuncAdapter[framewire.Unit, *framewire.Outcome](
				func(ctx context.Context, _ framewire.Unit) (*framewire.Outcome, error) {
					return fn(req)
				}), nil
		},
	}
}

// completeOutcome returns a complete outcome whose last message has payload.
func completeOutcome(payload any) *framewire.Outcome {
	return &framewire.Outcome{
		State:      framewire.HandshakeComplete,
		PhaseIndex: 1,
		PhaseName:  "stub",
		Messages:   []framewire.Message{{Type: "stub", Payload: payload}},
	}
}

// do sends a request with body to handler and returns the recorder.
func do(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// decodeBody decodes the JSON body of rr into v.
func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

// startSimpleServer serves a simple service until the test ends.
func startSimpleServer(t *testing.T, handler simple.Handler) uint16 {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := simple.NewServer("test", handler, framewire.DefaultSLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return uint16(listener.Addr().(*net.TCPAddr).Port)
}
