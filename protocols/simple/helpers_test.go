// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/framewire"
	"github.com/stretchr/testify/require"
)

// startServer serves handler on a local listener until the test ends.
func startServer(t *testing.T, handler Handler, timeNow func() time.Time) framewire.Endpoint {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer("test", handler, framewire.DefaultSLogger())
	if timeNow != nil {
		srv.TimeNow = timeNow
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	addr := listener.Addr().(*net.TCPAddr)
	return framewire.Endpoint{Host: "127.0.0.1", Port: uint16(addr.Port)}
}

// runScript runs script against endpoint with the default config.
func runScript(t *testing.T, endpoint framewire.Endpoint, script framewire.Script) (*framewire.Outcome, error) {
	t.Helper()
	op := framewire.NewOperation(framewire.NewConfig(), endpoint,
		framewire.DialOptions{}, script, framewire.DefaultSLogger())
	return op.Call(context.Background(), framewire.Unit{})
}

// fixedClock returns a function always returning t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}
