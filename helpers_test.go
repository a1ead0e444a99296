// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"github.com/bassosimone/tlsstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted. Records may be appended
// by concurrent goroutines.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var (
		mu      sync.Mutex
		records []slog.Record
	)
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		},
	}
	return slog.New(handler), &records
}

// recordMessages returns the messages of the given records in order.
func recordMessages(records []slog.Record) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		out = append(out, record.Message)
	}
	return out
}

// newMockTLSEngine returns a [*tlsstub.FuncTLSEngine] handing out conn
// and recording the client configuration into *seen when seen is not nil.
func newMockTLSEngine(conn TLSConn, seen **tls.Config) *tlsstub.FuncTLSEngine[TLSConn] {
	return &tlsstub.FuncTLSEngine[TLSConn]{
		ClientFunc: func(c net.Conn, config *tls.Config) TLSConn {
			if seen != nil {
				*seen = config
			}
			return conn
		},
		NameFunc: func() string {
			return "mock"
		},
	}
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set. This is the minimum needed for code that calls
// [safeconn.LocalAddr], [safeconn.RemoteAddr], and [safeconn.Network]
// during construction.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}

// scriptedConn is a [*netstub.FuncConn] delivering a fixed sequence of
// chunks, one per Read call, then io.EOF.
type scriptedConn struct {
	*netstub.FuncConn
	closed  int
	reads   int
	written []byte
}

// newScriptedConn returns a [*scriptedConn] delivering chunks.
//
// A chunk larger than the read buffer is split and its remainder
// delivered by the next Read. Writes are recorded. Deadlines are ignored.
func newScriptedConn(chunks ...[]byte) *scriptedConn {
	sc := &scriptedConn{FuncConn: newMinimalConn()}
	sc.ReadFunc = func(b []byte) (int, error) {
		sc.reads++
		if len(chunks) == 0 {
			return 0, io.EOF
		}
		count := copy(b, chunks[0])
		if count < len(chunks[0]) {
			chunks[0] = chunks[0][count:]
		} else {
			chunks = chunks[1:]
		}
		return count, nil
	}
	sc.WriteFunc = func(b []byte) (int, error) {
		sc.written = append(sc.written, b...)
		return len(b), nil
	}
	sc.SetReadDeadFunc = func(t time.Time) error { return nil }
	sc.SetWriteDeaFunc = func(t time.Time) error { return nil }
	sc.CloseFunc = func() error {
		sc.closed++
		return nil
	}
	return sc
}

// newPipeConn returns a [*Conn] over one end of a [net.Pipe] and the
// other end, which plays the peer.
func newPipeConn(cfg *Config, logger SLogger) (*Conn, net.Conn) {
	client, server := net.Pipe()
	return NewConn(cfg, client, logger), server
}

// repeatChunks returns count chunks each containing chunk.
func repeatChunks(chunk []byte, count int) [][]byte {
	out := make([][]byte, 0, count)
	for range count {
		out = append(out, chunk)
	}
	return out
}

// countingConn counts Close calls on a wrapped [net.Conn].
type countingConn struct {
	net.Conn
	mu     sync.Mutex
	closes int
}

func (c *countingConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return c.Conn.Close()
}

func (c *countingConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// lineCodec encodes raw requests and decodes each "TYPE rest" line.
var lineCodec = CodecFuncs{
	EncodeFunc: EncodeBytes,
	DecodeFunc: func(frame Frame) (Message, error) {
		line := strings.TrimRight(string(frame.Data), "\r\n")
		kind, rest, _ := strings.Cut(line, " ")
		return Message{Type: kind, Payload: rest}, nil
	},
}

// linePhase returns a [Phase] sending request and expecting one line.
func linePhase(name, request string, advance, terminal []string) Phase {
	var req any
	if request != "" {
		req = request
	}
	return Phase{
		Name:     name,
		Request:  req,
		Codec:    lineCodec,
		Expect:   DelimiterTerminated{Delimiter: []byte("\n")},
		Advance:  advance,
		Terminal: terminal,
	}
}
