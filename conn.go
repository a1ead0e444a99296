// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// ConnState is the lifecycle state of a [*Conn].
//
// A [*Conn] starts in [StateOpen]: [NewConn] wraps an already established
// [net.Conn]. [StateConnecting] is the zero value and names the dial that
// precedes it, so [*Conn.State] never reports it.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

// String implements [fmt.Stringer].
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// aLongTimeAgo is a read or write deadline that unblocks pending I/O at once.
var aLongTimeAgo = time.Unix(1, 0)

// Conn is a framed stream connection.
//
// A Conn owns the underlying [net.Conn], the [*ReadBuffer] holding surplus
// bytes between reads, and the [*Guard] that releases the handle. A Conn
// is exclusively owned by the goroutine driving its operation: reads and
// writes must not be issued concurrently. That exclusivity is what makes
// the stateful surplus retention safe without locking.
//
// Construct using [NewConn] or [*DialFunc].
type Conn struct {
	buf           *ReadBuffer
	chunkSize     int
	conn          net.Conn
	eof           bool
	errClassifier ErrClassifier
	guard         *Guard
	laddr         string
	logger        SLogger
	protocol      string
	raddr         string
	state         atomic.Int32
	timeNow       func() time.Time
}

// NewConn wraps an established [net.Conn] into an open [*Conn].
//
// The cfg argument provides the buffer caps, chunk size, clock and
// error classifier. The logger argument is the [SLogger] to use.
//
// The returned [*Conn] owns conn: closing it closes conn.
func NewConn(cfg *Config, conn net.Conn, logger SLogger) *Conn {
	runtimex.Assert(conn != nil)
	c := &Conn{
		buf:           NewReadBuffer(cfg.MaxBytes, cfg.MaxChunks),
		chunkSize:     cfg.ChunkSize,
		conn:          conn,
		errClassifier: cfg.ErrClassifier,
		guard:         NewGuard(conn),
		laddr:         safeconn.LocalAddr(conn),
		logger:        logger,
		protocol:      safeconn.Network(conn),
		raddr:         safeconn.RemoteAddr(conn),
		timeNow:       cfg.TimeNow,
	}
	if c.chunkSize <= 0 {
		c.chunkSize = DefaultChunkSize
	}
	c.state.Store(int32(StateOpen))
	return c
}

// Buffer returns the connection's [*ReadBuffer].
func (c *Conn) Buffer() *ReadBuffer {
	return c.buf
}

// Guard returns the connection's [*Guard].
func (c *Conn) Guard() *Guard {
	return c.guard
}

// NetConn returns the underlying [net.Conn].
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

// State returns the current [ConnState].
//
// A connection whose [*Guard] was released by a context watch reports
// [StateClosed] even before [*Conn.Close] runs.
func (c *Conn) State() ConnState {
	state := ConnState(c.state.Load())
	if state == StateOpen && c.guard.Released() {
		return StateClosed
	}
	return state
}

// Close releases the connection through its [*Guard].
//
// Close is idempotent: only the first call closes the underlying
// [net.Conn] and later calls return nil.
func (c *Conn) Close() error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return nil
	}
	t0 := c.timeNow()
	c.logger.Info(
		"closeStart",
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	err := c.guard.Release()
	c.state.Store(int32(StateClosed))

	c.logger.Info(
		"closeDone",
		slog.Any("err", err),
		slog.String("errClass", c.errClassifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)
	return err
}

// Write writes all of data unless the deadline expires or ctx is done.
func (c *Conn) Write(ctx context.Context, data []byte, deadline Deadline) error {
	if err := c.checkBeforeIO(ctx, deadline); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(deadline.Time()); err != nil {
		return classifyIO(ctx, KindWriteFailed, err)
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetWriteDeadline(aLongTimeAgo)
	})
	defer stop()

	t0 := c.timeNow()
	c.logger.Debug(
		"writeStart",
		slog.Time("deadline", deadline.Time()),
		slog.Int("ioBufferSize", len(data)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	count, err := c.conn.Write(data)

	c.logger.Debug(
		"writeDone",
		slog.Time("deadline", deadline.Time()),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.errClassifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)

	if err != nil {
		return classifyIO(ctx, KindWriteFailed, err)
	}
	return nil
}

// checkBeforeIO fails fast on a done context, a closed connection, or
// an expired deadline.
//
// The context comes first: a [*Guard] watching ctx closes the connection
// as soon as ctx is done, and that must surface as a timeout or a
// cancellation rather than as a peer close.
func (c *Conn) checkBeforeIO(ctx context.Context, deadline Deadline) error {
	if err := ctx.Err(); err != nil {
		return classifyIO(ctx, KindReadFailed, err)
	}
	if c.State() != StateOpen {
		return newError(ClassRead, KindConnectionClosedEarly, net.ErrClosed)
	}
	if deadline.Expired(c.timeNow()) {
		return newError(ClassRead, KindTimeout, context.DeadlineExceeded)
	}
	return nil
}

// fill issues one chunk read of at most want bytes and appends the
// result to the buffer. Every call counts toward the per-frame chunk
// ceiling, including reads that return no bytes.
func (c *Conn) fill(ctx context.Context, deadline Deadline, want int) error {
	chunk, err := c.readChunk(ctx, deadline, want)
	c.buf.Append(chunk)
	return err
}

// readChunk issues a single network read of at most want bytes.
//
// A peer close sets c.eof and is not an error: the bytes received with it
// are returned. Bytes delivered together with any other error are returned
// along with the error so that nothing already received is dropped.
func (c *Conn) readChunk(ctx context.Context, deadline Deadline, want int) ([]byte, error) {
	runtimex.Assert(want > 0)
	if c.eof {
		return nil, nil
	}
	if err := c.checkBeforeIO(ctx, deadline); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(deadline.Time()); err != nil {
		return nil, classifyIO(ctx, KindReadFailed, err)
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	scratch := make([]byte, min(want, c.chunkSize))
	t0 := c.timeNow()
	c.logger.Debug(
		"chunkReadStart",
		slog.Int("bufferedBytes", c.buf.Len()),
		slog.Int("chunkCount", c.buf.Chunks()),
		slog.Time("deadline", deadline.Time()),
		slog.Int("ioBufferSize", len(scratch)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t0),
	)

	count, err := c.conn.Read(scratch)

	c.logger.Debug(
		"chunkReadDone",
		slog.Int("bufferedBytes", c.buf.Len()),
		slog.Time("deadline", deadline.Time()),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.errClassifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)

	chunk := scratch[:count]
	if err == nil {
		return chunk, nil
	}
	rerr := classifyIO(ctx, KindReadFailed, err)
	if rerr.Kind == KindConnectionClosedEarly {
		c.eof = true
		return chunk, nil
	}
	return chunk, rerr
}
