// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bassosimone/runtimex"
)

// ReadExact returns exactly n bytes from the connection.
//
// Buffered surplus from previous reads is consumed first. When the buffer
// holds fewer than n bytes, ReadExact issues chunk reads, appending each to
// the buffer, until n bytes are available. It never hands out more than n
// bytes: whatever the last chunk carried beyond n stays buffered for the
// next call.
//
// Errors are [*Error] values of class [ClassRead]: [KindTimeout] when the
// deadline expires, [KindConnectionClosedEarly] when the peer closes first,
// [KindTooManyChunks] when the chunk ceiling is exceeded, and
// [KindResponseTooLarge] when n exceeds the buffer cap.
//
// The chunk ceiling applies per call: a retry after an error starts
// counting from zero again.
func (c *Conn) ReadExact(ctx context.Context, n int, deadline Deadline) ([]byte, error) {
	defer c.buf.frameDone()
	data, err := c.readExact(ctx, n, deadline)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Conn) readExact(ctx context.Context, n int, deadline Deadline) ([]byte, error) {
	runtimex.Assert(n >= 0)
	if n > c.buf.MaxBytes() {
		return nil, newError(ClassRead, KindResponseTooLarge,
			fmt.Errorf("frame of %d bytes exceeds the %d-byte cap", n, c.buf.MaxBytes()))
	}
	for c.buf.Len() < n {
		if err := c.ensureReadable(); err != nil {
			return nil, err
		}
		if err := c.fill(ctx, deadline, c.buf.Room()); err != nil {
			return nil, err
		}
	}
	return c.buf.Take(n), nil
}

// ensureReadable fails when another chunk read cannot help.
func (c *Conn) ensureReadable() error {
	if c.eof {
		return newError(ClassRead, KindConnectionClosedEarly,
			fmt.Errorf("peer closed with %d bytes buffered", c.buf.Len()))
	}
	if c.buf.Chunks() >= c.buf.MaxChunks() {
		return newError(ClassRead, KindTooManyChunks,
			fmt.Errorf("frame incomplete after %d chunks", c.buf.Chunks()))
	}
	return nil
}

// ReadFrame reads one [Frame] as described by spec.
//
// Surplus bytes beyond the frame stay buffered for the next call. See
// [FixedLength], [LengthPrefixed], [DelimiterTerminated], [ClosedByPeer]
// and [Bounded] for the completion rule of each variant.
func (c *Conn) ReadFrame(ctx context.Context, spec FrameSpec, deadline Deadline) (Frame, error) {
	t0 := c.timeNow()
	frame, err := c.readFrame(ctx, spec, deadline)
	c.logger.Info(
		"frameRead",
		slog.Int("chunkCount", c.buf.Chunks()),
		slog.Time("deadline", deadline.Time()),
		slog.Any("err", err),
		slog.String("errClass", c.errClassifier.Classify(err)),
		slog.Int("frameBytes", len(frame.Data)),
		slog.String("frameKind", string(spec.Kind())),
		slog.Bool("framePartial", frame.Partial),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.timeNow()),
	)
	c.buf.frameDone()
	return frame, err
}

func (c *Conn) readFrame(ctx context.Context, spec FrameSpec, deadline Deadline) (Frame, error) {
	if err := spec.Validate(); err != nil {
		return Frame{}, NewDecodeError(KindMalformedHeader, "invalid frame spec: %w", err)
	}
	switch s := spec.(type) {
	case FixedLength:
		data, err := c.readExact(ctx, s.N, deadline)
		return Frame{Kind: FrameFixedLength, Data: data}, err
	case LengthPrefixed:
		return c.readLengthPrefixed(ctx, s, deadline)
	case DelimiterTerminated:
		return c.readDelimited(ctx, s, deadline)
	case ClosedByPeer:
		return c.readUntilClose(ctx, s, deadline)
	case Bounded:
		return c.readBounded(ctx, s, deadline)
	default:
		panic(fmt.Sprintf("framewire: unhandled frame spec %T", spec))
	}
}

func (c *Conn) readLengthPrefixed(ctx context.Context, s LengthPrefixed, deadline Deadline) (Frame, error) {
	header, err := c.readExact(ctx, s.HeaderLen, deadline)
	if err != nil {
		return Frame{}, err
	}
	bodyLen, err := s.BodyLen(header)
	if err != nil {
		return Frame{}, err
	}
	if bodyLen > uint64(c.buf.MaxBytes()) {
		return Frame{}, newError(ClassRead, KindResponseTooLarge,
			fmt.Errorf("declared body of %d bytes exceeds the %d-byte cap", bodyLen, c.buf.MaxBytes()))
	}
	body, err := c.readExact(ctx, int(bodyLen), deadline)
	if err != nil {
		return Frame{}, err
	}
	data := make([]byte, 0, len(header)+len(body))
	data = append(data, header...)
	data = append(data, body...)
	return Frame{Kind: FrameLengthPrefixed, Data: data}, nil
}

func (c *Conn) readDelimited(ctx context.Context, s DelimiterTerminated, deadline Deadline) (Frame, error) {
	var from int
	for {
		if idx := c.buf.Index(s.Delimiter, from); idx >= 0 {
			data := c.buf.Take(idx + len(s.Delimiter))
			if s.StripDelimiter {
				data = data[:idx]
			}
			return Frame{Kind: FrameDelimiterTerminated, Data: data}, nil
		}
		// The delimiter may straddle the next chunk boundary.
		from = max(c.buf.Len()-len(s.Delimiter)+1, 0)
		if c.buf.Room() <= 0 {
			return Frame{}, newError(ClassRead, KindResponseTooLarge,
				fmt.Errorf("no delimiter within %d bytes", c.buf.MaxBytes()))
		}
		if err := c.ensureReadable(); err != nil {
			return Frame{}, err
		}
		if err := c.fill(ctx, deadline, c.buf.Room()); err != nil {
			return Frame{}, err
		}
	}
}

func (c *Conn) readUntilClose(ctx context.Context, s ClosedByPeer, deadline Deadline) (Frame, error) {
	limit := c.buf.MaxBytes()
	if s.MaxBytes > 0 {
		limit = min(s.MaxBytes, limit)
	}
	for !c.eof {
		if c.buf.Chunks() >= c.buf.MaxChunks() {
			return Frame{}, newError(ClassRead, KindTooManyChunks,
				fmt.Errorf("peer still open after %d chunks", c.buf.Chunks()))
		}
		if c.buf.Len() < limit {
			if err := c.fill(ctx, deadline, limit-c.buf.Len()); err != nil {
				return Frame{}, err
			}
			continue
		}
		// At the cap: probe for one more byte without growing the buffer.
		extra, err := c.readChunk(ctx, deadline, 1)
		if err != nil {
			return Frame{}, err
		}
		if len(extra) > 0 {
			return Frame{}, newError(ClassRead, KindResponseTooLarge,
				fmt.Errorf("response exceeds %d bytes", limit))
		}
		c.buf.Append(nil)
	}
	return Frame{Kind: FrameClosedByPeer, Data: c.buf.Take(c.buf.Len())}, nil
}

func (c *Conn) readBounded(ctx context.Context, s Bounded, deadline Deadline) (Frame, error) {
	maxBytes := c.buf.MaxBytes()
	if s.MaxBytes > 0 {
		maxBytes = min(s.MaxBytes, maxBytes)
	}
	maxChunks := c.buf.MaxChunks()
	if s.MaxChunks > 0 {
		maxChunks = min(s.MaxChunks, maxChunks)
	}
	window := deadline
	if s.Window > 0 {
		window = window.Earlier(NewDeadline(c.timeNow(), s.Window))
	}
	partial := false
	for c.buf.Len() < maxBytes && c.buf.Chunks() < maxChunks {
		if c.eof || window.Expired(c.timeNow()) {
			partial = true
			break
		}
		err := c.fill(ctx, window, maxBytes-c.buf.Len())
		if err == nil {
			continue
		}
		if KindOf(err) != KindTimeout || ctx.Err() != nil {
			return Frame{}, err
		}
		partial = true
		break
	}
	data := c.buf.Take(min(c.buf.Len(), maxBytes))
	return Frame{Kind: FrameBounded, Data: data, Partial: partial}, nil
}
