// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import "bytes"

const (
	// DefaultMaxBytes is the default cap on buffered bytes per connection.
	DefaultMaxBytes = 1 << 20

	// DefaultMaxChunks is the default ceiling on chunk reads per frame.
	DefaultMaxChunks = 100

	// DefaultChunkSize is the default size of a single chunk read.
	DefaultChunkSize = 4096
)

// ReadBuffer holds the bytes received on a connection but not yet
// consumed by a frame, plus counters.
//
// Surplus bytes beyond a completed frame stay here for the next read on
// the same connection: they are never discarded and never duplicated.
//
// A ReadBuffer is owned by a single [*Conn] and is not safe for concurrent use.
type ReadBuffer struct {
	data      []byte
	received  int64
	chunks    int
	maxBytes  int
	maxChunks int
}

// NewReadBuffer returns a [*ReadBuffer] with the given caps.
//
// Non-positive values select [DefaultMaxBytes] and [DefaultMaxChunks].
func NewReadBuffer(maxBytes, maxChunks int) *ReadBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	return &ReadBuffer{maxBytes: maxBytes, maxChunks: maxChunks}
}

// Len returns the number of buffered bytes.
func (b *ReadBuffer) Len() int {
	return len(b.data)
}

// Bytes returns a copy of the buffered bytes.
func (b *ReadBuffer) Bytes() []byte {
	return bytes.Clone(b.data)
}

// Received returns the total number of bytes ever appended.
func (b *ReadBuffer) Received() int64 {
	return b.received
}

// Chunks returns the number of chunks appended while assembling the
// current frame.
func (b *ReadBuffer) Chunks() int {
	return b.chunks
}

// MaxBytes returns the byte cap.
func (b *ReadBuffer) MaxBytes() int {
	return b.maxBytes
}

// MaxChunks returns the chunk ceiling.
func (b *ReadBuffer) MaxChunks() int {
	return b.maxChunks
}

// Room returns how many more bytes fit below the byte cap.
func (b *ReadBuffer) Room() int {
	return max(b.maxBytes-len(b.data), 0)
}

// Append adds a received chunk and bumps the counters.
func (b *ReadBuffer) Append(chunk []byte) {
	b.data = append(b.data, chunk...)
	b.received += int64(len(chunk))
	b.chunks++
}

// Take removes and returns the first n buffered bytes.
//
// The caller must ensure n <= [*ReadBuffer.Len]. The returned slice does
// not alias the buffer.
func (b *ReadBuffer) Take(n int) []byte {
	out := bytes.Clone(b.data[:n])
	rest := copy(b.data, b.data[n:])
	b.data = b.data[:rest]
	return out
}

// Index returns the index of the first occurrence of sep at or after
// offset from, or -1.
func (b *ReadBuffer) Index(sep []byte, from int) int {
	from = min(max(from, 0), len(b.data))
	idx := bytes.Index(b.data[from:], sep)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// Peek returns the first n buffered bytes without consuming them.
//
// The returned slice aliases the buffer and is only valid until the next
// mutating call. The caller must ensure n <= [*ReadBuffer.Len].
func (b *ReadBuffer) Peek(n int) []byte {
	return b.data[:n]
}

// frameDone resets the per-frame chunk counter.
func (b *ReadBuffer) frameDone() {
	b.chunks = 0
}
