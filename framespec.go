// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// FrameKind tags a [FrameSpec] variant.
type FrameKind string

const (
	FrameFixedLength         = FrameKind("fixedLength")
	FrameLengthPrefixed      = FrameKind("lengthPrefixed")
	FrameDelimiterTerminated = FrameKind("delimiterTerminated")
	FrameClosedByPeer        = FrameKind("closedByPeer")
	FrameBounded             = FrameKind("bounded")
)

// FrameSpec describes how to recognize that a frame is complete.
//
// A FrameSpec is pure data. The set of variants is closed: [FixedLength],
// [LengthPrefixed], [DelimiterTerminated], [ClosedByPeer], and [Bounded].
type FrameSpec interface {
	// Kind returns the variant tag.
	Kind() FrameKind

	// Validate returns an error if the spec cannot describe any frame.
	Validate() error

	sealed()
}

// FixedLength frames are exactly N bytes.
type FixedLength struct {
	N int
}

var _ FrameSpec = FixedLength{}

// Kind implements [FrameSpec].
func (FixedLength) Kind() FrameKind { return FrameFixedLength }

// Validate implements [FrameSpec].
func (s FixedLength) Validate() error {
	if s.N < 0 {
		return fmt.Errorf("fixedLength: negative length %d", s.N)
	}
	return nil
}

func (FixedLength) sealed() {}

// Endianness is the byte order of a length field.
type Endianness int

const (
	BigEndian Endianness = iota
	LittleEndian
)

func (e Endianness) byteOrder() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// LengthPrefixed frames start with a HeaderLen-byte header containing an
// unsigned length field of LengthFieldWidth bytes at LengthFieldOffset.
//
// When LengthIncludesHeader is true the field is the total frame length,
// otherwise it is the length of the body following the header.
type LengthPrefixed struct {
	HeaderLen            int
	LengthFieldOffset    int
	LengthFieldWidth     int
	Endianness           Endianness
	LengthIncludesHeader bool
}

var _ FrameSpec = LengthPrefixed{}

// Kind implements [FrameSpec].
func (LengthPrefixed) Kind() FrameKind { return FrameLengthPrefixed }

// Validate implements [FrameSpec].
func (s LengthPrefixed) Validate() error {
	switch s.LengthFieldWidth {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("lengthPrefixed: unsupported field width %d", s.LengthFieldWidth)
	}
	if s.LengthFieldOffset < 0 || s.LengthFieldOffset+s.LengthFieldWidth > s.HeaderLen {
		return fmt.Errorf("lengthPrefixed: length field [%d, %d) outside %d-byte header",
			s.LengthFieldOffset, s.LengthFieldOffset+s.LengthFieldWidth, s.HeaderLen)
	}
	return nil
}

func (LengthPrefixed) sealed() {}

// BodyLen decodes the length field of header and returns the number of
// body bytes that follow the header.
//
// The header must be exactly HeaderLen bytes.
func (s LengthPrefixed) BodyLen(header []byte) (uint64, error) {
	if len(header) != s.HeaderLen {
		return 0, NewDecodeError(KindMalformedHeader, "header is %d bytes, want %d", len(header), s.HeaderLen)
	}
	field := header[s.LengthFieldOffset : s.LengthFieldOffset+s.LengthFieldWidth]
	order := s.Endianness.byteOrder()
	var length uint64
	switch s.LengthFieldWidth {
	case 1:
		length = uint64(field[0])
	case 2:
		length = uint64(order.Uint16(field))
	case 4:
		length = uint64(order.Uint32(field))
	case 8:
		length = order.Uint64(field)
	}
	if !s.LengthIncludesHeader {
		return length, nil
	}
	if length < uint64(s.HeaderLen) {
		return 0, NewDecodeError(KindMalformedHeader,
			"declared total length %d is shorter than the %d-byte header", length, s.HeaderLen)
	}
	return length - uint64(s.HeaderLen), nil
}

// DelimiterTerminated frames end with Delimiter.
//
// The delimiter is part of the returned frame unless StripDelimiter is set.
type DelimiterTerminated struct {
	Delimiter      []byte
	StripDelimiter bool
}

var _ FrameSpec = DelimiterTerminated{}

// Kind implements [FrameSpec].
func (DelimiterTerminated) Kind() FrameKind { return FrameDelimiterTerminated }

// Validate implements [FrameSpec].
func (s DelimiterTerminated) Validate() error {
	if len(s.Delimiter) == 0 {
		return errors.New("delimiterTerminated: empty delimiter")
	}
	return nil
}

func (DelimiterTerminated) sealed() {}

// ClosedByPeer frames end when the peer closes its side of the stream.
//
// MaxBytes caps the frame size; zero selects the connection's byte cap.
type ClosedByPeer struct {
	MaxBytes int
}

var _ FrameSpec = ClosedByPeer{}

// Kind implements [FrameSpec].
func (ClosedByPeer) Kind() FrameKind { return FrameClosedByPeer }

// Validate implements [FrameSpec].
func (s ClosedByPeer) Validate() error {
	if s.MaxBytes < 0 {
		return fmt.Errorf("closedByPeer: negative byte cap %d", s.MaxBytes)
	}
	return nil
}

func (ClosedByPeer) sealed() {}

// Bounded collects bytes on a best-effort basis and stops at whichever
// limit is hit first: MaxBytes, MaxChunks, the Window elapsing, or the
// peer closing. Hitting a limit is not an error.
//
// Zero values disable the corresponding limit, except that the
// connection's own caps and the read deadline always apply.
type Bounded struct {
	MaxBytes  int
	MaxChunks int
	Window    time.Duration
}

var _ FrameSpec = Bounded{}

// Kind implements [FrameSpec].
func (Bounded) Kind() FrameKind { return FrameBounded }

// Validate implements [FrameSpec].
func (s Bounded) Validate() error {
	if s.MaxBytes < 0 || s.MaxChunks < 0 || s.Window < 0 {
		return errors.New("bounded: negative limit")
	}
	return nil
}

func (Bounded) sealed() {}

// Frame is the raw bytes of one completed logical message.
type Frame struct {
	// Kind is the tag of the [FrameSpec] that produced this frame.
	Kind FrameKind

	// Data contains the frame bytes.
	Data []byte

	// Partial is true for [Bounded] frames that ended because of the
	// window or the peer closing rather than reaching MaxBytes or MaxChunks.
	Partial bool
}
