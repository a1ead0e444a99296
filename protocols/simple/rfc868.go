// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bassosimone/framewire"
)

// epochOffset is the number of seconds between 1900-01-01 and 1970-01-01.
const epochOffset = 2208988800

// DefaultMaxSkew is the clock skew above which time probes warn.
const DefaultMaxSkew = time.Minute

// TimeResult is the payload of a time probe.
type TimeResult struct {
	// Time is the time reported by the peer.
	Time time.Time `json:"time"`

	// Skew is the peer time minus the local time at decode.
	Skew time.Duration `json:"skewNs"`
}

// TimeScript returns a script reading the 32-bit big-endian number of
// seconds since 1900 sent by the server. The timeNow function provides
// the local clock used to compute the skew.
func TimeScript(timeNow func() time.Time, timeout time.Duration) (framewire.Script, error) {
	if err := validateTimeout(timeout); err != nil {
		return framewire.Script{}, err
	}
	phase := mustPhase(TypeTime, nil, timeout)
	phase.Codec = newTimeCodec(timeNow)
	return framewire.Script{Phases: []framewire.Phase{phase}, Timeout: timeout}, nil
}

type timeCodec struct {
	maxSkew time.Duration
	timeNow func() time.Time
}

func newTimeCodec(timeNow func() time.Time) timeCodec {
	return timeCodec{maxSkew: DefaultMaxSkew, timeNow: timeNow}
}

func (c timeCodec) Encode(request any) ([]byte, error) {
	return framewire.EncodeBytes(request)
}

func (c timeCodec) Decode(frame framewire.Frame) (framewire.Message, error) {
	if len(frame.Data) != 4 {
		return framewire.Message{}, framewire.NewDecodeError(
			framewire.KindMalformedHeader, "time response has %d bytes", len(frame.Data))
	}
	peer := DecodeTime(binary.BigEndian.Uint32(frame.Data))
	skew := peer.Sub(c.timeNow())
	msg := framewire.Message{Type: TypeTime, Payload: TimeResult{Time: peer, Skew: skew}}
	if skew.Abs() > c.maxSkew {
		msg.Warnings = append(msg.Warnings, fmt.Sprintf("clock skew %s exceeds %s", skew, c.maxSkew))
	}
	return msg, nil
}

// DecodeTime converts an RFC 868 value to a [time.Time].
//
// Values below the 1970 offset are taken to belong to the era starting
// in 2036, when the 32-bit counter wraps.
func DecodeTime(value uint32) time.Time {
	secs := int64(value)
	if secs < epochOffset {
		secs += 1 << 32
	}
	return time.Unix(secs-epochOffset, 0).UTC()
}

// EncodeTime converts t to an RFC 868 value.
func EncodeTime(t time.Time) uint32 {
	return uint32(t.Unix() + epochOffset)
}
