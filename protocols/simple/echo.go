// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bassosimone/framewire"
)

// DefaultNonceLength is the default size of the echo nonce.
const DefaultNonceLength = 16

// EchoScript returns a script sending nonce and expecting it back.
//
// The response is read as exactly len(nonce) bytes. A different
// payload is a possibly corrupted response rather than an error.
func EchoScript(nonce []byte, timeout time.Duration) (framewire.Script, error) {
	if len(nonce) == 0 {
		return framewire.Script{}, fmt.Errorf("simple: empty echo nonce")
	}
	if err := validateTimeout(timeout); err != nil {
		return framewire.Script{}, err
	}
	phase := framewire.Phase{
		Name:    TypeEcho,
		Request: bytes.Clone(nonce),
		Codec:   echoCodec{nonce: bytes.Clone(nonce)},
		Expect:  framewire.FixedLength{N: len(nonce)},
		Timeout: timeout,
	}
	return framewire.Script{Phases: []framewire.Phase{phase}, Timeout: timeout}, nil
}

// NewEchoNonce returns a random echo nonce of the given length.
func NewEchoNonce(rnd *framewire.WeakRandom, length int) []byte {
	if length <= 0 {
		length = DefaultNonceLength
	}
	return rnd.Nonce(length)
}

type echoCodec struct {
	nonce []byte
}

func (c echoCodec) Encode(request any) ([]byte, error) {
	return framewire.EncodeBytes(request)
}

func (c echoCodec) Decode(frame framewire.Frame) (framewire.Message, error) {
	msg := framewire.Message{Type: TypeEcho, Payload: string(frame.Data)}
	matches := func(data []byte) bool {
		return bytes.Equal(data, c.nonce)
	}
	return msg, framewire.CheckIntegrity(&msg, "echo payload", matches, frame.Data)
}
