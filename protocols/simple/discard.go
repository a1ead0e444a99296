// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"fmt"
	"time"

	"github.com/bassosimone/framewire"
)

// DiscardResult is the payload of a discard probe.
type DiscardResult struct {
	// Sent is the number of bytes written.
	Sent int `json:"sent"`

	// Received is the number of bytes the peer answered with.
	Received int `json:"received"`
}

// DiscardScript returns a script writing payload and then listening for
// window. A conforming peer stays silent: any answer becomes a warning.
func DiscardScript(payload []byte, window, timeout time.Duration) (framewire.Script, error) {
	if len(payload) == 0 {
		return framewire.Script{}, fmt.Errorf("simple: empty discard payload")
	}
	if err := validateTimeout(timeout); err != nil {
		return framewire.Script{}, err
	}
	phase := mustPhase(TypeDiscard, payload, timeout)
	spec := phase.Expect.(framewire.Bounded)
	if window > 0 {
		spec.Window = window
	}
	phase.Expect = spec
	phase.Codec = discardResultCodec{sent: len(payload)}
	return framewire.Script{Phases: []framewire.Phase{phase}, Timeout: timeout}, nil
}

var discardCodec = discardResultCodec{}

type discardResultCodec struct {
	sent int
}

func (c discardResultCodec) Encode(request any) ([]byte, error) {
	return framewire.EncodeBytes(request)
}

func (c discardResultCodec) Decode(frame framewire.Frame) (framewire.Message, error) {
	msg := framewire.Message{
		Type:    TypeDiscard,
		Payload: DiscardResult{Sent: c.sent, Received: len(frame.Data)},
	}
	if len(frame.Data) > 0 {
		msg.Warnings = append(msg.Warnings,
			fmt.Sprintf("discard peer answered with %d bytes", len(frame.Data)))
	}
	return msg, nil
}
