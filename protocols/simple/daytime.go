// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"time"

	"github.com/bassosimone/framewire"
)

// DaytimeScript returns a script reading the daytime string the server
// sends before closing the connection.
func DaytimeScript(timeout time.Duration) (framewire.Script, error) {
	if err := validateTimeout(timeout); err != nil {
		return framewire.Script{}, err
	}
	phase := mustPhase(TypeDaytime, nil, timeout)
	return framewire.Script{Phases: []framewire.Phase{phase}, Timeout: timeout}, nil
}

var daytimeCodec = framewire.CodecFuncs{
	EncodeFunc: framewire.EncodeBytes,
	DecodeFunc: func(frame framewire.Frame) (framewire.Message, error) {
		text := trimLine(frame.Data)
		if text == "" {
			return framewire.Message{}, emptyResponse("daytime")
		}
		msg := framewire.Message{Type: TypeDaytime, Payload: text}
		return msg, framewire.CheckIntegrity(&msg, "daytime charset", isPrintableASCII, frame.Data)
	},
}
