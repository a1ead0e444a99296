// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"bytes"
	"time"

	"github.com/bassosimone/framewire"
)

// Chargen line layout: 72 characters cycling through the 94 printable
// ASCII characters starting at '!', followed by CRLF.
const (
	chargenLineLength = 72
	chargenFirst      = '!'
	chargenCycle      = 94
)

// ChargenResult is the payload of a chargen probe.
type ChargenResult struct {
	// Bytes is the number of bytes collected.
	Bytes int `json:"bytes"`

	// Lines is the number of complete lines collected.
	Lines int `json:"lines"`
}

// ChargenScript returns a script collecting at most maxBytes of the
// character stream for window. Zero values select the defaults.
func ChargenScript(maxBytes int, window, timeout time.Duration) (framewire.Script, error) {
	if err := validateTimeout(timeout); err != nil {
		return framewire.Script{}, err
	}
	phase := mustPhase(TypeChargen, nil, timeout)
	spec := phase.Expect.(framewire.Bounded)
	if maxBytes > 0 {
		spec.MaxBytes = maxBytes
	}
	if window > 0 {
		spec.Window = window
	}
	phase.Expect = spec
	return framewire.Script{Phases: []framewire.Phase{phase}, Timeout: timeout}, nil
}

var chargenCodec = framewire.CodecFuncs{
	EncodeFunc: framewire.EncodeBytes,
	DecodeFunc: func(frame framewire.Frame) (framewire.Message, error) {
		if len(frame.Data) == 0 {
			return framewire.Message{}, emptyResponse("chargen")
		}
		msg := framewire.Message{
			Type: TypeChargen,
			Payload: ChargenResult{
				Bytes: len(frame.Data),
				Lines: bytes.Count(frame.Data, []byte("\r\n")),
			},
		}
		return msg, framewire.CheckIntegrity(&msg, "chargen pattern", ValidChargen, frame.Data)
	},
}

// ValidChargen reports whether data follows the rotating chargen pattern.
//
// Only complete lines are checked, since the collection window usually
// truncates the last one. Consecutive lines must start one character
// apart.
func ValidChargen(data []byte) bool {
	var prev []byte
	for {
		idx := bytes.Index(data, []byte("\r\n"))
		if idx < 0 {
			return true
		}
		line := data[:idx]
		data = data[idx+2:]
		if !validChargenLine(line) {
			return false
		}
		if prev != nil && line[0] != chargenNext(prev[0]) {
			return false
		}
		prev = line
	}
}

func validChargenLine(line []byte) bool {
	if len(line) != chargenLineLength {
		return false
	}
	for idx := 1; idx < len(line); idx++ {
		if line[idx] != chargenNext(line[idx-1]) {
			return false
		}
	}
	return line[0] >= chargenFirst && line[0] < chargenFirst+chargenCycle
}

func chargenNext(c byte) byte {
	return byte((int(c)-chargenFirst+1)%chargenCycle + chargenFirst)
}

// chargenLine returns the line starting at the given offset of the cycle.
func chargenLine(offset int) []byte {
	line := make([]byte, 0, chargenLineLength+2)
	for idx := range chargenLineLength {
		line = append(line, byte((idx+offset)%chargenCycle+chargenFirst))
	}
	return append(line, '\r', '\n')
}
