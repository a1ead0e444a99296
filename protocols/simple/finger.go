// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"fmt"
	"strings"
	"time"

	"github.com/bassosimone/framewire"
)

// FingerResult is the payload of a finger probe.
type FingerResult struct {
	// User is the queried user, empty when listing.
	User string `json:"user,omitempty"`

	// Text is the server answer without the trailing line terminator.
	Text string `json:"text"`
}

// FingerScript returns a script querying user, or listing the logged in
// users when user is empty. A "no such user" answer is an application
// outcome of type [TypeUserNotFound].
func FingerScript(user string, timeout time.Duration) (framewire.Script, error) {
	if strings.ContainsAny(user, "\r\n") {
		return framewire.Script{}, fmt.Errorf("simple: finger user contains a line terminator")
	}
	if err := validateTimeout(timeout); err != nil {
		return framewire.Script{}, err
	}
	phase := mustPhase("finger", user+"\r\n", timeout)
	phase.Codec = fingerQueryCodec{user: user}
	phase.Terminal = []string{TypeUserNotFound}
	return framewire.Script{Phases: []framewire.Phase{phase}, Timeout: timeout}, nil
}

var fingerCodec = fingerQueryCodec{}

type fingerQueryCodec struct {
	user string
}

func (c fingerQueryCodec) Encode(request any) ([]byte, error) {
	return framewire.EncodeBytes(request)
}

func (c fingerQueryCodec) Decode(frame framewire.Frame) (framewire.Message, error) {
	text := trimLine(frame.Data)
	if text == "" {
		return framewire.Message{}, emptyResponse("finger")
	}
	msg := framewire.Message{Payload: FingerResult{User: c.user, Text: text}}
	switch {
	case strings.Contains(strings.ToLower(text), "no such user"):
		msg.Type = TypeUserNotFound
	case c.user == "":
		msg.Type = TypeUserList
	default:
		msg.Type = TypeUserInfo
	}
	return msg, nil
}
