// SPDX-License-Identifier: GPL-3.0-or-later

// Package simple probes the RFC simple TCP services: echo (RFC 862),
// discard (RFC 863), daytime (RFC 867), chargen (RFC 864), time (RFC 868)
// and finger (RFC 1288).
//
// Each service has a script builder returning a [framewire.Script] to run
// with [framewire.NewOperation]. The package also contains a [*Server]
// implementing the services, which is handy as a local peer.
package simple

import (
	"fmt"
	"strings"
	"time"

	"github.com/bassosimone/framewire"
)

// Well-known ports of the simple services.
const (
	EchoPort    = 7
	DiscardPort = 9
	DaytimePort = 13
	ChargenPort = 19
	TimePort    = 37
	FingerPort  = 79
)

// Message types reported by the codecs.
const (
	TypeEcho         = "echo"
	TypeDiscard      = "discard"
	TypeDaytime      = "daytime"
	TypeChargen      = "chargen"
	TypeTime         = "time"
	TypeUserInfo     = "userInfo"
	TypeUserList     = "userList"
	TypeUserNotFound = "userNotFound"
)

// DefaultWindow is how long discard and chargen keep reading.
const DefaultWindow = 2 * time.Second

// registry holds the default frame spec and codec of each service.
var registry framewire.Registry

func init() {
	registry.MustRegister(TypeDiscard, framewire.Bounded{MaxBytes: 4096, Window: DefaultWindow}, discardCodec)
	registry.MustRegister(TypeDaytime, framewire.ClosedByPeer{MaxBytes: 512}, daytimeCodec)
	registry.MustRegister(TypeChargen, framewire.Bounded{MaxBytes: 8192, Window: DefaultWindow}, chargenCodec)
	registry.MustRegister(TypeTime, framewire.FixedLength{N: 4}, newTimeCodec(time.Now))
	registry.MustRegister("finger", framewire.ClosedByPeer{MaxBytes: 64 << 10}, fingerCodec)
}

// Ports maps each service name to its well-known port.
var Ports = map[string]uint16{
	"chargen": ChargenPort,
	"daytime": DaytimePort,
	"discard": DiscardPort,
	"echo":    EchoPort,
	"finger":  FingerPort,
	"time":    TimePort,
}

// mustPhase returns the registered phase for name.
func mustPhase(name string, request any, timeout time.Duration) framewire.Phase {
	phase, err := registry.Phase(name, request, timeout)
	if err != nil {
		panic(err)
	}
	return phase
}

// isPrintableASCII reports whether data only contains printable ASCII,
// spaces, tabs and line terminators.
func isPrintableASCII(data []byte) bool {
	for _, b := range data {
		switch {
		case b == '\r', b == '\n', b == '\t':
		case b < 0x20, b > 0x7e:
			return false
		}
	}
	return true
}

func trimLine(data []byte) string {
	return strings.TrimRight(string(data), "\r\n")
}

func emptyResponse(service string) error {
	return framewire.NewDecodeError(framewire.KindMalformedHeader, "empty %s response", service)
}

func validateTimeout(timeout time.Duration) error {
	if timeout < 0 {
		return fmt.Errorf("simple: negative timeout %s", timeout)
	}
	return nil
}
