// SPDX-License-Identifier: GPL-3.0-or-later

// Package stomp probes STOMP 1.2 brokers.
//
// The probe connects, then optionally subscribes to a destination asking
// for a receipt. An ERROR frame in either phase is an application
// outcome: the broker is live and refused the request (e.g., because the
// credentials are wrong).
//
// Frames are NUL-terminated. Bodies containing NUL bytes, which require
// the content-length header, are not supported.
package stomp

import (
	"fmt"
	"strings"
	"time"

	"github.com/bassosimone/framewire"
)

// DefaultPort is the customary STOMP port.
const DefaultPort = 61613

// Commands used by the probe.
const (
	CommandConnect   = "CONNECT"
	CommandConnected = "CONNECTED"
	CommandSubscribe = "SUBSCRIBE"
	CommandReceipt   = "RECEIPT"
	CommandError     = "ERROR"
)

// Version is the protocol version the probe negotiates.
const Version = "1.2"

// FrameSpec describes a STOMP frame on the wire.
var FrameSpec = framewire.DelimiterTerminated{Delimiter: []byte{0}, StripDelimiter: true}

// Options configures a STOMP probe.
type Options struct {
	// Host is the virtual host. It is mandatory in STOMP 1.2.
	Host string

	// Login and Passcode are the optional credentials.
	Login    string
	Passcode string

	// Headers are extra CONNECT headers. Headers clashing with the
	// mandatory ones are dropped and reported as warnings.
	Headers []framewire.Field

	// Destination, when set, adds a SUBSCRIBE phase.
	Destination string

	// ReceiptID is the receipt requested when subscribing. Empty
	// selects a random one.
	ReceiptID string

	// Timeout bounds the whole probe and each phase.
	Timeout time.Duration
}

// Script returns the probe script for opts.
//
// The rnd argument provides the random receipt ID when needed.
func Script(opts Options, rnd *framewire.WeakRandom) (framewire.Script, error) {
	if opts.Host == "" {
		return framewire.Script{}, fmt.Errorf("stomp: empty virtual host")
	}
	values := []string{opts.Host, opts.Login, opts.Passcode}
	for _, field := range opts.Headers {
		values = append(values, field.Key, field.Value)
	}
	for _, value := range values {
		if strings.ContainsAny(value, "\r\n") {
			return framewire.Script{}, fmt.Errorf("stomp: CONNECT header %q contains a line terminator", value)
		}
	}

	mandatory := []framewire.Field{
		{Key: "accept-version", Value: Version},
		{Key: "host", Value: opts.Host},
		{Key: "heart-beat", Value: "0,0"},
	}
	if opts.Login != "" {
		mandatory = append(mandatory, framewire.Field{Key: "login", Value: opts.Login})
	}
	if opts.Passcode != "" {
		mandatory = append(mandatory, framewire.Field{Key: "passcode", Value: opts.Passcode})
	}
	headers, dropped := framewire.MergeFields(mandatory, opts.Headers, framewire.ProtectMandatory)

	script := framewire.Script{Timeout: opts.Timeout}
	script.Phases = append(script.Phases, framewire.Phase{
		Name:     "connect",
		Request:  Frame{Command: CommandConnect, Headers: headers},
		Codec:    connectCodec{dropped: dropped},
		Expect:   FrameSpec,
		Timeout:  opts.Timeout,
		Advance:  []string{CommandConnected},
		Terminal: []string{CommandError},
	})
	if opts.Destination == "" {
		return script, nil
	}

	receipt := opts.ReceiptID
	if receipt == "" {
		receipt = "probe-" + string(rnd.Nonce(8))
	}
	script.Phases = append(script.Phases, framewire.Phase{
		Name: "subscribe",
		Request: Frame{Command: CommandSubscribe, Headers: []framewire.Field{
			{Key: "id", Value: "0"},
			{Key: "destination", Value: opts.Destination},
			{Key: "ack", Value: "auto"},
			{Key: "receipt", Value: receipt},
		}},
		Codec:    receiptCodec{receipt: receipt},
		Expect:   FrameSpec,
		Timeout:  opts.Timeout,
		Advance:  []string{CommandReceipt},
		Terminal: []string{CommandError},
	})
	return script, nil
}

func encodeFrame(request any) ([]byte, error) {
	frame, ok := request.(Frame)
	if !ok {
		return nil, fmt.Errorf("stomp: cannot encode %T", request)
	}
	return frame.Marshal(), nil
}

func decodeFrame(data []byte) (framewire.Message, Frame, error) {
	frame, err := ParseFrame(data)
	if err != nil {
		return framewire.Message{}, Frame{}, err
	}
	return framewire.Message{Type: frame.Command, Payload: frame}, frame, nil
}

type connectCodec struct {
	dropped []string
}

func (c connectCodec) Encode(request any) ([]byte, error) {
	return encodeFrame(request)
}

func (c connectCodec) Decode(data framewire.Frame) (framewire.Message, error) {
	msg, frame, err := decodeFrame(data.Data)
	if err != nil {
		return msg, err
	}
	for _, key := range c.dropped {
		msg.Warnings = append(msg.Warnings, fmt.Sprintf("dropped header %q clashing with a mandatory header", key))
	}
	if frame.Command == CommandConnected {
		if version, _ := frame.Header("version"); version != Version {
			msg.Warnings = append(msg.Warnings, fmt.Sprintf("broker negotiated version %q", version))
		}
	}
	return msg, nil
}

type receiptCodec struct {
	receipt string
}

func (c receiptCodec) Encode(request any) ([]byte, error) {
	return encodeFrame(request)
}

func (c receiptCodec) Decode(data framewire.Frame) (framewire.Message, error) {
	msg, frame, err := decodeFrame(data.Data)
	if err != nil || frame.Command != CommandReceipt {
		return msg, err
	}
	matches := func([]byte) bool {
		id, _ := frame.Header("receipt-id")
		return id == c.receipt
	}
	return msg, framewire.CheckIntegrity(&msg, "receipt-id", matches, data.Data)
}
