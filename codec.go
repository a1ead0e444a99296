// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"errors"
	"fmt"
)

// Message is a decoded [Frame].
type Message struct {
	// Type is the protocol-defined message type (e.g., "CONNECTED", "ERROR").
	Type string

	// Payload is the decoded, protocol-specific payload.
	Payload any

	// Warnings lists recoverable problems found while decoding.
	Warnings []string
}

// Codec encodes requests and decodes frames for one message type.
//
// Codecs are stateless and must not perform I/O. Decode reports structured
// failures using [NewDecodeError]. Returning a [KindIntegrityMismatch]
// error together with a non-empty [Message] marks the message as possibly
// corrupted without aborting the operation.
type Codec interface {
	Encode(request any) ([]byte, error)
	Decode(frame Frame) (Message, error)
}

// CodecFuncs adapts a pair of functions to the [Codec] interface.
//
// A nil EncodeFunc encodes every request as no bytes. A nil DecodeFunc
// decodes every frame as a [Message] with an empty Type whose Payload is
// the raw frame bytes.
type CodecFuncs struct {
	EncodeFunc func(request any) ([]byte, error)
	DecodeFunc func(frame Frame) (Message, error)
}

var _ Codec = CodecFuncs{}

// Encode implements [Codec].
func (c CodecFuncs) Encode(request any) ([]byte, error) {
	if c.EncodeFunc == nil {
		return nil, nil
	}
	return c.EncodeFunc(request)
}

// Decode implements [Codec].
func (c CodecFuncs) Decode(frame Frame) (Message, error) {
	if c.DecodeFunc == nil {
		return Message{Payload: frame.Data}, nil
	}
	return c.DecodeFunc(frame)
}

// EncodeBytes returns an EncodeFunc for requests that already are raw
// bytes or strings.
func EncodeBytes(request any) ([]byte, error) {
	switch v := request.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("framewire: cannot encode %T as bytes", request)
	}
}

// Validator checks the integrity of raw bytes (e.g., a checksum).
type Validator func(data []byte) bool

// CheckIntegrity runs validator on data and, on mismatch, appends a
// warning naming check to msg and returns a [KindIntegrityMismatch] error.
//
// Callers typically return both msg and the error from [Codec.Decode].
func CheckIntegrity(msg *Message, check string, validator Validator, data []byte) error {
	if validator(data) {
		return nil
	}
	msg.Warnings = append(msg.Warnings, fmt.Sprintf("%s mismatch: response may be corrupted", check))
	return NewDecodeError(KindIntegrityMismatch, "%s mismatch", check)
}

// recoverDecode splits a decode result into the message to keep, its
// warnings, and the error that must abort the operation, if any.
func recoverDecode(msg Message, err error) (Message, error) {
	var e *Error
	if err == nil || !errors.As(err, &e) || !e.Recoverable() {
		return msg, err
	}
	if len(msg.Warnings) == 0 {
		msg.Warnings = append(msg.Warnings, e.Error())
	}
	return msg, nil
}
