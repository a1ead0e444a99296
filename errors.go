// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrorClass is the stage at which an operation failed.
type ErrorClass string

const (
	// ClassConnect indicates that establishing the connection failed.
	ClassConnect = ErrorClass("connect")

	// ClassRead indicates that reading (or writing) a frame failed.
	ClassRead = ErrorClass("read")

	// ClassDecode indicates that the bytes did not decode as expected.
	ClassDecode = ErrorClass("decode")
)

// ErrorKind is the specific reason for a failure.
type ErrorKind string

// Kinds of [ClassConnect] errors.
const (
	KindTimeout             = ErrorKind("timeout")
	KindRefused             = ErrorKind("refused")
	KindDNSFailure          = ErrorKind("dnsFailure")
	KindTLSHandshakeFailure = ErrorKind("tlsHandshakeFailure")
	KindBlockedTarget       = ErrorKind("blockedTarget")
	KindConnectFailed       = ErrorKind("connectFailed")
)

// Kinds of [ClassRead] errors. [KindTimeout] is shared with [ClassConnect].
const (
	KindConnectionClosedEarly = ErrorKind("connectionClosedEarly")
	KindTooManyChunks         = ErrorKind("tooManyChunks")
	KindResponseTooLarge      = ErrorKind("responseTooLarge")
	KindWriteFailed           = ErrorKind("writeFailed")
	KindReadFailed            = ErrorKind("readFailed")
	KindCanceled              = ErrorKind("canceled")
)

// Kinds of [ClassDecode] errors.
//
// [KindIntegrityMismatch] is recoverable: the decoded message is still
// returned and the mismatch becomes a warning.
const (
	KindMalformedHeader      = ErrorKind("malformedHeader")
	KindUnexpectedFrameType  = ErrorKind("unexpectedFrameType")
	KindIntegrityMismatch    = ErrorKind("integrityMismatch")
	KindIncompleteMultiPhase = ErrorKind("incompleteMultiPhase")
	KindEncodeFailed         = ErrorKind("encodeFailed")
)

// Error is the error type returned by this package.
type Error struct {
	// Class is the failing stage.
	Class ErrorClass

	// Kind is the failure reason.
	Kind ErrorKind

	// Phase is the 1-based handshake phase index or zero.
	Phase int

	// Err is the underlying cause, possibly nil.
	Err error
}

var _ error = &Error{}

// Error implements error.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("%s: %s", e.Class, e.Kind)
	if e.Phase > 0 {
		prefix = fmt.Sprintf("%s (phase %d)", prefix, e.Phase)
	}
	if e.Err == nil {
		return prefix
	}
	return prefix + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable returns whether the operation can continue despite the error.
func (e *Error) Recoverable() bool {
	return e.Kind == KindIntegrityMismatch
}

func newError(class ErrorClass, kind ErrorKind, err error) *Error {
	return &Error{Class: class, Kind: kind, Err: err}
}

// NewDecodeError returns a [ClassDecode] [*Error].
//
// Protocol codecs use this to report structured decode failures.
func NewDecodeError(kind ErrorKind, format string, args ...any) *Error {
	return newError(ClassDecode, kind, fmt.Errorf(format, args...))
}

// KindOf returns the [ErrorKind] of err or "" if err is not an [*Error].
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ClassOf returns the [ErrorClass] of err or "" if err is not an [*Error].
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// withPhase stamps the phase index on a copy of err when it is an [*Error]
// and wraps other errors as read failures.
func withPhase(err error, phase int) error {
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Class: ClassRead, Kind: KindReadFailed, Phase: phase, Err: err}
	}
	out := *e
	out.Phase = phase
	return &out
}

// classifyDial maps a dial error to a [ClassConnect] [*Error].
func classifyDial(ctx context.Context, err error) *Error {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return newError(ClassConnect, KindTimeout, err)
		}
		return newError(ClassConnect, KindDNSFailure, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return newError(ClassConnect, KindRefused, err)
	case errors.Is(err, context.Canceled):
		return newError(ClassConnect, KindCanceled, err)
	case isTimeout(err), ctx.Err() != nil:
		return newError(ClassConnect, KindTimeout, err)
	default:
		return newError(ClassConnect, KindConnectFailed, err)
	}
}

// classifyTLS maps a TLS handshake error to a [ClassConnect] [*Error].
func classifyTLS(err error) *Error {
	if isTimeout(err) {
		return newError(ClassConnect, KindTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(ClassConnect, KindCanceled, err)
	}
	return newError(ClassConnect, KindTLSHandshakeFailure, err)
}

// classifyIO maps a chunk read or write error to a [ClassRead] [*Error].
func classifyIO(ctx context.Context, kind ErrorKind, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return newError(ClassRead, KindCanceled, err)
	case isTimeout(err), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newError(ClassRead, KindTimeout, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return newError(ClassRead, KindConnectionClosedEarly, err)
	default:
		return newError(ClassRead, kind, err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

