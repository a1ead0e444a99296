// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"errors"
	"time"
)

// ResultClass tells apart the ways an operation can end.
type ResultClass string

const (
	// ResultSuccess means every phase ran and advanced.
	ResultSuccess = ResultClass("success")

	// ResultApplication means the peer is reachable and speaks the
	// protocol but declined, challenged, or reported an error.
	ResultApplication = ResultClass("application")

	// ResultTransport means the target was unreachable, blocked, or the
	// connection failed or timed out.
	ResultTransport = ResultClass("transport")

	// ResultProtocol means the peer sent malformed, oversized or
	// unexpected bytes.
	ResultProtocol = ResultClass("protocol")
)

// ResultError is the serializable error detail of an [OperationResult].
type ResultError struct {
	Class   ErrorClass `json:"class"`
	Kind    ErrorKind  `json:"kind"`
	Message string     `json:"message"`
	Phase   int        `json:"phase,omitempty"`
}

// OperationResult is the terminal, immutable artifact of one operation.
//
// OK is true for [ResultSuccess] and [ResultApplication]: a peer refusal
// is a successful probe and must not be conflated with an unreachable
// peer. Err is set iff OK is false.
type OperationResult struct {
	OK          bool         `json:"ok"`
	Class       ResultClass  `json:"class"`
	Payload     any          `json:"payload,omitempty"`
	MessageType string       `json:"messageType,omitempty"`
	ElapsedMs   int64        `json:"elapsedMs"`
	Warnings    []string     `json:"warnings,omitempty"`
	PhaseIndex  int          `json:"phaseIndex,omitempty"`
	PhaseName   string       `json:"phaseName,omitempty"`
	Err         *ResultError `json:"error,omitempty"`
}

// NewOperationResult builds the [OperationResult] for the given outcome
// or error of an operation that took elapsed.
func NewOperationResult(outcome *Outcome, err error, elapsed time.Duration) OperationResult {
	result := OperationResult{ElapsedMs: elapsed.Milliseconds()}
	if err != nil {
		result.Class = resultClassOf(err)
		result.Err = &ResultError{Message: err.Error()}
		var e *Error
		if errors.As(err, &e) {
			result.Err.Class = e.Class
			result.Err.Kind = e.Kind
			result.Err.Phase = e.Phase
			result.PhaseIndex = e.Phase
		}
		return result
	}
	result.OK = true
	result.Class = ResultSuccess
	if outcome == nil {
		return result
	}
	if outcome.State == HandshakeApplicationOutcome {
		result.Class = ResultApplication
	}
	last := outcome.Last()
	result.Payload = last.Payload
	result.MessageType = last.Type
	result.Warnings = outcome.Warnings
	result.PhaseIndex = outcome.PhaseIndex
	result.PhaseName = outcome.PhaseName
	return result
}

func resultClassOf(err error) ResultClass {
	switch ClassOf(err) {
	case ClassDecode:
		return ResultProtocol
	case ClassRead:
		switch KindOf(err) {
		case KindTooManyChunks, KindResponseTooLarge:
			return ResultProtocol
		}
	}
	return ResultTransport
}
