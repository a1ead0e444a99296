// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bassosimone/runtimex"
)

// HandshakeState is a state of the phase state machine.
type HandshakeState string

const (
	HandshakeConnecting         = HandshakeState("connecting")
	HandshakeAwaitingPhase      = HandshakeState("awaitingPhase")
	HandshakeDecoding           = HandshakeState("decoding")
	HandshakeAdvancing          = HandshakeState("advancing")
	HandshakeApplicationOutcome = HandshakeState("applicationOutcome")
	HandshakeComplete           = HandshakeState("complete")
	HandshakeFailed             = HandshakeState("failed")
)

// Phase is one request/response step of a handshake script.
type Phase struct {
	// Name identifies the phase in logs and results.
	Name string

	// Request is encoded with Codec and written before reading. A nil
	// Request sends nothing, for protocols where the server speaks first.
	Request any

	// Codec encodes Request and decodes the response frame.
	Codec Codec

	// Expect describes when the response frame is complete.
	Expect FrameSpec

	// Timeout is the phase sub-deadline duration. Zero inherits the
	// overall deadline. See [DeadlinePolicy] for how it combines with it.
	Timeout time.Duration

	// Advance lists the message types that move to the next phase. An
	// empty list means every non-terminal message type advances.
	Advance []string

	// Terminal lists the message types that stop the script with an
	// application outcome (a refusal, challenge or error from the peer).
	// Terminal takes precedence over Advance.
	Terminal []string

	// OnTimeout is the [ErrorKind] reported when the phase times out.
	// Empty means [KindTimeout].
	OnTimeout ErrorKind
}

// Script is an ordered sequence of phases.
type Script struct {
	// Phases runs in order over a single connection, strictly
	// request-then-response, without pipelining.
	Phases []Phase

	// Policy controls how phase deadlines relate to the overall one.
	//
	// The default [IndependentPerPhase] policy lets the phase timeouts add
	// up past Timeout; choose [SharedRemainingBudget] to cap every phase by
	// the time left overall.
	Policy DeadlinePolicy

	// Timeout is the overall duration. Zero relies on the context deadline.
	Timeout time.Duration
}

// Outcome is the result of running a [Script] to a non-failed state.
type Outcome struct {
	// State is [HandshakeComplete] or [HandshakeApplicationOutcome].
	State HandshakeState

	// PhaseIndex is the 1-based index of the last phase reached.
	PhaseIndex int

	// PhaseName is the name of the last phase reached.
	PhaseName string

	// Messages contains the decoded message of every phase reached.
	Messages []Message

	// Warnings collects the recoverable problems of all phases.
	Warnings []string
}

// Last returns the message of the last phase reached or the zero [Message].
func (o *Outcome) Last() Message {
	if len(o.Messages) == 0 {
		return Message{}
	}
	return o.Messages[len(o.Messages)-1]
}

// NewHandshakeFunc returns a new [*HandshakeFunc] running script.
//
// The cfg argument contains the common configuration for framewire operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewHandshakeFunc(cfg *Config, script Script, logger SLogger) *HandshakeFunc {
	return &HandshakeFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Script:        script,
		TimeNow:       cfg.TimeNow,
	}
}

// HandshakeFunc drives a [Script] over a [*Conn].
//
// For each phase it writes the encoded request, reads the response frame
// under the phase deadline, and decodes it. A terminal message type stops
// with [HandshakeApplicationOutcome]: this is not an error, it proves the
// peer is live and speaks the protocol. An advance type moves on. Any other
// type fails with [KindUnexpectedFrameType].
//
// On error, the connection is closed before returning. On success, the
// connection stays open and belongs to the caller.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type HandshakeFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewHandshakeFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewHandshakeFunc] to the user-provided logger.
	Logger SLogger

	// Script is the handshake to run.
	//
	// Set by [NewHandshakeFunc] to the user-provided script.
	Script Script

	// TimeNow is the function to get the current time.
	//
	// Set by [NewHandshakeFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[*Conn, *Outcome] = &HandshakeFunc{}

// Call runs the script over conn.
func (op *HandshakeFunc) Call(ctx context.Context, conn *Conn) (*Outcome, error) {
	outcome, err := op.run(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return outcome, nil
}

func (op *HandshakeFunc) run(ctx context.Context, conn *Conn) (*Outcome, error) {
	overall := op.overallDeadline(ctx)
	outcome := &Outcome{State: HandshakeComplete}
	for idx, phase := range op.Script.Phases {
		index := idx + 1
		t0 := op.TimeNow()
		deadline := PhaseDeadline(op.Script.Policy, t0, phase.Timeout, overall)
		op.logPhaseStart(conn, index, phase, t0, deadline)

		msg, state, err := op.runPhase(ctx, conn, index, phase, deadline)
		op.logPhaseDone(conn, index, phase, t0, deadline, msg, state, err)
		if err != nil {
			return nil, err
		}

		outcome.PhaseIndex = index
		outcome.PhaseName = phase.Name
		outcome.Messages = append(outcome.Messages, msg)
		for _, warning := range msg.Warnings {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("phase %d (%s): %s", index, phase.Name, warning))
		}
		if state == HandshakeApplicationOutcome {
			outcome.State = HandshakeApplicationOutcome
			return outcome, nil
		}
	}
	return outcome, nil
}

func (op *HandshakeFunc) overallDeadline(ctx context.Context) Deadline {
	var overall Deadline
	if t, ok := ctx.Deadline(); ok {
		overall = DeadlineAt(t)
	}
	if op.Script.Timeout > 0 {
		overall = overall.Earlier(NewDeadline(op.TimeNow(), op.Script.Timeout))
	}
	return overall
}

// runPhase returns the decoded message and the state the phase leads to.
func (op *HandshakeFunc) runPhase(
	ctx context.Context, conn *Conn, index int, phase Phase, deadline Deadline) (Message, HandshakeState, error) {
	runtimex.Assert(phase.Codec != nil && phase.Expect != nil)

	// 1. send the request, if any
	if phase.Request != nil {
		data, err := phase.Codec.Encode(phase.Request)
		if err != nil {
			return Message{}, HandshakeFailed, &Error{
				Class: ClassDecode, Kind: KindEncodeFailed, Phase: index, Err: err}
		}
		if err := conn.Write(ctx, data, deadline); err != nil {
			return Message{}, HandshakeFailed, op.phaseError(err, index, phase)
		}
	}

	// 2. read the response frame
	frame, err := conn.ReadFrame(ctx, phase.Expect, deadline)
	if err != nil {
		return Message{}, HandshakeFailed, op.phaseError(err, index, phase)
	}

	// 3. decode, keeping recoverable integrity problems as warnings
	msg, err := recoverDecode(phase.Codec.Decode(frame))
	if err != nil {
		return Message{}, HandshakeFailed, withPhase(err, index)
	}
	for _, warning := range msg.Warnings {
		op.Logger.Warn(
			"integrityWarning",
			slog.Int("phaseIndex", index),
			slog.String("phaseName", phase.Name),
			slog.String("messageType", msg.Type),
			slog.String("warning", warning),
			slog.Time("t", op.TimeNow()),
		)
	}

	// 4. classify: terminal wins over advance
	switch {
	case slices.Contains(phase.Terminal, msg.Type):
		return msg, HandshakeApplicationOutcome, nil
	case len(phase.Advance) == 0, slices.Contains(phase.Advance, msg.Type):
		return msg, HandshakeAdvancing, nil
	default:
		return msg, HandshakeFailed, &Error{
			Class: ClassDecode,
			Kind:  KindUnexpectedFrameType,
			Phase: index,
			Err:   fmt.Errorf("got %q, want one of %q", msg.Type, phase.Advance),
		}
	}
}

// phaseError maps an I/O error of a phase to the error to report.
func (op *HandshakeFunc) phaseError(err error, index int, phase Phase) error {
	var e *Error
	if !errors.As(err, &e) {
		return withPhase(err, index)
	}
	switch {
	case e.Kind == KindTimeout && phase.OnTimeout != "":
		return &Error{Class: e.Class, Kind: phase.OnTimeout, Phase: index, Err: err}
	case e.Kind == KindConnectionClosedEarly && index > 1:
		return &Error{Class: ClassDecode, Kind: KindIncompleteMultiPhase, Phase: index, Err: err}
	default:
		return withPhase(err, index)
	}
}

func (op *HandshakeFunc) logPhaseStart(conn *Conn, index int, phase Phase, t0 time.Time, deadline Deadline) {
	op.Logger.Info(
		"phaseStart",
		slog.Time("deadline", deadline.Time()),
		slog.String("frameKind", frameKindOf(phase.Expect)),
		slog.String("handshakeState", string(HandshakeAwaitingPhase)),
		slog.String("localAddr", conn.laddr),
		slog.Int("phaseIndex", index),
		slog.String("phaseName", phase.Name),
		slog.String("policy", op.Script.Policy.String()),
		slog.String("protocol", conn.protocol),
		slog.String("remoteAddr", conn.raddr),
		slog.Time("t", t0),
	)
}

func (op *HandshakeFunc) logPhaseDone(conn *Conn, index int, phase Phase,
	t0 time.Time, deadline Deadline, msg Message, state HandshakeState, err error) {
	op.Logger.Info(
		"phaseDone",
		slog.Time("deadline", deadline.Time()),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("handshakeState", string(state)),
		slog.String("localAddr", conn.laddr),
		slog.String("messageType", msg.Type),
		slog.Int("phaseIndex", index),
		slog.String("phaseName", phase.Name),
		slog.String("protocol", conn.protocol),
		slog.String("remoteAddr", conn.raddr),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}

func frameKindOf(spec FrameSpec) string {
	if spec == nil {
		return ""
	}
	return string(spec.Kind())
}
