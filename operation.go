// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"log/slog"
	"time"
)

// NewOperation returns a new [*Operation] running script against endpoint.
//
// The cfg argument contains the common configuration for framewire operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewOperation(cfg *Config, endpoint Endpoint, opts DialOptions, script Script, logger SLogger) *Operation {
	return &Operation{
		ConnectTimeout: script.Timeout,
		Dial:           NewDialFunc(cfg, opts, logger),
		Endpoint:       endpoint,
		ErrClassifier:  cfg.ErrClassifier,
		Handshake:      NewHandshakeFunc(cfg, script, logger),
		Logger:         logger,
		TimeNow:        cfg.TimeNow,
	}
}

// Operation is one logical protocol operation: connect, run every phase
// of a handshake script over the connection, and tear it down.
//
// The connection is released on every exit path, including cancellation
// of ctx while a read is in flight.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type Operation struct {
	// ConnectTimeout bounds the dial (and TLS handshake). Zero relies
	// on the context deadline.
	//
	// Set by [NewOperation] to the script overall timeout.
	ConnectTimeout time.Duration

	// Dial connects to Endpoint.
	//
	// Set by [NewOperation] using [NewDialFunc].
	Dial Func[Endpoint, *Conn]

	// Endpoint is the target.
	//
	// Set by [NewOperation] to the user-provided endpoint.
	Endpoint Endpoint

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewOperation] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Handshake runs the script over the connection.
	//
	// Set by [NewOperation] using [NewHandshakeFunc].
	Handshake Func[*Conn, *Outcome]

	// Logger is the [SLogger] to use.
	//
	// Set by [NewOperation] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time.
	//
	// Set by [NewOperation] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Unit, *Outcome] = &Operation{}

// Call runs the operation.
func (op *Operation) Call(ctx context.Context, _ Unit) (*Outcome, error) {
	spanID := NewSpanID()
	t0 := op.TimeNow()
	op.Logger.Info(
		"operationStart",
		slog.String("endpoint", op.Endpoint.String()),
		slog.String("handshakeState", string(HandshakeConnecting)),
		slog.String("spanID", spanID),
		slog.Time("t", t0),
	)
	outcome, err := op.run(ctx)
	op.Logger.Info(
		"operationDone",
		slog.String("endpoint", op.Endpoint.String()),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("errKind", string(KindOf(err))),
		slog.String("handshakeState", string(outcomeState(outcome, err))),
		slog.String("spanID", spanID),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
	return outcome, err
}

func (op *Operation) run(ctx context.Context) (*Outcome, error) {
	conn, err := op.dial(ctx)
	if err != nil {
		return nil, err
	}
	conn.Guard().Watch(ctx)
	defer conn.Close()
	return op.Handshake.Call(ctx, conn)
}

func (op *Operation) dial(ctx context.Context) (*Conn, error) {
	if op.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, op.ConnectTimeout)
		defer cancel()
	}
	return op.Dial.Call(ctx, op.Endpoint)
}

// Run calls op and converts its outcome into an [OperationResult].
func Run(ctx context.Context, op Func[Unit, *Outcome], timeNow func() time.Time) OperationResult {
	t0 := timeNow()
	outcome, err := op.Call(ctx, Unit{})
	return NewOperationResult(outcome, err, timeNow().Sub(t0))
}

func outcomeState(outcome *Outcome, err error) HandshakeState {
	if err != nil || outcome == nil {
		return HandshakeFailed
	}
	return outcome.State
}
