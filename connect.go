//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package framewire

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making [*ConnectFunc] depend on an abstract implementation we
// allow for unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewConnectFunc returns a new [*ConnectFunc].
//
// The cfg argument contains the common configuration for framewire operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewConnectFunc(cfg *Config, logger SLogger) *ConnectFunc {
	return &ConnectFunc{
		BlockedTargets: cfg.BlockedTargets,
		Dialer:         cfg.Dialer,
		ErrClassifier:  cfg.ErrClassifier,
		Logger:         logger,
		Network:        "tcp",
		TimeNow:        cfg.TimeNow,
	}
}

// ConnectFunc dials an [Endpoint].
//
// Before dialing, it asks BlockedTargets about the host. A blocked host
// fails with [KindBlockedTarget] and no socket is created. Dial errors are
// [ClassConnect] errors of kind [KindTimeout], [KindRefused],
// [KindDNSFailure], [KindCanceled] or [KindConnectFailed]. There are no
// retries: the dial is bounded by the context deadline.
//
// Returns either a valid [net.Conn] or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ConnectFunc struct {
	// BlockedTargets is consulted before dialing.
	//
	// Set by [NewConnectFunc] from [Config.BlockedTargets].
	BlockedTargets BlockedTargetChecker

	// Dialer is the [Dialer] to use.
	//
	// Set by [NewConnectFunc] from [Config.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConnectFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewConnectFunc] to the user-provided logger.
	Logger SLogger

	// Network is the stream network to use ("tcp", "tcp4" or "tcp6").
	//
	// Set by [NewConnectFunc] to "tcp".
	Network string

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewConnectFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Endpoint, net.Conn] = &ConnectFunc{}

// Call invokes the [*ConnectFunc] to connect to the given [Endpoint].
func (op *ConnectFunc) Call(ctx context.Context, endpoint Endpoint) (net.Conn, error) {
	address := endpoint.String()
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logConnectStart(address, t0, deadline)
	conn, err := op.connect(ctx, endpoint, address)
	op.logConnectDone(address, t0, deadline, conn, err)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (op *ConnectFunc) connect(ctx context.Context, endpoint Endpoint, address string) (net.Conn, error) {
	if owner, blocked := op.BlockedTargets.IsBlockedTarget(ctx, endpoint.Host); blocked {
		return nil, newError(ClassConnect, KindBlockedTarget,
			fmt.Errorf("%s belongs to %s", endpoint.Host, owner))
	}
	conn, err := op.Dialer.DialContext(ctx, op.Network, address)
	if err != nil {
		return nil, classifyDial(ctx, err)
	}
	return conn, nil
}

func (op *ConnectFunc) logConnectStart(address string, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", op.Network),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)
}

func (op *ConnectFunc) logConnectDone(
	address string, t0 time.Time, deadline time.Time, conn net.Conn, err error) {
	op.Logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("errKind", string(KindOf(err))),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", op.Network),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
