// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"crypto/tls"
	"net"
)

// DialOptions selects the transport of a [*DialFunc].
type DialOptions struct {
	// TLS enables a TLS handshake after connecting.
	TLS bool

	// TLSConfig is the TLS configuration to use when TLS is true. A nil
	// value uses an empty configuration. An empty ServerName is replaced
	// by the endpoint host.
	TLSConfig *tls.Config
}

// NewDialFunc returns a new [*DialFunc].
//
// The cfg argument contains the common configuration for framewire operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewDialFunc(cfg *Config, opts DialOptions, logger SLogger) *DialFunc {
	return &DialFunc{
		Config:    cfg,
		Connect:   NewConnectFunc(cfg, logger),
		Logger:    logger,
		Options:   opts,
		TLSEngine: TLSEngineStdlib{},
	}
}

// DialFunc is the transport connector: it connects to an [Endpoint],
// optionally handshakes TLS, and wraps the result into an open [*Conn].
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type DialFunc struct {
	// Config provides the buffer caps, chunk size and clock of the [*Conn].
	//
	// Set by [NewDialFunc] to the user-provided config.
	Config *Config

	// Connect dials the endpoint.
	//
	// Set by [NewDialFunc] using [NewConnectFunc].
	Connect *ConnectFunc

	// Logger is the [SLogger] to use.
	//
	// Set by [NewDialFunc] to the user-provided logger.
	Logger SLogger

	// Options selects plain TCP or TLS.
	//
	// Set by [NewDialFunc] to the user-provided options.
	Options DialOptions

	// TLSEngine is the [TLSEngine] used when Options.TLS is true.
	//
	// Set by [NewDialFunc] to [TLSEngineStdlib].
	TLSEngine TLSEngine
}

var _ Func[Endpoint, *Conn] = &DialFunc{}

// Call connects to endpoint and returns an open [*Conn] or an error.
func (op *DialFunc) Call(ctx context.Context, endpoint Endpoint) (*Conn, error) {
	conn, err := op.Connect.Call(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if !op.Options.TLS {
		return NewConn(op.Config, conn, op.Logger), nil
	}
	tconn, err := op.handshake(ctx, endpoint, conn)
	if err != nil {
		return nil, err
	}
	return NewConn(op.Config, tconn, op.Logger), nil
}

func (op *DialFunc) handshake(ctx context.Context, endpoint Endpoint, conn net.Conn) (net.Conn, error) {
	fn := NewTLSHandshakeFunc(op.Config, op.Options.TLSConfig, endpoint.Host, op.Logger)
	fn.Engine = op.TLSEngine
	return fn.Call(ctx, conn)
}
