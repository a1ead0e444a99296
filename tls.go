// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// TLSEngine creates client [TLSConn] values.
type TLSEngine interface {
	// Client wraps conn into a client [TLSConn] that has not handshaked yet.
	Client(conn net.Conn, config *tls.Config) TLSConn

	// Name returns the engine name for logging.
	Name() string
}

// TLSEngineStdlib is the [TLSEngine] backed by [crypto/tls].
//
// The zero value is ready to use.
type TLSEngineStdlib struct{}

var _ TLSEngine = TLSEngineStdlib{}

// Client implements [TLSEngine].
func (TLSEngineStdlib) Client(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Client(conn, config)
}

// Name implements [TLSEngine].
func (TLSEngineStdlib) Name() string {
	return "stdlib"
}

// TLSConn is the subset of [*tls.Conn] used by a [*TLSHandshakeFunc].
type TLSConn interface {
	ConnectionState() tls.ConnectionState
	HandshakeContext(ctx context.Context) error
	net.Conn
}

// NewTLSHandshakeFunc returns a new [*TLSHandshakeFunc].
//
// The tlsConfig argument may be nil, meaning an empty configuration. It is
// cloned before each handshake. When its ServerName is empty, serverName
// is used instead.
func NewTLSHandshakeFunc(cfg *Config, tlsConfig *tls.Config, serverName string, logger SLogger) *TLSHandshakeFunc {
	return &TLSHandshakeFunc{
		Config:        tlsConfig,
		Engine:        TLSEngineStdlib{},
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		ServerName:    serverName,
		TimeNow:       cfg.TimeNow,
	}
}

// TLSHandshakeFunc upgrades a connected [net.Conn] to TLS.
//
// The handshake is bounded by the context deadline. Failures are
// [ClassConnect] errors of kind [KindTLSHandshakeFailure], [KindTimeout]
// or [KindCanceled], and conn is closed before returning.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type TLSHandshakeFunc struct {
	// Config is the base configuration; nil means an empty one.
	Config *tls.Config

	// Engine wraps the connection.
	//
	// Set by [NewTLSHandshakeFunc] to [TLSEngineStdlib].
	Engine TLSEngine

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// ServerName is the SNI and verification name used when Config
	// does not set one, typically the [Endpoint] host.
	ServerName string

	// TimeNow is the clock, also used for certificate validation.
	TimeNow func() time.Time
}

var _ Func[net.Conn, TLSConn] = &TLSHandshakeFunc{}

// Call handshakes over conn and returns the TLS connection.
func (op *TLSHandshakeFunc) Call(ctx context.Context, conn net.Conn) (TLSConn, error) {
	config := op.clientConfig()
	tconn := op.Engine.Client(conn, config)

	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.Logger.Info(
		"tlsHandshakeStart",
		slog.Time("deadline", deadline),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t", t0),
		slog.String("tlsEngineName", op.Engine.Name()),
		slog.Any("tlsOfferedProtocols", config.NextProtos),
		slog.String("tlsServerName", config.ServerName),
		slog.Bool("tlsSkipVerify", config.InsecureSkipVerify),
	)

	err := tconn.HandshakeContext(ctx)
	state := tconn.ConnectionState()

	op.Logger.Info(
		"tlsHandshakeDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
		slog.String("tlsCipherSuite", tls.CipherSuiteName(state.CipherSuite)),
		slog.Bool("tlsDidResume", state.DidResume),
		slog.String("tlsNegotiatedProtocol", state.NegotiatedProtocol),
		slog.String("tlsServerName", config.ServerName),
		slog.String("tlsVersion", tls.VersionName(state.Version)),
	)

	if err != nil {
		tconn.Close()
		return nil, classifyTLS(err)
	}
	return tconn, nil
}

func (op *TLSHandshakeFunc) clientConfig() *tls.Config {
	config := &tls.Config{}
	if op.Config != nil {
		config = op.Config.Clone()
	}
	if config.ServerName == "" {
		config.ServerName = op.ServerName
	}
	config.Time = op.TimeNow
	return config
}
