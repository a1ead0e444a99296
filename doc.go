// SPDX-License-Identifier: GPL-3.0-or-later

// Package framewire is a framed request/response engine for probing
// stream protocols over TCP and TLS.
//
// The engine knows nothing about any single protocol. Protocol modules
// describe their wire format as data ([FrameSpec] values) and pure
// [Codec] functions, and the engine drives them through a [Script] of
// handshake phases over one connection.
//
// # Core Abstraction
//
// Like every stage of the package, an operation is a [Func]:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Stages compose with [Compose2] and [Compose3]. [Apply] binds an input,
// producing the Func[Unit, B] branches that [JoinAll] runs concurrently.
//
// # Available Primitives
//
// Transport:
//   - [ConnectFunc]: consults the [BlockedTargetChecker], then dials TCP
//   - [TLSHandshakeFunc]: performs a TLS handshake over a connection
//   - [DialFunc]: connect plus optional TLS, returning an open [*Conn]
//
// Framing:
//   - [*Conn.ReadExact]: exactly n bytes, surplus retained in the [*ReadBuffer]
//   - [*Conn.ReadFrame]: one [Frame] per [FixedLength], [LengthPrefixed],
//     [DelimiterTerminated], [ClosedByPeer] or [Bounded] spec
//   - [Registry]: message-type names mapped to spec and codec
//
// Orchestration:
//   - [HandshakeFunc]: the phase state machine over a [*Conn]
//   - [Operation]: dial, handshake, and release of one connection
//   - [JoinFunc] and [JoinAll]: concurrent fan-out with partial success
//
// # Connection Lifecycle
//
// A [*Conn] is owned by the goroutine driving its operation. Its [*Guard]
// closes the underlying handle exactly once no matter how many exit paths
// ask for it: completion, any error, a deadline firing during a read, or
// cancellation of the context armed with [*Guard.Watch].
//
// # Deadlines
//
// Every read and write takes a [Deadline]. The deadline is installed on
// the socket and a context watch forces an immediate deadline when the
// context is done, so a blocked read returns [KindTimeout] or
// [KindCanceled] at once. Phase deadlines derive from the overall one
// according to a [DeadlinePolicy].
//
// # Errors
//
// Failures are [*Error] values carrying an [ErrorClass] (connect, read,
// decode), an [ErrorKind] and the 1-based phase index. A peer refusal is
// not an error: it ends the script with [HandshakeApplicationOutcome].
// [NewOperationResult] maps both into the serializable [OperationResult].
//
// # Observability
//
// All primitives log through [SLogger] (compatible with [log/slog]) and
// are silent by default. Span events come in *Start/*Done pairs with the
// common fields localAddr, remoteAddr, protocol, t, and, on completion,
// t0, err and errClass. Chunk reads and writes use [slog.LevelDebug],
// integrity warnings [slog.LevelWarn], everything else [slog.LevelInfo].
// Each [*Operation] tags its events with a span ID from [NewSpanID].
package framewire
