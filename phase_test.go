// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A terminal response in phase 2 stops the script with an application
// outcome at phase index 2 and phase 3 is never attempted.
func TestHandshakeFuncTerminalStopsScript(t *testing.T) {
	sc := newScriptedConn([]byte("OK hello\n"), []byte("DENIED go away\n"), []byte("OK never\n"))
	conn := NewConn(NewConfig(), sc, DefaultSLogger())
	script := Script{Phases: []Phase{
		linePhase("hello", "HELLO\n", []string{"OK"}, nil),
		linePhase("auth", "AUTH x\n", []string{"OK"}, []string{"DENIED"}),
		linePhase("data", "DATA\n", []string{"OK"}, nil),
	}}

	outcome, err := NewHandshakeFunc(NewConfig(), script, DefaultSLogger()).Call(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, HandshakeApplicationOutcome, outcome.State)
	assert.Equal(t, 2, outcome.PhaseIndex)
	assert.Equal(t, "auth", outcome.PhaseName)
	assert.Equal(t, "DENIED", outcome.Last().Type)
	assert.Equal(t, "go away", outcome.Last().Payload)
	assert.Len(t, outcome.Messages, 2)
	assert.Equal(t, "HELLO\nAUTH x\n", string(sc.written))
	assert.Equal(t, 2, sc.reads)
	assert.Equal(t, StateOpen, conn.State())
}

// Every phase advancing completes the script.
func TestHandshakeFuncComplete(t *testing.T) {
	sc := newScriptedConn([]byte("OK a\nOK b\n"))
	conn := NewConn(NewConfig(), sc, DefaultSLogger())
	script := Script{Phases: []Phase{
		linePhase("first", "1\n", []string{"OK"}, nil),
		linePhase("second", "2\n", nil, nil),
	}}

	outcome, err := NewHandshakeFunc(NewConfig(), script, DefaultSLogger()).Call(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, HandshakeComplete, outcome.State)
	assert.Equal(t, 2, outcome.PhaseIndex)
	assert.Equal(t, "b", outcome.Last().Payload)
	assert.Equal(t, 1, sc.reads)
}

// A type listed both as advance and terminal is terminal.
func TestHandshakeFuncTerminalWinsTie(t *testing.T) {
	conn := NewConn(NewConfig(), newScriptedConn([]byte("MAYBE\n")), DefaultSLogger())
	script := Script{Phases: []Phase{
		linePhase("only", "", []string{"MAYBE"}, []string{"MAYBE"}),
		linePhase("never", "", nil, nil),
	}}

	outcome, err := NewHandshakeFunc(NewConfig(), script, DefaultSLogger()).Call(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, HandshakeApplicationOutcome, outcome.State)
	assert.Equal(t, 1, outcome.PhaseIndex)
}

// A phase without request sends nothing and reads the peer greeting.
func TestHandshakeFuncServerSpeaksFirst(t *testing.T) {
	sc := newScriptedConn([]byte("220 ready\n"))
	conn := NewConn(NewConfig(), sc, DefaultSLogger())
	script := Script{Phases: []Phase{linePhase("greeting", "", []string{"220"}, nil)}}

	outcome, err := NewHandshakeFunc(NewConfig(), script, DefaultSLogger()).Call(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, "220", outcome.Last().Type)
	assert.Empty(t, sc.written)
}

// Call maps failures to errors carrying the phase index and closes the
// connection before returning.
func TestHandshakeFuncErrors(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// chunks is what the peer sends.
		chunks [][]byte

		// phases is the script to run.
		phases []Phase

		// wantClass is the expected error class.
		wantClass ErrorClass

		// wantKind is the expected error kind.
		wantKind ErrorKind

		// wantPhase is the expected phase index.
		wantPhase int
	}{
		{
			name:   "unexpected frame type",
			chunks: [][]byte{[]byte("WHAT\n")},
			phases: []Phase{
				linePhase("hello", "HELLO\n", []string{"OK"}, []string{"NO"}),
			},
			wantClass: ClassDecode,
			wantKind:  KindUnexpectedFrameType,
			wantPhase: 1,
		},
		{
			name:   "peer closes during phase 1",
			chunks: [][]byte{[]byte("OK")},
			phases: []Phase{
				linePhase("hello", "HELLO\n", []string{"OK"}, nil),
			},
			wantClass: ClassRead,
			wantKind:  KindConnectionClosedEarly,
			wantPhase: 1,
		},
		{
			name:   "peer closes during phase 2",
			chunks: [][]byte{[]byte("OK\n")},
			phases: []Phase{
				linePhase("hello", "HELLO\n", []string{"OK"}, nil),
				linePhase("auth", "AUTH\n", []string{"OK"}, nil),
			},
			wantClass: ClassDecode,
			wantKind:  KindIncompleteMultiPhase,
			wantPhase: 2,
		},
		{
			name:   "encode failure",
			chunks: nil,
			phases: []Phase{{
				Name:    "hello",
				Request: 42,
				Codec:   lineCodec,
				Expect:  FixedLength{N: 1},
			}},
			wantClass: ClassDecode,
			wantKind:  KindEncodeFailed,
			wantPhase: 1,
		},
		{
			name:   "decode failure",
			chunks: [][]byte{[]byte("xx")},
			phases: []Phase{{
				Name: "hello",
				Codec: CodecFuncs{DecodeFunc: func(frame Frame) (Message, error) {
					return Message{}, NewDecodeError(KindMalformedHeader, "bad magic %q", frame.Data)
				}},
				Expect: FixedLength{N: 2},
			}},
			wantClass: ClassDecode,
			wantKind:  KindMalformedHeader,
			wantPhase: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newScriptedConn(tt.chunks...)
			conn := NewConn(NewConfig(), sc, DefaultSLogger())
			fn := NewHandshakeFunc(NewConfig(), Script{Phases: tt.phases}, DefaultSLogger())

			outcome, err := fn.Call(context.Background(), conn)

			require.Error(t, err)
			assert.Nil(t, outcome)
			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.wantClass, e.Class)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.wantPhase, e.Phase)
			assert.Equal(t, 1, sc.closed)
			assert.Equal(t, StateClosed, conn.State())
		})
	}
}

// A silent peer makes the phase time out by its deadline and the
// connection is released exactly once by the time the error is returned.
func TestHandshakeFuncTimeoutReleasesOnce(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()
	go io.Copy(io.Discard, peer)
	counting := &countingConn{Conn: client}
	conn := NewConn(NewConfig(), counting, DefaultSLogger())

	phase := linePhase("hello", "HELLO\n", []string{"OK"}, nil)
	phase.Timeout = 100 * time.Millisecond
	fn := NewHandshakeFunc(NewConfig(), Script{Phases: []Phase{phase}}, DefaultSLogger())

	t0 := time.Now()
	_, err := fn.Call(context.Background(), conn)

	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(t0), time.Second)
	assert.True(t, conn.Guard().Released())
	assert.Equal(t, 1, counting.closeCount())

	// a second cleanup path reaching the guard is a no-op
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Guard().Release())
	assert.Equal(t, 1, counting.closeCount())
}

// OnTimeout overrides the kind reported when a phase times out.
func TestHandshakeFuncOnTimeout(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()
	conn := NewConn(NewConfig(), client, DefaultSLogger())

	phase := linePhase("banner", "", nil, nil)
	phase.Timeout = 50 * time.Millisecond
	phase.OnTimeout = ErrorKind("bannerTimeout")
	fn := NewHandshakeFunc(NewConfig(), Script{Phases: []Phase{phase}}, DefaultSLogger())

	_, err := fn.Call(context.Background(), conn)

	assert.Equal(t, ErrorKind("bannerTimeout"), KindOf(err))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 1, e.Phase)
}

// Under the shared budget a long phase timeout is capped by the overall one.
func TestHandshakeFuncSharedRemainingBudget(t *testing.T) {
	client, peer := net.Pipe()
	defer peer.Close()
	conn := NewConn(NewConfig(), client, DefaultSLogger())

	phase := linePhase("banner", "", nil, nil)
	phase.Timeout = 30 * time.Second
	script := Script{
		Phases:  []Phase{phase},
		Policy:  SharedRemainingBudget,
		Timeout: 100 * time.Millisecond,
	}
	fn := NewHandshakeFunc(NewConfig(), script, DefaultSLogger())

	t0 := time.Now()
	_, err := fn.Call(context.Background(), conn)

	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(t0), 5*time.Second)
}

// An integrity mismatch becomes a warning and the script continues.
func TestHandshakeFuncIntegrityWarning(t *testing.T) {
	logger, records := newCapturingLogger()
	conn := NewConn(NewConfig(), newScriptedConn([]byte("abcd"), []byte("OK\n")), logger)
	echo := Phase{
		Name:    "echo",
		Request: "abce",
		Codec: CodecFuncs{
			EncodeFunc: EncodeBytes,
			DecodeFunc: func(frame Frame) (Message, error) {
				msg := Message{Type: "echo", Payload: string(frame.Data)}
				err := CheckIntegrity(&msg, "nonce", func(data []byte) bool {
					return string(data) == "abce"
				}, frame.Data)
				return msg, err
			},
		},
		Expect: FixedLength{N: 4},
	}
	script := Script{Phases: []Phase{echo, linePhase("next", "", []string{"OK"}, nil)}}

	outcome, err := NewHandshakeFunc(NewConfig(), script, logger).Call(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, HandshakeComplete, outcome.State)
	assert.Equal(t, "abcd", outcome.Messages[0].Payload)
	assert.Equal(t, []string{"phase 1 (echo): nonce mismatch: response may be corrupted"}, outcome.Warnings)
	assert.Contains(t, recordMessages(*records), "integrityWarning")
}

// Each phase emits phaseStart and phaseDone.
func TestHandshakeFuncLogging(t *testing.T) {
	logger, records := newCapturingLogger()
	conn := NewConn(NewConfig(), newScriptedConn([]byte("OK\n")), DefaultSLogger())
	script := Script{Phases: []Phase{linePhase("hello", "", nil, nil)}}

	_, err := NewHandshakeFunc(NewConfig(), script, logger).Call(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, []string{"phaseStart", "phaseDone"}, recordMessages(*records))
}

// Outcome.Last of an empty outcome is the zero message.
func TestOutcomeLastEmpty(t *testing.T) {
	assert.Equal(t, Message{}, (&Outcome{}).Last())
}

// A context ending while phase 1 is being decoded closes the connection
// through the watching guard; phase 2 reports the context, not a peer close.
func TestHandshakeFuncContextEndsBetweenPhases(t *testing.T) {
	cases := []struct {
		name     string
		cancel   bool
		wantKind ErrorKind
	}{
		{name: "deadline", wantKind: KindTimeout},
		{name: "cancel", cancel: true, wantKind: KindCanceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, peer := net.Pipe()
			defer peer.Close()
			go func() {
				buf := make([]byte, 16)
				if _, err := peer.Read(buf); err != nil {
					return
				}
				peer.Write([]byte("OK a\n"))
				io.Copy(io.Discard, peer)
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			conn := NewConn(NewConfig(), client, DefaultSLogger())
			conn.Guard().Watch(ctx)

			first := linePhase("first", "1\n", []string{"OK"}, nil)
			first.Codec = CodecFuncs{
				EncodeFunc: EncodeBytes,
				DecodeFunc: func(frame Frame) (Message, error) {
					if tc.cancel {
						cancel()
					}
					<-ctx.Done()
					time.Sleep(20 * time.Millisecond)
					return lineCodec.Decode(frame)
				},
			}
			second := linePhase("second", "2\n", []string{"OK"}, nil)
			fn := NewHandshakeFunc(NewConfig(), Script{Phases: []Phase{first, second}}, DefaultSLogger())

			_, err := fn.Call(ctx, conn)

			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, ClassRead, e.Class)
			assert.Equal(t, tc.wantKind, e.Kind)
			assert.Equal(t, 2, e.Phase)
			assert.Equal(t, ResultTransport, NewOperationResult(nil, err, 0).Class)
		})
	}
}
