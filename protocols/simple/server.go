// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bassosimone/framewire"
	"github.com/bassosimone/safeconn"
)

// DefaultSessionTimeout bounds every server session.
const DefaultSessionTimeout = 15 * time.Minute

// Handler serves one accepted connection.
//
// The connection deadline is already set to the end of the session and
// the connection is closed when the handler returns.
type Handler func(ctx context.Context, conn net.Conn, timeNow func() time.Time) error

// NewServer returns a new [*Server] using handler.
//
// The name argument identifies the service in logs.
//
// The logger argument is the [framewire.SLogger] to use for structured logging.
func NewServer(name string, handler Handler, logger framewire.SLogger) *Server {
	return &Server{
		Handler:        handler,
		Logger:         logger,
		Name:           name,
		SessionTimeout: DefaultSessionTimeout,
		TimeNow:        time.Now,
	}
}

// Server serves a simple service on a listener.
//
// All fields are safe to modify after construction but before [*Server.Serve].
type Server struct {
	// Handler serves each connection.
	Handler Handler

	// Logger is the [framewire.SLogger] to use.
	Logger framewire.SLogger

	// Name is the service name.
	Name string

	// SessionTimeout is the maximum duration of a session.
	SessionTimeout time.Duration

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// Serve accepts connections until ctx is done or accepting fails.
//
// Serve closes listener and waits for the active sessions before
// returning. It returns nil when stopped by ctx.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Go(func() {
			s.serveConn(ctx, conn)
		})
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	t0 := s.TimeNow()
	s.Logger.Info(
		"sessionStart",
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("service", s.Name),
		slog.Time("t", t0),
	)
	conn.SetDeadline(t0.Add(s.SessionTimeout))

	err := s.Handler(ctx, conn, s.TimeNow)

	s.Logger.Info(
		"sessionDone",
		slog.Any("err", err),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("service", s.Name),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)
}

// EchoHandler sends back everything it receives.
func EchoHandler(ctx context.Context, conn net.Conn, _ func() time.Time) error {
	_, err := io.Copy(conn, conn)
	return err
}

// DiscardHandler reads and drops everything it receives.
func DiscardHandler(ctx context.Context, conn net.Conn, _ func() time.Time) error {
	_, err := io.Copy(io.Discard, conn)
	return err
}

// daytimeLayout renders like "Tuesday, October 14, 2026 09:30:00 UTC".
const daytimeLayout = "Monday, January 02, 2006 15:04:05 MST"

// DaytimeHandler writes the current date and time.
func DaytimeHandler(ctx context.Context, conn net.Conn, timeNow func() time.Time) error {
	_, err := io.WriteString(conn, timeNow().Format(daytimeLayout)+"\r\n")
	return err
}

// TimeHandler writes the current time as an RFC 868 value.
func TimeHandler(ctx context.Context, conn net.Conn, timeNow func() time.Time) error {
	_, err := conn.Write(binary.BigEndian.AppendUint32(nil, EncodeTime(timeNow())))
	return err
}

// ChargenHandler returns a [Handler] writing one chargen line per
// interval until the session ends. A zero interval writes as fast as
// the peer reads.
func ChargenHandler(interval time.Duration) Handler {
	return func(ctx context.Context, conn net.Conn, _ func() time.Time) error {
		for offset := 0; ; offset = (offset + 1) % chargenCycle {
			if _, err := conn.Write(chargenLine(offset)); err != nil {
				return err
			}
			if interval <= 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
}

// fingerQueryTimeout bounds reading the finger query.
const fingerQueryTimeout = 30 * time.Second

// FingerHandler returns a [Handler] answering finger queries from users,
// which maps a login to the text describing it.
func FingerHandler(users map[string]string) Handler {
	return func(ctx context.Context, conn net.Conn, timeNow func() time.Time) error {
		conn.SetReadDeadline(timeNow().Add(fingerQueryTimeout))
		line, err := bufio.NewReader(io.LimitReader(conn, 1024)).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		user := strings.TrimPrefix(strings.TrimSpace(line), "/")
		_, err = io.WriteString(conn, fingerAnswer(users, user)+"\r\n")
		return err
	}
}

// DefaultFingerUsers returns the logins the finger service knows when
// none are configured.
func DefaultFingerUsers() map[string]string {
	return map[string]string{
		"alice": strings.Join([]string{
			"Login: alice                            Name: Alice Johnson",
			"Directory: /home/alice                 Shell: /bin/bash",
			"Last login: Fri Feb 16 10:30:00 2024 from 10.0.0.100",
			"Mail forwarded to alice@example.com",
			"Plan:",
			"Working on network protocols project.",
			"Available for collaboration!",
		}, "\n"),
		"bob": strings.Join([]string{
			"Login: bob                              Name: Bob Smith",
			"Directory: /home/bob                   Shell: /bin/bash",
			"Last login: Fri Feb 16 11:45:00 2024 from 127.0.0.1",
			"No mail.",
			"No Plan.",
		}, "\n"),
		"testuser": strings.Join([]string{
			"Login: testuser                         Name: Test User",
			"Directory: /home/testuser              Shell: /bin/bash",
			"Last login: Fri Feb 16 12:00:00 2024 from 127.0.0.1",
			"No mail.",
			"No Plan.",
		}, "\n"),
	}
}

func fingerAnswer(users map[string]string, user string) string {
	if user == "" {
		logins := make([]string, 0, len(users))
		for login := range users {
			logins = append(logins, login)
		}
		slices.Sort(logins)
		var sb strings.Builder
		sb.WriteString("Login\n")
		for _, login := range logins {
			sb.WriteString(login + "\n")
		}
		fmt.Fprintf(&sb, "\nTotal users: %d", len(logins))
		return sb.String()
	}
	if text, found := users[user]; found {
		return text
	}
	return fmt.Sprintf("finger: %s: no such user", user)
}

// Services returns the handler of every simple service by name.
//
// The finger service answers from users, or from [DefaultFingerUsers]
// when users is nil.
func Services(users map[string]string) map[string]Handler {
	if users == nil {
		users = DefaultFingerUsers()
	}
	return map[string]Handler{
		"chargen": ChargenHandler(100 * time.Millisecond),
		"daytime": DaytimeHandler,
		"discard": DiscardHandler,
		"echo":    EchoHandler,
		"finger":  FingerHandler(users),
		"time":    TimeHandler,
	}
}
