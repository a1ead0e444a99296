// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

// SLogger is the logging surface used by every stage. [*slog.Logger]
// implements it.
//
// Debug carries per-I/O events (chunk reads and writes). Info carries the
// Start/Done pairs of connects, TLS handshakes, frames, phases, closes,
// operations and joins. Warn carries integrity warnings.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// DefaultSLogger returns an [SLogger] that drops everything.
func DefaultSLogger() SLogger {
	return nopSLogger{}
}

type nopSLogger struct{}

func (nopSLogger) Debug(string, ...any) {}

func (nopSLogger) Info(string, ...any) {}

func (nopSLogger) Warn(string, ...any) {}
