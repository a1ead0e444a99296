// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"net"
	"time"
)

// Config holds common configuration for framewire operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// BlockedTargets is consulted before dialing.
	//
	// Set by [NewConfig] to [AllowAllTargets].
	BlockedTargets BlockedTargetChecker

	// ChunkSize is the size of the buffer passed to each network read.
	//
	// Set by [NewConfig] to [DefaultChunkSize].
	ChunkSize int

	// Dialer is used by [*ConnectFunc].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// MaxBytes caps the bytes buffered by each [*Conn].
	//
	// Set by [NewConfig] to [DefaultMaxBytes].
	MaxBytes int

	// MaxChunks is the ceiling on chunk reads while assembling one frame.
	//
	// Set by [NewConfig] to [DefaultMaxChunks].
	MaxChunks int

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		BlockedTargets: AllowAllTargets,
		ChunkSize:      DefaultChunkSize,
		Dialer:         &net.Dialer{},
		ErrClassifier:  DefaultErrClassifier,
		MaxBytes:       DefaultMaxBytes,
		MaxChunks:      DefaultMaxChunks,
		TimeNow:        time.Now,
	}
}
