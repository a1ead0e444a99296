// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying a span.
//
// A span here is one [*Operation] or one branch of a fan-out join: a
// dial plus a handshake script that fails in a single, specific way.
// Attach the span ID to the logger using [*slog.Logger.With] so that
// every event of the operation can be correlated.
//
// This function panics if the system random number generator fails.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
