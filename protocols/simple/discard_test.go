// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"testing"
	"time"

	"github.com/bassosimone/framewire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscardProbe(t *testing.T) {
	endpoint := startServer(t, DiscardHandler, nil)

	script, err := DiscardScript([]byte("hello, world\n"), 100*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	outcome, err := runScript(t, endpoint, script)

	require.NoError(t, err)
	assert.Equal(t, framewire.HandshakeComplete, outcome.State)
	assert.Equal(t, DiscardResult{Sent: 13, Received: 0}, outcome.Last().Payload)
	assert.Empty(t, outcome.Warnings)
}

// An echo server is not a conforming discard server.
func TestDiscardProbePeerAnswered(t *testing.T) {
	endpoint := startServer(t, EchoHandler, nil)

	script, err := DiscardScript([]byte("hello"), 500*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	outcome, err := runScript(t, endpoint, script)

	require.NoError(t, err)
	result := outcome.Last().Payload.(DiscardResult)
	assert.Equal(t, 5, result.Received)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "answered with 5 bytes")
}

func TestDiscardScriptDefaults(t *testing.T) {
	script, err := DiscardScript([]byte("x"), 0, time.Second)
	require.NoError(t, err)
	spec := script.Phases[0].Expect.(framewire.Bounded)
	assert.Equal(t, DefaultWindow, spec.Window)

	_, err = DiscardScript(nil, 0, time.Second)
	assert.Error(t, err)
}
