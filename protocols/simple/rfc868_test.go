// SPDX-License-Identifier: GPL-3.0-or-later

package simple

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/framewire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeProbe(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	endpoint := startServer(t, TimeHandler, fixedClock(now))

	script, err := TimeScript(fixedClock(now.Add(2*time.Minute)), 5*time.Second)
	require.NoError(t, err)
	outcome, err := runScript(t, endpoint, script)

	require.NoError(t, err)
	result := outcome.Last().Payload.(TimeResult)
	assert.True(t, result.Time.Equal(now))
	assert.Equal(t, -2*time.Minute, result.Skew)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "clock skew")
}

func TestTimeProbeInSync(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	endpoint := startServer(t, TimeHandler, fixedClock(now))

	script, err := TimeScript(fixedClock(now), 5*time.Second)
	require.NoError(t, err)
	outcome, err := runScript(t, endpoint, script)

	require.NoError(t, err)
	assert.Empty(t, outcome.Warnings)
}

func TestTimeEncoding(t *testing.T) {
	cases := []time.Time{
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC),
		time.Date(2036, 2, 7, 6, 28, 15, 0, time.UTC),
		time.Date(2036, 2, 7, 6, 28, 16, 0, time.UTC),
		time.Date(2050, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, want := range cases {
		t.Run(want.String(), func(t *testing.T) {
			assert.True(t, want.Equal(DecodeTime(EncodeTime(want))))
		})
	}
	assert.Equal(t, uint32(epochOffset), EncodeTime(time.Unix(0, 0)))
}

func TestTimeCodecShortFrame(t *testing.T) {
	_, err := newTimeCodec(time.Now).Decode(framewire.Frame{Data: []byte{1, 2}})
	assert.Equal(t, framewire.KindMalformedHeader, framewire.KindOf(err))
}

// A peer closing before four bytes fails the probe.
func TestTimeProbeShort(t *testing.T) {
	short := func(ctx context.Context, conn net.Conn, _ func() time.Time) error {
		_, err := conn.Write([]byte{0xe0, 0x01})
		return err
	}
	endpoint := startServer(t, short, nil)

	script, err := TimeScript(time.Now, 5*time.Second)
	require.NoError(t, err)
	_, err = runScript(t, endpoint, script)

	assert.Equal(t, framewire.KindConnectionClosedEarly, framewire.KindOf(err))
}
