// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOperationResult(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		outcome := &Outcome{
			State:      HandshakeComplete,
			PhaseIndex: 2,
			PhaseName:  "subscribe",
			Messages:   []Message{{Type: "CONNECTED"}, {Type: "RECEIPT", Payload: "r-1"}},
			Warnings:   []string{"phase 1 (connect): crc mismatch"},
		}

		result := NewOperationResult(outcome, nil, 1500*time.Millisecond)

		assert.True(t, result.OK)
		assert.Equal(t, ResultSuccess, result.Class)
		assert.Equal(t, "r-1", result.Payload)
		assert.Equal(t, "RECEIPT", result.MessageType)
		assert.Equal(t, int64(1500), result.ElapsedMs)
		assert.Equal(t, 2, result.PhaseIndex)
		assert.Equal(t, outcome.Warnings, result.Warnings)
		assert.Nil(t, result.Err)
	})

	t.Run("application outcome is ok", func(t *testing.T) {
		outcome := &Outcome{
			State:      HandshakeApplicationOutcome,
			PhaseIndex: 1,
			Messages:   []Message{{Type: "ERROR", Payload: "access refused"}},
		}

		result := NewOperationResult(outcome, nil, 0)

		assert.True(t, result.OK)
		assert.Equal(t, ResultApplication, result.Class)
		assert.Equal(t, "ERROR", result.MessageType)
	})

	t.Run("errors carry class kind and phase", func(t *testing.T) {
		tests := []struct {
			// err is the operation error.
			err error

			// want is the expected result class.
			want ResultClass
		}{
			{err: newError(ClassConnect, KindBlockedTarget, errors.New("cdn")), want: ResultTransport},
			{err: &Error{Class: ClassRead, Kind: KindTimeout, Phase: 2}, want: ResultTransport},
			{err: newError(ClassRead, KindTooManyChunks, nil), want: ResultProtocol},
			{err: &Error{Class: ClassDecode, Kind: KindUnexpectedFrameType, Phase: 1}, want: ResultProtocol},
			{err: errors.New("plain"), want: ResultTransport},
		}
		for _, tt := range tests {
			result := NewOperationResult(nil, tt.err, time.Second)

			assert.False(t, result.OK)
			assert.Equal(t, tt.want, result.Class, tt.err.Error())
			require.NotNil(t, result.Err)
			assert.Equal(t, tt.err.Error(), result.Err.Message)
			assert.Equal(t, KindOf(tt.err), result.Err.Kind)
			assert.Equal(t, result.Err.Phase, result.PhaseIndex)
		}
	})
}
