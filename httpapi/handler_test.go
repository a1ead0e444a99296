// SPDX-License-Identifier: GPL-3.0-or-later

package httpapi

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bassosimone/framewire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name   string
		result framewire.OperationResult
		want   int
	}{{
		name:   "success",
		result: framewire.OperationResult{OK: true, Class: framewire.ResultSuccess},
		want:   http.StatusOK,
	}, {
		name:   "application outcome",
		result: framewire.OperationResult{OK: true, Class: framewire.ResultApplication},
		want:   http.StatusOK,
	}, {
		name: "blocked target",
		result: framewire.OperationResult{
			Class: framewire.ResultTransport,
			Err:   &framewire.ResultError{Class: framewire.ClassConnect, Kind: framewire.KindBlockedTarget},
		},
		want: http.StatusForbidden,
	}, {
		name: "timeout",
		result: framewire.OperationResult{
			Class: framewire.ResultTransport,
			Err:   &framewire.ResultError{Class: framewire.ClassRead, Kind: framewire.KindTimeout},
		},
		want: http.StatusInternalServerError,
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusCode(tc.result))
		})
	}
}

func TestServeProbe(t *testing.T) {
	var got Request
	probes := map[string]ProbeFactory{
		"stub": stubFactory(func(req Request) (*framewire.Outcome, error) {
			got = req
			return completeOutcome("hello"), nil
		}),
	}
	logger, messages := newCapturingLogger()
	handler := NewHandler(framewire.NewConfig(), probes, logger)

	rr := do(handler, http.MethodPost, "/probe/stub", `{"host": "example.com", "params": {"x": "y"}}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	var result framewire.OperationResult
	decodeBody(t, rr, &result)
	assert.True(t, result.OK)
	assert.Equal(t, framewire.ResultSuccess, result.Class)
	assert.Equal(t, "hello", result.Payload)
	assert.Equal(t, "stub", result.MessageType)

	assert.Equal(t, "example.com", got.Host)
	assert.Equal(t, uint16(7), got.Port)
	assert.Equal(t, "y", got.Param("x", ""))
	assert.Contains(t, messages(), "probeDone")
}

func TestServeProbeDefaultTLSPort(t *testing.T) {
	var got Request
	probes := map[string]ProbeFactory{
		"stub": stubFactory(func(req Request) (*framewire.Outcome, error) {
			got = req
			return completeOutcome(nil), nil
		}),
	}
	handler := NewHandler(framewire.NewConfig(), probes, framewire.DefaultSLogger())

	rr := do(handler, http.MethodPost, "/probe/stub", `{"host": "example.com", "tls": true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, uint16(7007), got.Port)

	rr = do(handler, http.MethodPost, "/probe/stub", `{"host": "example.com", "port": 9999, "tls": true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, uint16(9999), got.Port)
}

func TestServeProbeOutcomes(t *testing.T) {
	cases := []struct {
		name      string
		outcome   *framewire.Outcome
		err       error
		wantCode  int
		wantClass framewire.ResultClass
	}{{
		name: "application outcome",
		outcome: &framewire.Outcome{
			State:      framewire.HandshakeApplicationOutcome,
			PhaseIndex: 1,
			Messages:   []framewire.Message{{Type: "ERROR"}},
		},
		wantCode:  http.StatusOK,
		wantClass: framewire.ResultApplication,
	}, {
		name:      "refused",
		err:       &framewire.Error{Class: framewire.ClassConnect, Kind: framewire.KindRefused},
		wantCode:  http.StatusInternalServerError,
		wantClass: framewire.ResultTransport,
	}, {
		name:      "blocked",
		err:       &framewire.Error{Class: framewire.ClassConnect, Kind: framewire.KindBlockedTarget},
		wantCode:  http.StatusForbidden,
		wantClass: framewire.ResultTransport,
	}, {
		name:      "malformed",
		err:       &framewire.Error{Class: framewire.ClassDecode, Kind: framewire.KindMalformedHeader, Phase: 2},
		wantCode:  http.StatusInternalServerError,
		wantClass: framewire.ResultProtocol,
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			probes := map[string]ProbeFactory{
				"stub": stubFactory(func(req Request) (*framewire.Outcome, error) {
					return tc.outcome, tc.err
				}),
			}
			handler := NewHandler(framewire.NewConfig(), probes, framewire.DefaultSLogger())

			rr := do(handler, http.MethodPost, "/probe/stub", `{"host": "example.com"}`)

			assert.Equal(t, tc.wantCode, rr.Code)
			var result framewire.OperationResult
			decodeBody(t, rr, &result)
			assert.Equal(t, tc.wantClass, result.Class)
		})
	}
}

func TestServeProbeRejects(t *testing.T) {
	probes := map[string]ProbeFactory{
		"stub": stubFactory(func(req Request) (*framewire.Outcome, error) {
			return completeOutcome(nil), nil
		}),
		"failing": {
			DefaultPort: 1,
			New: func(cfg *framewire.Config, req Request, logger framewire.SLogger) (Probe, error) {
				return nil, errors.New("mocked factory error")
			},
		},
	}
	handler := NewHandler(framewire.NewConfig(), probes, framewire.DefaultSLogger())

	cases := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"unknown protocol", "/probe/nope", `{"host": "example.com"}`, http.StatusNotFound},
		{"bad json", "/probe/stub", `{"host":`, http.StatusBadRequest},
		{"unknown field", "/probe/stub", `{"host": "example.com", "hots": 1}`, http.StatusBadRequest},
		{"missing host", "/probe/stub", `{"port": 7}`, http.StatusBadRequest},
		{"negative timeout", "/probe/stub", `{"host": "example.com", "timeoutMs": -1}`, http.StatusBadRequest},
		{"huge timeout", "/probe/stub", `{"host": "example.com", "timeoutMs": 1000000}`, http.StatusBadRequest},
		{"factory error", "/probe/failing", `{"host": "example.com"}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(handler, http.MethodPost, tc.path, tc.body)

			assert.Equal(t, tc.wantCode, rr.Code)
			var reject errorResponse
			decodeBody(t, rr, &reject)
			assert.NotEmpty(t, reject.Error)
		})
	}
}

func TestServeProbeMethodNotAllowed(t *testing.T) {
	handler := NewHandler(framewire.NewConfig(), nil, framewire.DefaultSLogger())
	rr := do(handler, http.MethodGet, "/probe/echo", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServeFanOut(t *testing.T) {
	probes := map[string]ProbeFactory{
		"stub": stubFactory(func(req Request) (*framewire.Outcome, error) {
			if req.Host == "bad.example" {
				return nil, &framewire.Error{Class: framewire.ClassConnect, Kind: framewire.KindTimeout}
			}
			return completeOutcome(req.Host), nil
		}),
	}
	handler := NewHandler(framewire.NewConfig(), probes, framewire.DefaultSLogger())
	targets := `[{"host": "a.example"}, {"host": "bad.example"}, {"host": "b.example"}]`

	t.Run("quorum reached", func(t *testing.T) {
		rr := do(handler, http.MethodPost, "/probe",
			`{"protocol": "stub", "minSuccesses": 2, "maxParallel": 2, "targets": `+targets+`}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp FanOutResponse
		decodeBody(t, rr, &resp)
		assert.True(t, resp.OK)
		assert.Equal(t, 2, resp.Successes)
		require.Len(t, resp.Results, 3)
		assert.Equal(t, "a.example", resp.Results[0].Payload)
		assert.False(t, resp.Results[1].OK)
		assert.Equal(t, framewire.KindTimeout, resp.Results[1].Err.Kind)
		assert.Equal(t, "b.example", resp.Results[2].Payload)
	})

	t.Run("quorum missed", func(t *testing.T) {
		rr := do(handler, http.MethodPost, "/probe",
			`{"protocol": "stub", "minSuccesses": 3, "targets": `+targets+`}`)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		var resp FanOutResponse
		decodeBody(t, rr, &resp)
		assert.False(t, resp.OK)
		assert.Equal(t, 2, resp.Successes)
	})
}

func TestServeFanOutRejects(t *testing.T) {
	probes := map[string]ProbeFactory{
		"stub": stubFactory(func(req Request) (*framewire.Outcome, error) {
			return completeOutcome(nil), nil
		}),
	}
	handler := NewHandler(framewire.NewConfig(), probes, framewire.DefaultSLogger())

	cases := []struct {
		name string
		body string
	}{
		{"unknown protocol", `{"protocol": "nope", "targets": [{"host": "a.example"}]}`},
		{"no targets", `{"protocol": "stub", "targets": []}`},
		{"min successes too high", `{"protocol": "stub", "minSuccesses": 2, "targets": [{"host": "a.example"}]}`},
		{"invalid target", `{"protocol": "stub", "targets": [{"host": "a.example"}, {"port": 1}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(handler, http.MethodPost, "/probe", tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestServeProtocols(t *testing.T) {
	handler := NewHandler(framewire.NewConfig(), DefaultProbes(framewire.NewWeakRandom(1, 2)), framewire.DefaultSLogger())

	rr := do(handler, http.MethodGet, "/protocols", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var names []string
	decodeBody(t, rr, &names)
	assert.Equal(t, []string{"chargen", "daytime", "discard", "dns", "echo", "finger", "stomp", "time"}, names)
}
