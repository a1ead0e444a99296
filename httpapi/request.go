// SPDX-License-Identifier: GPL-3.0-or-later

package httpapi

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bassosimone/framewire"
)

// Timeout defaults and limits, in milliseconds.
const (
	DefaultTimeoutMs = 10_000
	MaxTimeoutMs     = 120_000
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Request is the JSON body of a single probe.
type Request struct {
	// Host is the target host name or IP address.
	Host string `json:"host"`

	// Port is the target port. Zero selects the protocol default.
	Port uint16 `json:"port,omitempty"`

	// TimeoutMs bounds the probe. Zero selects [DefaultTimeoutMs].
	TimeoutMs int64 `json:"timeoutMs,omitempty"`

	// TLS wraps the connection in TLS.
	TLS bool `json:"tls,omitempty"`

	// Params contains protocol-specific parameters.
	Params map[string]string `json:"params,omitempty"`
}

// Timeout returns the probe timeout.
func (r Request) Timeout() time.Duration {
	if r.TimeoutMs == 0 {
		return DefaultTimeoutMs * time.Millisecond
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// Endpoint returns the target endpoint.
func (r Request) Endpoint() framewire.Endpoint {
	return framewire.Endpoint{Host: r.Host, Port: r.Port}
}

// Validate checks the protocol-independent fields.
func (r Request) Validate() error {
	switch {
	case r.Host == "":
		return fmt.Errorf("%w: empty host", ErrInvalidRequest)
	case r.Port == 0:
		return fmt.Errorf("%w: missing port", ErrInvalidRequest)
	case r.TimeoutMs < 0 || r.TimeoutMs > MaxTimeoutMs:
		return fmt.Errorf("%w: timeoutMs must be within [0, %d]", ErrInvalidRequest, MaxTimeoutMs)
	default:
		return nil
	}
}

// Param returns the named parameter or fallback when unset.
func (r Request) Param(name, fallback string) string {
	if value, found := r.Params[name]; found {
		return value
	}
	return fallback
}

// IntParam returns the named integer parameter or fallback when unset.
func (r Request) IntParam(name string, fallback int) (int, error) {
	value, found := r.Params[name]
	if !found {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: parameter %q must be a non-negative integer", ErrInvalidRequest, name)
	}
	return n, nil
}

// FanOutRequest is the JSON body of a fan-out probe.
type FanOutRequest struct {
	// Protocol is the protocol every target is probed with.
	Protocol string `json:"protocol"`

	// Targets lists the probes to run concurrently.
	Targets []Request `json:"targets"`

	// MinSuccesses is the number of successful probes required. Zero means one.
	MinSuccesses int `json:"minSuccesses,omitempty"`

	// MaxParallel limits the concurrent probes. Zero means no limit.
	MaxParallel int `json:"maxParallel,omitempty"`
}

// MaxTargets limits the targets of a fan-out probe.
const MaxTargets = 64

// FanOutResponse is the JSON body answering a [FanOutRequest].
type FanOutResponse struct {
	OK        bool                        `json:"ok"`
	Successes int                         `json:"successes"`
	ElapsedMs int64                       `json:"elapsedMs"`
	Results   []framewire.OperationResult `json:"results"`
}

// errorResponse is the JSON body of a rejected request.
type errorResponse struct {
	Error string `json:"error"`
}
