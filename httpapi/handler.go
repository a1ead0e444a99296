// SPDX-License-Identifier: GPL-3.0-or-later

// Package httpapi exposes framewire probes over HTTP with JSON bodies.
//
// The [*Handler] serves:
//
//   - POST /probe/{protocol} running one probe described by a [Request];
//
//   - POST /probe running a [FanOutRequest] concurrently;
//
//   - GET /protocols listing the registered protocols.
//
// Probe answers are [framewire.OperationResult] bodies whose HTTP status
// is given by [StatusCode].
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bassosimone/framewire"
)

// Probe is an operation probing a single target.
type Probe = framewire.Func[framewire.Unit, *framewire.Outcome]

// ProbeFactory builds the probes of one protocol.
type ProbeFactory struct {
	// DefaultPort is used when the request has no port.
	DefaultPort uint16

	// DefaultTLSPort, when nonzero, is used instead of DefaultPort for
	// requests asking for TLS.
	DefaultTLSPort uint16

	// New returns the probe for req, whose common fields are already
	// validated. Errors are reported as invalid requests.
	New func(cfg *framewire.Config, req Request, logger framewire.SLogger) (Probe, error)
}

// NewProbe fills the default port of req, validates it and returns the
// probe built by New. Every error wraps [ErrInvalidRequest].
func (f ProbeFactory) NewProbe(cfg *framewire.Config, req Request, logger framewire.SLogger) (Probe, error) {
	if req.Port == 0 {
		req.Port = f.DefaultPort
		if req.TLS && f.DefaultTLSPort != 0 {
			req.Port = f.DefaultTLSPort
		}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	probe, err := f.New(cfg, req, logger)
	if err != nil && !errors.Is(err, ErrInvalidRequest) {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return probe, err
}

// DefaultMaxBodyBytes limits the size of request bodies.
const DefaultMaxBodyBytes = 1 << 20

// NewHandler returns a new [*Handler] serving probes.
//
// The cfg argument contains the common configuration for framewire operations.
//
// The logger argument is the [framewire.SLogger] to use for structured logging.
func NewHandler(cfg *framewire.Config, probes map[string]ProbeFactory, logger framewire.SLogger) *Handler {
	h := &Handler{
		Config:       cfg,
		Logger:       logger,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Probes:       probes,
		mux:          http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /probe/{protocol}", h.serveProbe)
	h.mux.HandleFunc("POST /probe", h.serveFanOut)
	h.mux.HandleFunc("GET /protocols", h.serveProtocols)
	return h
}

// Handler is the [http.Handler] of the probe API.
//
// All fields are safe to modify after construction but before serving.
type Handler struct {
	// Config is the framewire configuration shared by all probes.
	Config *framewire.Config

	// Logger is the [framewire.SLogger] to use.
	Logger framewire.SLogger

	// MaxBodyBytes limits the size of request bodies.
	MaxBodyBytes int64

	// Probes maps protocol names to their factories.
	Probes map[string]ProbeFactory

	mux *http.ServeMux
}

var _ http.Handler = &Handler{}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// StatusCode returns the HTTP status answering result.
//
// Application outcomes are successful probes. A blocked target is
// forbidden, while every other failure is an internal error.
func StatusCode(result framewire.OperationResult) int {
	switch {
	case result.OK:
		return http.StatusOK
	case result.Err != nil && result.Err.Kind == framewire.KindBlockedTarget:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) serveProbe(w http.ResponseWriter, r *http.Request) {
	protocol := r.PathValue("protocol")
	factory, found := h.Probes[protocol]
	if !found {
		h.writeError(w, http.StatusNotFound, fmt.Errorf("unknown protocol %q, want %s", protocol, describe(h.Probes)))
		return
	}
	var req Request
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	probe, err := factory.NewProbe(h.Config, req, h.Logger)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result := h.run(r.Context(), protocol, req, probe)
	h.writeJSON(w, StatusCode(result), result)
}

func (h *Handler) serveFanOut(w http.ResponseWriter, r *http.Request) {
	var req FanOutRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	factory, found := h.Probes[req.Protocol]
	if !found {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown protocol %q, want %s",
			ErrInvalidRequest, req.Protocol, describe(h.Probes)))
		return
	}
	switch {
	case len(req.Targets) == 0:
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: no targets", ErrInvalidRequest))
		return
	case len(req.Targets) > MaxTargets:
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: more than %d targets", ErrInvalidRequest, MaxTargets))
		return
	case req.MinSuccesses < 0 || req.MinSuccesses > len(req.Targets):
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: minSuccesses out of range", ErrInvalidRequest))
		return
	}

	probes := make([]Probe, 0, len(req.Targets))
	for idx, target := range req.Targets {
		probe, err := factory.NewProbe(h.Config, target, h.Logger)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("target %d: %w", idx, err))
			return
		}
		probes = append(probes, probe)
	}

	policy := framewire.JoinPolicy{MinSuccesses: req.MinSuccesses, MaxParallel: req.MaxParallel}
	join := framewire.NewJoinFunc[*framewire.Outcome](h.Config, policy, h.Logger)
	aggregate, _ := join.Call(r.Context(), probes)

	resp := FanOutResponse{
		OK:        aggregate.OK,
		Successes: aggregate.Successes,
		ElapsedMs: aggregate.Elapsed.Milliseconds(),
	}
	for _, branch := range aggregate.Branches {
		resp.Results = append(resp.Results, framewire.NewOperationResult(branch.Value, branch.Err, branch.Elapsed))
	}
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) serveProtocols(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Names(h.Probes))
}

func (h *Handler) run(ctx context.Context, protocol string, req Request, probe Probe) framewire.OperationResult {
	result := framewire.Run(ctx, probe, h.Config.TimeNow)
	h.Logger.Info(
		"probeDone",
		slog.String("class", string(result.Class)),
		slog.Int64("elapsedMs", result.ElapsedMs),
		slog.String("host", req.Host),
		slog.Bool("ok", result.OK),
		slog.String("protocol", protocol),
	)
	return result
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
