// SPDX-License-Identifier: GPL-3.0-or-later

package httpapi

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bassosimone/framewire"
	"github.com/bassosimone/framewire/protocols/dnstcp"
	"github.com/bassosimone/framewire/protocols/simple"
	"github.com/bassosimone/framewire/protocols/stomp"
)

// DefaultProbes returns the factories of every built-in protocol.
//
// The rnd argument provides the nonces and message IDs of the probes.
func DefaultProbes(rnd *framewire.WeakRandom) map[string]ProbeFactory {
	return map[string]ProbeFactory{
		"chargen": scriptFactory(simple.ChargenPort, 0, chargenScript),
		"daytime": scriptFactory(simple.DaytimePort, 0, func(cfg *framewire.Config, req Request) (framewire.Script, error) {
			return simple.DaytimeScript(req.Timeout())
		}),
		"discard": scriptFactory(simple.DiscardPort, 0, discardScript),
		"dns": scriptFactory(dnstcp.Port, dnstcp.TLSPort, func(cfg *framewire.Config, req Request) (framewire.Script, error) {
			query, err := dnstcp.NewQuery(rnd, req.Param("name", ""), req.Param("type", "A"))
			if err != nil {
				return framewire.Script{}, err
			}
			return dnstcp.Script(query, req.Timeout())
		}),
		"echo": scriptFactory(simple.EchoPort, 0, func(cfg *framewire.Config, req Request) (framewire.Script, error) {
			length, err := req.IntParam("nonceLength", simple.DefaultNonceLength)
			if err != nil {
				return framewire.Script{}, err
			}
			return simple.EchoScript(simple.NewEchoNonce(rnd, length), req.Timeout())
		}),
		"finger": scriptFactory(simple.FingerPort, 0, func(cfg *framewire.Config, req Request) (framewire.Script, error) {
			return simple.FingerScript(req.Param("user", ""), req.Timeout())
		}),
		"stomp": scriptFactory(stomp.DefaultPort, 0, func(cfg *framewire.Config, req Request) (framewire.Script, error) {
			return stomp.Script(stompOptions(req), rnd)
		}),
		"time": scriptFactory(simple.TimePort, 0, func(cfg *framewire.Config, req Request) (framewire.Script, error) {
			return simple.TimeScript(cfg.TimeNow, req.Timeout())
		}),
	}
}

// scriptFactory returns a [ProbeFactory] running the script built by
// newScript as a [*framewire.Operation].
func scriptFactory(port, tlsPort uint16,
	newScript func(cfg *framewire.Config, req Request) (framewire.Script, error)) ProbeFactory {
	return ProbeFactory{
		DefaultPort:    port,
		DefaultTLSPort: tlsPort,
		New: func(cfg *framewire.Config, req Request, logger framewire.SLogger) (Probe, error) {
			script, err := newScript(cfg, req)
			if err != nil {
				return nil, err
			}
			opts := framewire.DialOptions{TLS: req.TLS}
			return framewire.NewOperation(cfg, req.Endpoint(), opts, script, logger), nil
		},
	}
}

func durationParam(req Request, name string) (time.Duration, error) {
	ms, err := req.IntParam(name, 0)
	return time.Duration(ms) * time.Millisecond, err
}

func chargenScript(cfg *framewire.Config, req Request) (framewire.Script, error) {
	maxBytes, err := req.IntParam("maxBytes", 0)
	if err != nil {
		return framewire.Script{}, err
	}
	window, err := durationParam(req, "windowMs")
	if err != nil {
		return framewire.Script{}, err
	}
	return simple.ChargenScript(maxBytes, window, req.Timeout())
}

func discardScript(cfg *framewire.Config, req Request) (framewire.Script, error) {
	window, err := durationParam(req, "windowMs")
	if err != nil {
		return framewire.Script{}, err
	}
	payload := req.Param("payload", "framewire discard probe\r\n")
	return simple.DiscardScript([]byte(payload), window, req.Timeout())
}

// stompHeaderPrefix marks the params forwarded as extra CONNECT headers.
const stompHeaderPrefix = "header."

func stompOptions(req Request) stomp.Options {
	opts := stomp.Options{
		Host:        req.Param("vhost", req.Host),
		Login:       req.Param("login", ""),
		Passcode:    req.Param("passcode", ""),
		Destination: req.Param("destination", ""),
		ReceiptID:   req.Param("receipt", ""),
		Timeout:     req.Timeout(),
	}
	for _, name := range slices.Sorted(maps.Keys(req.Params)) {
		if key, found := strings.CutPrefix(name, stompHeaderPrefix); found {
			opts.Headers = append(opts.Headers, framewire.Field{Key: key, Value: req.Params[name]})
		}
	}
	return opts
}

// Names returns the sorted protocol names of probes.
func Names(probes map[string]ProbeFactory) []string {
	return slices.Sorted(maps.Keys(probes))
}

// describe renders the protocol list for error messages.
func describe(probes map[string]ProbeFactory) string {
	return fmt.Sprintf("one of %s", strings.Join(Names(probes), ", "))
}
