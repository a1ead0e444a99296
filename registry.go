// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// RegistryEntry pairs a [FrameSpec] with the [Codec] for one message type.
type RegistryEntry struct {
	Spec  FrameSpec
	Codec Codec
}

// Registry maps message-type names to their [RegistryEntry].
//
// Protocol modules populate a Registry at init time and build their
// handshake [Phase] values from it. The engine never interprets protocol
// semantics: it only asks the [FrameSpec] whether a frame is complete and the
// codec to turn bytes into a [Message].
//
// The zero value is ready to use. A Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]RegistryEntry
}

// Register adds an entry for name.
//
// Registering the same name twice or an invalid spec is an error.
func (r *Registry) Register(name string, spec FrameSpec, codec Codec) error {
	if spec == nil || codec == nil {
		return fmt.Errorf("framewire: registry entry %q needs a spec and a codec", name)
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("framewire: registry entry %q: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.entries[name]; found {
		return fmt.Errorf("framewire: registry entry %q already registered", name)
	}
	if r.entries == nil {
		r.entries = make(map[string]RegistryEntry)
	}
	r.entries[name] = RegistryEntry{Spec: spec, Codec: codec}
	return nil
}

// MustRegister is like [*Registry.Register] but panics on error.
func (r *Registry) MustRegister(name string, spec FrameSpec, codec Codec) {
	if err := r.Register(name, spec, codec); err != nil {
		panic(err)
	}
}

// Lookup returns the entry registered for name.
func (r *Registry) Lookup(name string) (RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, found := r.entries[name]
	return entry, found
}

// Names returns the sorted registered names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Phase builds a [Phase] that sends request and expects the message type
// registered as name, with the given per-phase timeout.
func (r *Registry) Phase(name string, request any, timeout time.Duration) (Phase, error) {
	entry, found := r.Lookup(name)
	if !found {
		return Phase{}, fmt.Errorf("framewire: no registry entry for %q", name)
	}
	return Phase{
		Name:    name,
		Request: request,
		Codec:   entry.Codec,
		Expect:  entry.Spec,
		Timeout: timeout,
	}, nil
}
