// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"math/rand/v2"
	"sync"
)

// WeakRandom produces non-cryptographic random values for probe nonces,
// query IDs and similar fields whose only job is to tell responses apart.
//
// WeakRandom must never be used for keys, credentials or anything an
// attacker benefits from predicting. Use [crypto/rand] for those.
//
// A WeakRandom is safe for concurrent use. Construct using [NewWeakRandom].
type WeakRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeakRandom returns a [*WeakRandom] seeded with seed1 and seed2.
//
// Equal seeds yield equal sequences, which tests rely upon.
func NewWeakRandom(seed1, seed2 uint64) *WeakRandom {
	return &WeakRandom{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// NewWeakRandomUnseeded returns a [*WeakRandom] seeded from the runtime.
func NewWeakRandomUnseeded() *WeakRandom {
	return NewWeakRandom(rand.Uint64(), rand.Uint64())
}

// Uint16 returns a random uint16.
func (w *WeakRandom) Uint16() uint16 {
	return uint16(w.Uint32())
}

// Uint32 returns a random uint32.
func (w *WeakRandom) Uint32() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rng.Uint32()
}

// Nonce returns n random lowercase alphanumeric bytes.
func (w *WeakRandom) Nonce(n int) []byte {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]byte, n)
	for idx := range out {
		out[idx] = alphabet[w.rng.IntN(len(alphabet))]
	}
	return out
}
