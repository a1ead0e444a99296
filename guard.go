// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"io"
	"sync"
)

// Guard releases a connection's handles exactly once.
//
// Every exit path of an operation (completion, any error, deadline expiry
// racing an in-flight read, context cancellation) may call [*Guard.Release].
// The first call closes the underlying handle and later calls are no-ops
// returning nil, so the handle is never closed twice.
//
// Construct using [NewGuard].
type Guard struct {
	closer   io.Closer
	once     sync.Once
	mu       sync.Mutex
	released bool
	stop     func() bool
}

// NewGuard returns a [*Guard] owning closer.
func NewGuard(closer io.Closer) *Guard {
	return &Guard{closer: closer}
}

// Watch arranges for the guard to release its handle when ctx is done.
//
// Closing the handle unblocks any goroutine stuck in I/O on it. Releasing
// the guard disarms the watch, so a context outliving the operation does
// not leak a watcher. Calling Watch again replaces the previous watch.
func (g *Guard) Watch(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		g.Release()
	})
	g.mu.Lock()
	prev := g.stop
	g.stop = stop
	released := g.released
	g.mu.Unlock()
	if prev != nil {
		prev()
	}
	if released {
		stop()
	}
}

// Release closes the underlying handle if this is the first call.
//
// The returned error is the close error on the first call and nil afterwards.
func (g *Guard) Release() (err error) {
	g.once.Do(func() {
		g.mu.Lock()
		g.released = true
		stop := g.stop
		g.mu.Unlock()
		if stop != nil {
			stop()
		}
		err = g.closer.Close()
	})
	return
}

// Released returns whether [*Guard.Release] has run.
func (g *Guard) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}
