// Package lock provides per-application mutual exclusion for lifecycle
// actions.
//
// The table guarantees that at most one action runs at a time for a given
// application name while actions on different names proceed fully
// concurrently. It exists to stop a restart racing a concurrent stop on the
// same underlying process, which leaves inconsistent PID-file and log state.
//
// The table is owned by the supervisor and passed by reference; it is not
// package-global state. Entries are created lazily on first use and live
// for the process lifetime, bounded by the fixed set of configured apps.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opsdeck/appman/internal/shared/apperr"
)

// Table maps application names to their mutual-exclusion gates.
type Table struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{
		gates: make(map[string]chan struct{}),
	}
}

// gate returns the semaphore channel for name, creating it on first use.
// A channel of capacity one supports both context cancellation and bounded
// waits, which a plain sync.Mutex does not.
func (t *Table) gate(name string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.gates[name]
	if !ok {
		g = make(chan struct{}, 1)
		t.gates[name] = g
	}
	return g
}

// Acquire blocks until the per-app lock is free or ctx is done. On success
// it returns a release func that must be called on every exit path.
func (t *Table) Acquire(ctx context.Context, name string) (func(), error) {
	g := t.gate(name)

	select {
	case g <- struct{}{}:
		return func() { <-g }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrBusy, name, ctx.Err())
	}
}

// TryAcquire waits up to wait for the per-app lock, then fails with ErrBusy.
// A zero or negative wait degrades to a single non-blocking attempt.
func (t *Table) TryAcquire(name string, wait time.Duration) (func(), error) {
	g := t.gate(name)

	if wait <= 0 {
		select {
		case g <- struct{}{}:
			return func() { <-g }, nil
		default:
			return nil, fmt.Errorf("%w: %s", apperr.ErrBusy, name)
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case g <- struct{}{}:
		return func() { <-g }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s: no lock after %v", apperr.ErrBusy, name, wait)
	}
}

// Held reports whether the lock for name is currently held. Intended for
// status introspection; the answer may be stale by the time it is used.
func (t *Table) Held(name string) bool {
	return len(t.gate(name)) > 0
}
