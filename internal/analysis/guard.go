// Package analysis runs uploaded videos through the shared hand detector:
// a non-blocking exclusivity guard over one process-wide model, a strictly
// sequential decode, detect, record, encode loop, and atomic persistence of
// the per-frame results.
package analysis

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrNotHeld is returned when a lease is released or used without holding
// the guard.
var ErrNotHeld = errors.New("guard is not held by this lease")

// Lease is proof of a successful TryAcquire. Only the lease returned by the
// acquisition may release the guard.
type Lease struct {
	acquired time.Time
}

// AcquiredAt returns when the guard was acquired.
func (l *Lease) AcquiredAt() time.Time {
	return l.acquired
}

// Guard is a binary, non-blocking exclusivity guard. There is no queue and
// no waiting: TryAcquire either succeeds immediately or fails immediately.
type Guard struct {
	sem    *semaphore.Weighted
	holder atomic.Pointer[Lease]
}

// NewGuard returns a free guard.
func NewGuard() *Guard {
	return &Guard{sem: semaphore.NewWeighted(1)}
}

// TryAcquire takes the guard if it is free. It never blocks.
func (g *Guard) TryAcquire() (*Lease, bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	l := &Lease{acquired: time.Now()}
	g.holder.Store(l)
	return l, true
}

// Release frees the guard. It fails with ErrNotHeld when l is nil, was
// already released, or belongs to an earlier holder.
func (g *Guard) Release(l *Lease) error {
	if l == nil || !g.holder.CompareAndSwap(l, nil) {
		return ErrNotHeld
	}
	g.sem.Release(1)
	return nil
}

// Held reports whether some lease currently holds the guard.
func (g *Guard) Held() bool {
	return g.holder.Load() != nil
}

// holds reports whether l is the current holder.
func (g *Guard) holds(l *Lease) bool {
	return l != nil && g.holder.Load() == l
}
