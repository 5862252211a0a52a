package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrQueueFull means the permit wait queue is at capacity; the call
	// fails fast instead of queuing unbounded work.
	ErrQueueFull = errors.New("catalog: permit queue full")
	// ErrPermitTimeout means a waiter gave up before a permit freed up.
	ErrPermitTimeout = errors.New("catalog: timed out waiting for permit")
)

// permitGate bounds concurrent outbound requests. Excess callers wait FIFO
// (semaphore.Weighted hands out permits in arrival order); the wait queue
// itself is bounded and each waiter has a timeout.
type permitGate struct {
	sem         *semaphore.Weighted
	waitTimeout time.Duration
	maxWaiters  int

	mu      sync.Mutex
	waiters int
}

func newPermitGate(maxConcurrent, maxWaiters int, waitTimeout time.Duration) *permitGate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if maxWaiters <= 0 {
		maxWaiters = 1
	}
	if waitTimeout <= 0 {
		waitTimeout = 10 * time.Second
	}
	return &permitGate{
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		waitTimeout: waitTimeout,
		maxWaiters:  maxWaiters,
	}
}

// acquire obtains a permit, waiting up to the gate's timeout. The returned
// release function must be called exactly once.
func (g *permitGate) acquire(ctx context.Context) (func(), error) {
	if g.sem.TryAcquire(1) {
		return func() { g.sem.Release(1) }, nil
	}

	g.mu.Lock()
	if g.waiters >= g.maxWaiters {
		g.mu.Unlock()
		return nil, ErrQueueFull
	}
	g.waiters++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.waiters--
		g.mu.Unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, g.waitTimeout)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrPermitTimeout
		}
		return nil, err
	}
	return func() { g.sem.Release(1) }, nil
}
