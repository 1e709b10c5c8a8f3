// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/bureau-foundation/bureau-profiler/lib/metrics"
)

// Pending reports the dispatcher's counters.
type Pending struct {
	// Queued counts asynchronous uploads waiting for an execution slot.
	Queued int64

	// InFlight counts uploads currently executing, synchronous ones
	// included.
	InFlight int64
}

// dispatcher runs upload tasks. It hands every asynchronous task to a
// goroutine of its own immediately and has no internal queue: the
// admission check on the queued counter is the only backpressure
// point. A task blocked on a saturated connection pool therefore never
// delays acceptance of another, and work is never queued twice.
//
// The in-flight ceiling is a weighted semaphore sized to match the
// connection pool. A task counts as queued from spawn until it holds a
// slot, then as in flight until it returns.
type dispatcher struct {
	slots    *semaphore.Weighted
	queued   atomic.Int64
	inFlight atomic.Int64
	metrics  *metrics.Metrics

	// mu orders begin against close so that tasks.Add never races
	// tasks.Wait.
	mu     sync.Mutex
	closed bool
	tasks  sync.WaitGroup
}

func newDispatcher(maxInFlight int, m *metrics.Metrics) *dispatcher {
	return &dispatcher{
		slots:   semaphore.NewWeighted(int64(maxInFlight)),
		metrics: m,
	}
}

// begin registers a task. It returns false once the dispatcher is
// closed, in which case the task must not run.
func (d *dispatcher) begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.tasks.Add(1)
	return true
}

// spawn runs task on a new goroutine once an execution slot is free.
// The task receives the slot acquisition error, which is non-nil only
// when ctx ended while it was queued. The caller must have called
// begin.
func (d *dispatcher) spawn(ctx context.Context, task func(acquireErr error)) {
	d.queued.Add(1)
	d.publish()
	go func() {
		defer d.tasks.Done()

		err := d.slots.Acquire(ctx, 1)
		d.queued.Add(-1)
		if err != nil {
			d.publish()
			task(err)
			return
		}
		defer d.slots.Release(1)
		d.run(func() { task(nil) })
	}()
}

// runSync executes task on the calling goroutine without taking a
// slot. The caller must have called begin.
func (d *dispatcher) runSync(task func()) {
	defer d.tasks.Done()
	d.run(task)
}

func (d *dispatcher) run(task func()) {
	d.inFlight.Add(1)
	d.publish()
	defer func() {
		d.inFlight.Add(-1)
		d.publish()
	}()
	task()
}

func (d *dispatcher) pending() Pending {
	return Pending{Queued: d.queued.Load(), InFlight: d.inFlight.Load()}
}

func (d *dispatcher) publish() {
	d.metrics.SetPending(d.queued.Load(), d.inFlight.Load())
}

// close stops begin from accepting tasks.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// drained returns a channel closed once every registered task has
// returned. Call it only after close.
func (d *dispatcher) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		d.tasks.Wait()
		close(done)
	}()
	return done
}
