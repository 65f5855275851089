package engine

import "time"

// Semaphore is a counting semaphore with a bounded-wait timeout, the one
// synchronization primitive the design calls for beyond mutexes and atomics.
// If a target environment lacked a native semaphore, a condition variable
// over a counter would work identically. It is backed by a buffered
// channel rather than a sync.Cond so Signal never blocks the caller
// (including the realtime render callback) and WaitTimeout never leaks a
// goroutine on timeout — the same non-blocking-signal shape a
// select-with-default channel send gives a producer goroutine.
type Semaphore struct {
	permits chan struct{}
}

// semaphoreCapacity bounds how many un-consumed signals can queue up before
// further Signal calls are dropped. The worker and collector only care that
// at least one wake is pending, so a small capacity is enough to avoid an
// unbounded backlog without ever blocking the signaler.
const semaphoreCapacity = 64

// NewSemaphore creates a semaphore with zero pending signals.
func NewSemaphore() *Semaphore {
	return &Semaphore{permits: make(chan struct{}, semaphoreCapacity)}
}

// Signal posts one permit, waking a blocked waiter. Safe to call from any
// thread, including the realtime render callback: it never blocks.
func (s *Semaphore) Signal() {
	select {
	case s.permits <- struct{}{}:
	default:
		// Backlog full; a wake is already pending, so dropping this one
		// does not change observable behavior.
	}
}

// WaitTimeout blocks until a signal arrives or the timeout elapses,
// returning true if it was woken by a signal. A zero or negative timeout
// waits forever.
func (s *Semaphore) WaitTimeout(timeout time.Duration) bool {
	if timeout <= 0 {
		<-s.permits
		return true
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-s.permits:
		return true
	case <-t.C:
		return false
	}
}
