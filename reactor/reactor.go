// File: reactor/reactor.go
// Package reactor provides the single-threaded cooperative event loop that
// drives a Connection's read processing, message dispatch, write
// completions, and heartbeat checks on the reactor goroutine that owns it.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package reactor

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned by Post once the reactor has been stopped.
var ErrStopped = errors.New("reactor: stopped")

// Task is a unit of work posted to a Reactor.
type Task func()

// Timer is a handle to a scheduled Task; Stop prevents a pending (or future,
// for repeating timers) firing. Stop is idempotent.
type Timer interface {
	Stop()
}

// Reactor is the event loop abstraction the core depends on. Connections
// do their blocking socket reads and writes on their own goroutines and
// Post each result back as a closure that updates their state, and use
// ScheduleRepeating timers for heartbeats. A concrete Reactor is supplied by the embedder or, for this
// module's own servers, by Loop below.
type Reactor interface {
	// Post schedules task to run on the reactor's single worker goroutine.
	// Safe to call from any goroutine, including the worker goroutine
	// itself. Returns ErrStopped if the reactor has already stopped.
	Post(task Task) error

	// Schedule runs task once after d elapses, on the worker goroutine.
	Schedule(d time.Duration, task Task) Timer

	// ScheduleRepeating runs task every d, starting after the first d
	// elapses, on the worker goroutine, until the returned Timer is
	// stopped or the reactor stops.
	ScheduleRepeating(d time.Duration, task Task) Timer

	// Run blocks, processing posted tasks and timers, until ctx is
	// cancelled or Stop is called.
	Run(ctx context.Context) error

	// Stop requests the loop to drain and return from Run. Safe to call
	// more than once and from any goroutine.
	Stop()
}
