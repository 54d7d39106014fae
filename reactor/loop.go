// File: reactor/loop.go
// Package reactor: Loop is the default single-worker Reactor implementation,
// adapted from the teacher's internal/concurrency/executor.go (itself built
// on github.com/eapache/queue) and internal/concurrency/eventloop.go. Unlike
// the teacher's busy-spin dequeue, Loop blocks on a condition variable
// between posted tasks — a single-connection-table server spends most of
// its time idle, and a spin loop there just burns a core for nothing.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package reactor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/netcore/affinity"
)

// Loop is a Reactor backed by a FIFO task queue drained by one goroutine.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	stopped bool
	done    chan struct{}
	cpu     int
}

// Option configures a Loop at construction.
type Option func(*Loop)

// WithCPUAffinity pins the loop's worker goroutine to a logical CPU once Run
// starts. Best-effort: platforms without affinity support (see the affinity
// package) silently skip it.
func WithCPUAffinity(cpu int) Option {
	return func(l *Loop) { l.cpu = cpu }
}

// NewLoop constructs a Loop ready to Run.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		tasks: queue.New(),
		done:  make(chan struct{}),
		cpu:   -1,
	}
	l.cond = sync.NewCond(&l.mu)
	for _, o := range opts {
		o(l)
	}
	return l
}

// Post implements Reactor.
func (l *Loop) Post(task Task) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.tasks.Add(task)
	l.mu.Unlock()
	l.cond.Signal()
	return nil
}

// Run implements Reactor. It blocks until ctx is cancelled or Stop is
// called, draining any remaining posted tasks before returning so that a
// close sequence started just before shutdown still completes.
func (l *Loop) Run(ctx context.Context) error {
	if l.cpu >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		_ = affinity.SetAffinity(l.cpu)
	}

	stopOnCancel := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-stopOnCancel:
		}
	}()
	defer close(stopOnCancel)

	for {
		l.mu.Lock()
		for l.tasks.Length() == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.tasks.Length() == 0 && l.stopped {
			l.mu.Unlock()
			close(l.done)
			return ctx.Err()
		}
		task := l.tasks.Remove().(Task)
		l.mu.Unlock()
		task()
	}
}

// Stop implements Reactor. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Done returns a channel closed once Run has drained its queue and
// returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Schedule implements Reactor using a one-shot timer that posts task.
func (l *Loop) Schedule(d time.Duration, task Task) Timer {
	t := &oneShotTimer{}
	t.t = time.AfterFunc(d, func() {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if !stopped {
			_ = l.Post(task)
		}
	})
	return t
}

type oneShotTimer struct {
	mu      sync.Mutex
	stopped bool
	t       *time.Timer
}

func (t *oneShotTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.t.Stop()
}

// ScheduleRepeating implements Reactor using a ticker goroutine that posts
// task every d, until Stop is called or the reactor itself stops (detected
// when Post starts returning ErrStopped).
func (l *Loop) ScheduleRepeating(d time.Duration, task Task) Timer {
	rt := &repeatingTimer{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-rt.stop:
				return
			case <-ticker.C:
				if err := l.Post(task); err != nil {
					return
				}
			}
		}
	}()
	return rt
}

type repeatingTimer struct {
	stop chan struct{}
	once sync.Once
}

func (rt *repeatingTimer) Stop() {
	rt.once.Do(func() { close(rt.stop) })
}

var _ Reactor = (*Loop)(nil)
