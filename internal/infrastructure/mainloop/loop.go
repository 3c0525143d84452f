// Package mainloop provides a minimal owning-context executor and the
// single-shot deferred task built on it. It stands in for the engine main
// loop in headless builds and tests; GTK embedders back the same port with
// glib idle callbacks instead.
package mainloop

import "sync"

// Loop runs posted tasks sequentially on one goroutine, in post order. All
// tab state mutations are expected to happen on this context.
type Loop struct {
	tasks chan func()
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewLoop creates and starts a loop.
func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan func(), 64),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.stop:
			// Drain whatever was posted before the stop.
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues a task. Never blocks the caller unless the queue is full.
func (l *Loop) Post(task func()) {
	select {
	case l.tasks <- task:
	case <-l.stop:
	}
}

// Stop drains pending tasks and stops the loop. Safe to call twice.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stop) })
	<-l.done
}

// DeferredTask is a single-shot, zero-delay, cancellable deferral on a Loop.
// It implements port.DeferredScheduler: scheduling replaces any pending
// callback, and Cancel drops it. The generation counter lets a superseded or
// cancelled posting detect that it must not run.
type DeferredTask struct {
	loop *Loop

	mu  sync.Mutex
	gen uint64
	fn  func()
}

// NewDeferredTask creates a deferred task bound to loop.
func NewDeferredTask(loop *Loop) *DeferredTask {
	return &DeferredTask{loop: loop}
}

// ScheduleImmediate queues fn to run once on the loop, replacing any pending
// callback.
func (d *DeferredTask) ScheduleImmediate(fn func()) {
	d.mu.Lock()
	d.gen++
	d.fn = fn
	gen := d.gen
	d.mu.Unlock()

	d.loop.Post(func() { d.fire(gen) })
}

// Cancel drops the pending callback, if any.
func (d *DeferredTask) Cancel() {
	d.mu.Lock()
	d.gen++
	d.fn = nil
	d.mu.Unlock()
}

func (d *DeferredTask) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.fn == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.fn = nil
	d.mu.Unlock()

	fn()
}
