package port

// DeferredScheduler defers a callback by one tick of the owning context's
// event loop. Single-shot: scheduling while a callback is pending replaces
// it. Used to keep cache-hit delivery asynchronous, so consumers observe the
// same callback timing whether the answer came from cache or from a prompt.
//
// GTK embedders back this with glib.IdleAdd; tests and headless builds use
// mainloop.DeferredTask.
type DeferredScheduler interface {
	// ScheduleImmediate queues fn to run once, as soon as the owning
	// context drains its queue. Returns without running fn.
	ScheduleImmediate(fn func())

	// Cancel drops any pending callback. No-op when nothing is pending.
	Cancel()
}
