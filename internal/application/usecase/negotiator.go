package usecase

import (
	"context"
	"slices"
	"sync"

	"github.com/plumekit/geoperm/internal/application/port"
	"github.com/plumekit/geoperm/internal/domain/entity"
	"github.com/plumekit/geoperm/internal/logging"
)

// Negotiator serializes geolocation permission requests for one tab. At most
// one origin is ever being prompted for; requests for other origins queue in
// FIFO order behind it, and requests for the origin already in flight
// converge onto the outstanding prompt. Decisions fan out by origin to every
// matching consumer in the tab's frame tree.
//
// Tab-local state is guarded by its own mutex: the deciding tab's goroutine
// reaches into other tabs' queues during the cancellation broadcast. The lock
// is never held across prompter, scheduler, or consumer callbacks, and it is
// always ordered before the shared lock.
type Negotiator struct {
	shared   *SharedPermissions
	prompter port.Prompter
	frames   port.FrameWalker
	sched    port.DeferredScheduler

	mu               sync.Mutex
	temporary        entity.PermissionsMap
	originInProgress entity.Origin
	queued           []entity.Origin
	deferred         deferredCallback
}

// deferredCallback is the payload of the single pending deferred delivery.
// A newer cache hit overwrites it; only the latest undelivered one survives.
type deferredCallback struct {
	origin entity.Origin
	allow  bool
	set    bool
}

// NewNegotiator creates the negotiator for a new tab and registers it for
// cross-tab cancellation. Callers must Close it when the tab goes away.
func NewNegotiator(shared *SharedPermissions, prompter port.Prompter, frames port.FrameWalker, sched port.DeferredScheduler) *Negotiator {
	n := &Negotiator{
		shared:    shared,
		prompter:  prompter,
		frames:    frames,
		sched:     sched,
		temporary: entity.PermissionsMap{},
	}
	shared.register(n)
	return n
}

// Close removes the negotiator from the cross-tab registry. Temporary
// decisions and the queue are not touched; those reset on navigation, not on
// tab destruction.
func (n *Negotiator) Close() {
	n.shared.unregister(n)
}

// Resolve answers a geolocation permission request for origin. A cached
// decision (temporary first, then permanent) is delivered through the
// deferred callback path; otherwise the origin is prompted for, or queued
// behind the prompt already in flight. Never blocks, never answers
// synchronously.
func (n *Negotiator) Resolve(ctx context.Context, origin entity.Origin) {
	log := logging.FromContext(ctx).With().
		Str("component", "geolocation").
		Str("origin", origin.String()).
		Logger()

	n.mu.Lock()

	// Temporary decisions for this tab take precedence over permanent ones:
	// the user may have made a one-off choice after a remembered one existed.
	if allow, ok := n.temporary[origin]; ok {
		n.deferred = deferredCallback{origin: origin, allow: allow, set: true}
		n.mu.Unlock()
		n.sched.ScheduleImmediate(func() { n.fireDeferred(ctx) })
		log.Debug().Bool("allow", allow).Msg("resolved from temporary decision")
		return
	}

	if allow, ok := n.shared.Lookup(origin); ok {
		n.deferred = deferredCallback{origin: origin, allow: allow, set: true}
		n.mu.Unlock()
		n.sched.ScheduleImmediate(func() { n.fireDeferred(ctx) })
		log.Debug().Bool("allow", allow).Msg("resolved from permanent decision")
		return
	}

	// Nothing in flight for this tab: prompt the user. The result is routed
	// back to this negotiator by the embedder, so no request ID is needed.
	if n.originInProgress.IsEmpty() {
		n.originInProgress = origin
		n.mu.Unlock()
		n.prompter.ShowPrompt(ctx, origin)
		log.Debug().Msg("prompting for permission")
		return
	}

	// A repeated request for the in-flight origin converges onto the
	// outstanding prompt. Anything else queues once.
	if origin != n.originInProgress && !slices.Contains(n.queued, origin) {
		n.queued = append(n.queued, origin)
		log.Debug().Int("queue_len", len(n.queued)).Msg("request queued behind prompt in progress")
	}
	n.mu.Unlock()
}

// ProvideDecision reports the user's answer for origin. A decision for any
// origin other than the one in progress is dropped silently: it is a stale
// result marshalled back after this tab reset or moved on. The decision is
// fanned out to this tab's consumers, recorded (permanently when remember is
// set, which also cancels matching queued requests in every other tab), and
// the next queued origin, if any, is prompted for.
func (n *Negotiator) ProvideDecision(ctx context.Context, origin entity.Origin, allow, remember bool) {
	log := logging.FromContext(ctx).With().
		Str("component", "geolocation").
		Str("origin", origin.String()).
		Bool("allow", allow).
		Bool("remember", remember).
		Logger()

	n.mu.Lock()
	inProgress := n.originInProgress
	if origin != inProgress {
		n.mu.Unlock()
		log.Debug().Str("in_progress", inProgress.String()).Msg("stale permission decision dropped")
		return
	}
	n.mu.Unlock()

	n.callbackFrames(ctx, inProgress, allow)
	n.recordDecision(ctx, inProgress, origin, allow, remember)

	if remember {
		n.shared.cancelPendingInOtherTabs(ctx, n, inProgress)
	}

	n.mu.Lock()
	if len(n.queued) > 0 {
		next := n.queued[0]
		n.queued = n.queued[1:]
		n.originInProgress = next
		n.mu.Unlock()
		n.prompter.ShowPrompt(ctx, next)
		log.Debug().Str("next", next.String()).Msg("prompting for next queued origin")
		return
	}
	n.originInProgress = ""
	n.mu.Unlock()
}

// recordDecision stores the decision under the in-progress origin. The stale
// guard already rejected mismatched origins, so keying by inProgress and
// deleting the temporary entry by the passed origin touch the same key.
func (n *Negotiator) recordDecision(ctx context.Context, inProgress, origin entity.Origin, allow, remember bool) {
	if remember {
		n.shared.Record(ctx, inProgress, allow)

		// Drop any temporary entry so a later Clear of the permanent
		// decision is not masked by the leftover.
		n.mu.Lock()
		delete(n.temporary, origin)
		n.mu.Unlock()
		return
	}

	// Another tab may have recorded a permanent decision for this origin
	// while our prompt was up; the temporary one still wins in this tab.
	n.mu.Lock()
	n.temporary[inProgress] = allow
	n.mu.Unlock()
}

// CancelQueued removes a queued request for origin and answers it from the
// permanent store. Invoked on every other negotiator when a tab records a
// permanent decision, so the permanent entry must exist. Tabs without origin
// queued are unaffected.
func (n *Negotiator) CancelQueued(ctx context.Context, origin entity.Origin) {
	n.mu.Lock()
	idx := slices.Index(n.queued, origin)
	if idx < 0 {
		n.mu.Unlock()
		return
	}
	n.queued = slices.Delete(n.queued, idx, idx+1)
	n.mu.Unlock()

	allow := n.shared.mustAllowed(origin)

	logging.FromContext(ctx).Debug().
		Str("component", "geolocation").
		Str("origin", origin.String()).
		Bool("allow", allow).
		Msg("queued request cancelled by cross-tab decision")

	n.callbackFrames(ctx, origin, allow)
}

// Reset clears all tab-scoped permission state and hides any visible prompt.
// Called on navigation. A decision still marshalling back for the old page
// is dropped afterwards by the stale guard in ProvideDecision.
func (n *Negotiator) Reset(ctx context.Context) {
	n.mu.Lock()
	n.originInProgress = ""
	n.queued = nil
	n.temporary = entity.PermissionsMap{}
	n.deferred = deferredCallback{}
	n.mu.Unlock()

	n.sched.Cancel()
	n.prompter.HidePrompt(ctx)

	logging.FromContext(ctx).Debug().
		Str("component", "geolocation").
		Msg("tab permission state reset")
}

// fireDeferred delivers the pending cache-hit payload, if reset has not
// cleared it in the meantime.
func (n *Negotiator) fireDeferred(ctx context.Context) {
	n.mu.Lock()
	payload := n.deferred
	n.deferred = deferredCallback{}
	n.mu.Unlock()

	if !payload.set {
		return
	}
	n.callbackFrames(ctx, payload.origin, payload.allow)
}

// callbackFrames delivers allow to every consumer in this tab whose origin
// matches. Zero matches is normal: the requesting frame may be gone by now.
func (n *Negotiator) callbackFrames(ctx context.Context, origin entity.Origin, allow bool) {
	delivered := 0
	n.frames.ForEachConsumer(func(o entity.Origin, consumer port.ConsumerHandle) {
		if o != origin || consumer == nil {
			return
		}
		consumer.SetAllowed(allow)
		delivered++
	})

	logging.FromContext(ctx).Trace().
		Str("component", "geolocation").
		Str("origin", origin.String()).
		Bool("allow", allow).
		Int("consumers", delivered).
		Msg("decision delivered to frames")
}
