package usecase_test

import (
	"context"
	"testing"

	"github.com/plumekit/geoperm/internal/application/port"
	"github.com/plumekit/geoperm/internal/application/usecase"
	"github.com/plumekit/geoperm/internal/domain/entity"
	"github.com/plumekit/geoperm/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	originA = entity.Origin("https://a.example.com")
	originB = entity.Origin("https://b.example.com")
	originC = entity.Origin("https://c.example.com")
)

func testContext() context.Context {
	logger := logging.NewFromConfigValues("debug", "console")
	return logging.WithContext(context.Background(), logger)
}

type fakePrompter struct {
	shown  []entity.Origin
	hidden int
}

func (p *fakePrompter) ShowPrompt(_ context.Context, origin entity.Origin) {
	p.shown = append(p.shown, origin)
}

func (p *fakePrompter) HidePrompt(_ context.Context) {
	p.hidden++
}

type fakeConsumer struct {
	origin   entity.Origin
	received []bool
}

func (c *fakeConsumer) SetAllowed(allow bool) {
	c.received = append(c.received, allow)
}

type fakeFrameTree struct {
	consumers []*fakeConsumer
}

func (f *fakeFrameTree) ForEachConsumer(fn func(entity.Origin, port.ConsumerHandle)) {
	for _, c := range f.consumers {
		fn(c.origin, c)
	}
}

func (f *fakeFrameTree) addConsumer(origin entity.Origin) *fakeConsumer {
	c := &fakeConsumer{origin: origin}
	f.consumers = append(f.consumers, c)
	return c
}

// manualScheduler holds the deferred callback until the test fires it,
// mirroring the single-shot replace semantics of the port.
type manualScheduler struct {
	pending   func()
	scheduled int
	cancelled int
}

func (s *manualScheduler) ScheduleImmediate(fn func()) {
	s.pending = fn
	s.scheduled++
}

func (s *manualScheduler) Cancel() {
	s.pending = nil
	s.cancelled++
}

func (s *manualScheduler) fire() {
	if s.pending == nil {
		return
	}
	fn := s.pending
	s.pending = nil
	fn()
}

type tab struct {
	negotiator *usecase.Negotiator
	prompter   *fakePrompter
	frames     *fakeFrameTree
	sched      *manualScheduler
}

func newTab(shared *usecase.SharedPermissions) *tab {
	t := &tab{
		prompter: &fakePrompter{},
		frames:   &fakeFrameTree{},
		sched:    &manualScheduler{},
	}
	t.negotiator = usecase.NewNegotiator(shared, t.prompter, t.frames, t.sched)
	return t
}

func TestResolve_PromptsForUnknownOrigin(t *testing.T) {
	ctx := testContext()
	tab := newTab(usecase.NewSharedPermissions(nil))
	consumer := tab.frames.addConsumer(originA)

	tab.negotiator.Resolve(ctx, originA)

	assert.Equal(t, []entity.Origin{originA}, tab.prompter.shown)
	assert.Empty(t, consumer.received, "no decision exists yet")
	assert.Zero(t, tab.sched.scheduled, "prompting must not schedule a callback")
}

func TestResolve_CacheHitIsDeliveredAsynchronously(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	shared.Record(ctx, originA, true)

	tab := newTab(shared)
	consumer := tab.frames.addConsumer(originA)

	tab.negotiator.Resolve(ctx, originA)

	assert.Empty(t, tab.prompter.shown, "cached origin must not prompt")
	assert.Empty(t, consumer.received, "delivery must wait for the deferred tick")

	tab.sched.fire()
	assert.Equal(t, []bool{true}, consumer.received)
}

func TestResolve_TemporaryDecisionPrecedesPermanent(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	tab := newTab(shared)
	consumer := tab.frames.addConsumer(originA)

	tab.negotiator.Resolve(ctx, originA)
	require.Equal(t, []entity.Origin{originA}, tab.prompter.shown)

	// Another tab records a permanent allow while our prompt is up; the
	// decision is still recorded temporarily for this tab.
	shared.Record(ctx, originA, true)
	tab.negotiator.ProvideDecision(ctx, originA, false, false)
	require.Equal(t, []bool{false}, consumer.received)

	// The temporary deny wins over the permanent allow.
	tab.negotiator.Resolve(ctx, originA)
	tab.sched.fire()
	assert.Equal(t, []bool{false, false}, consumer.received)
	assert.True(t, shared.IsAllowed(originA), "permanent entry untouched")
}

func TestResolve_DuplicateInFlightRequestConverges(t *testing.T) {
	ctx := testContext()
	tab := newTab(usecase.NewSharedPermissions(nil))
	consumer := tab.frames.addConsumer(originA)

	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.Resolve(ctx, originA)

	assert.Equal(t, []entity.Origin{originA}, tab.prompter.shown, "one prompt for repeated requests")

	// A single decision answers all of them; nothing was queued, so no
	// further prompt follows.
	tab.negotiator.ProvideDecision(ctx, originA, true, false)
	assert.Equal(t, []bool{true}, consumer.received)
	assert.Equal(t, []entity.Origin{originA}, tab.prompter.shown)
}

func TestResolve_QueueDeduplicates(t *testing.T) {
	ctx := testContext()
	tab := newTab(usecase.NewSharedPermissions(nil))
	consumerB := tab.frames.addConsumer(originB)

	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.Resolve(ctx, originB)
	tab.negotiator.Resolve(ctx, originB)

	tab.negotiator.ProvideDecision(ctx, originA, true, false)
	require.Equal(t, []entity.Origin{originA, originB}, tab.prompter.shown)

	// Only one queued entry for B: after it resolves, the queue is empty.
	tab.negotiator.ProvideDecision(ctx, originB, false, false)
	assert.Equal(t, []bool{false}, consumerB.received)
	assert.Equal(t, []entity.Origin{originA, originB}, tab.prompter.shown)
}

func TestProvideDecision_RotatesQueueFIFO(t *testing.T) {
	ctx := testContext()
	tab := newTab(usecase.NewSharedPermissions(nil))
	consumerA := tab.frames.addConsumer(originA)
	consumerB := tab.frames.addConsumer(originB)
	consumerC := tab.frames.addConsumer(originC)

	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.Resolve(ctx, originB)
	tab.negotiator.Resolve(ctx, originC)

	require.Equal(t, []entity.Origin{originA}, tab.prompter.shown)

	tab.negotiator.ProvideDecision(ctx, originA, true, false)
	assert.Equal(t, []entity.Origin{originA, originB}, tab.prompter.shown, "B before C")
	assert.Equal(t, []bool{true}, consumerA.received)

	tab.negotiator.ProvideDecision(ctx, originB, false, false)
	assert.Equal(t, []entity.Origin{originA, originB, originC}, tab.prompter.shown)
	assert.Equal(t, []bool{false}, consumerB.received)

	tab.negotiator.ProvideDecision(ctx, originC, true, false)
	assert.Equal(t, []bool{true}, consumerC.received)
	assert.Equal(t, []entity.Origin{originA, originB, originC}, tab.prompter.shown, "queue drained")
}

func TestProvideDecision_StaleOriginIsDropped(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	tab := newTab(shared)
	consumer := tab.frames.addConsumer(originA)

	tab.negotiator.Resolve(ctx, originA)

	// A decision for an origin that is not in progress mutates nothing.
	tab.negotiator.ProvideDecision(ctx, originB, true, true)
	assert.Empty(t, consumer.received)
	assert.Empty(t, shared.Origins())

	// The in-flight request still resolves normally afterwards.
	tab.negotiator.ProvideDecision(ctx, originA, true, false)
	assert.Equal(t, []bool{true}, consumer.received)
}

func TestProvideDecision_DeliversToAllMatchingConsumers(t *testing.T) {
	ctx := testContext()
	tab := newTab(usecase.NewSharedPermissions(nil))
	first := tab.frames.addConsumer(originA)
	second := tab.frames.addConsumer(originA)
	other := tab.frames.addConsumer(originB)

	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.ProvideDecision(ctx, originA, true, false)

	assert.Equal(t, []bool{true}, first.received)
	assert.Equal(t, []bool{true}, second.received)
	assert.Empty(t, other.received, "different origin untouched")
}

func TestProvideDecision_RememberWritesPermanentStore(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	tab := newTab(shared)

	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.ProvideDecision(ctx, originA, true, true)

	assert.True(t, shared.IsAllowed(originA))
	assert.Equal(t, []entity.Origin{originA}, shared.Origins())
}

func TestClearPermanentEntryFallsThroughToPrompt(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	tab := newTab(shared)

	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.ProvideDecision(ctx, originA, true, true)
	require.Equal(t, []entity.Origin{originA}, shared.Origins())

	// Cached resolves never prompt.
	tab.negotiator.Resolve(ctx, originA)
	tab.sched.fire()
	require.Equal(t, []entity.Origin{originA}, tab.prompter.shown)

	// After a clear the origin is unknown again and prompts.
	shared.Clear(ctx, originA)
	assert.Empty(t, shared.Origins())
	tab.negotiator.Resolve(ctx, originA)
	assert.Equal(t, []entity.Origin{originA, originA}, tab.prompter.shown)
}

func TestRememberBroadcastsCancellationToOtherTabs(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)

	tab1 := newTab(shared)
	tab2 := newTab(shared)
	consumer2 := tab2.frames.addConsumer(originA)

	// Tab 1 prompts for A. Tab 2 prompts for B and queues A behind it.
	tab1.negotiator.Resolve(ctx, originA)
	tab2.negotiator.Resolve(ctx, originB)
	tab2.negotiator.Resolve(ctx, originA)

	tab1.negotiator.ProvideDecision(ctx, originA, true, true)

	// Tab 2's queued request resolved without a prompt.
	assert.Equal(t, []bool{true}, consumer2.received)
	assert.Equal(t, []entity.Origin{originB}, tab2.prompter.shown)
	assert.True(t, shared.IsAllowed(originA))

	// A was removed from tab 2's queue: resolving B prompts nothing further.
	tab2.negotiator.ProvideDecision(ctx, originB, false, false)
	assert.Equal(t, []entity.Origin{originB}, tab2.prompter.shown)
}

func TestTemporaryDecisionDoesNotBroadcast(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)

	tab1 := newTab(shared)
	tab2 := newTab(shared)
	consumer2 := tab2.frames.addConsumer(originA)

	tab1.negotiator.Resolve(ctx, originA)
	tab2.negotiator.Resolve(ctx, originB)
	tab2.negotiator.Resolve(ctx, originA)

	tab1.negotiator.ProvideDecision(ctx, originA, true, false)

	// Tab 2 keeps its queued request: it prompts once B resolves.
	assert.Empty(t, consumer2.received)
	tab2.negotiator.ProvideDecision(ctx, originB, false, false)
	assert.Equal(t, []entity.Origin{originB, originA}, tab2.prompter.shown)
}

func TestCancelQueued_NoopWhenOriginNotQueued(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	tab := newTab(shared)
	consumer := tab.frames.addConsumer(originA)

	tab.negotiator.CancelQueued(ctx, originA)

	assert.Empty(t, consumer.received)
	assert.Empty(t, tab.prompter.shown)
}

func TestCancelQueued_PanicsWithoutPermanentEntry(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	tab := newTab(shared)

	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.Resolve(ctx, originB)

	// Cancellation is only ever broadcast right after a permanent write;
	// reaching it without one is a programming error.
	require.Panics(t, func() {
		tab.negotiator.CancelQueued(ctx, originB)
	})
}

func TestReset_ClearsTabStateAndHidesPrompt(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	tab := newTab(shared)
	consumer := tab.frames.addConsumer(originA)

	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.Resolve(ctx, originB)

	tab.negotiator.Reset(ctx)

	assert.Equal(t, 1, tab.prompter.hidden)
	assert.Equal(t, 1, tab.sched.cancelled)

	// The in-flight decision arriving after reset hits the stale guard.
	tab.negotiator.ProvideDecision(ctx, originA, true, true)
	assert.Empty(t, consumer.received)
	assert.Empty(t, shared.Origins())

	// A fresh request starts a fresh prompt cycle.
	tab.negotiator.Resolve(ctx, originA)
	assert.Equal(t, []entity.Origin{originA, originA}, tab.prompter.shown)
}

func TestReset_IsIdempotentAndDropsDeferredDelivery(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	shared.Record(ctx, originA, true)

	tab := newTab(shared)
	consumer := tab.frames.addConsumer(originA)

	tab.negotiator.Resolve(ctx, originA)
	require.Equal(t, 1, tab.sched.scheduled)

	tab.negotiator.Reset(ctx)
	tab.negotiator.Reset(ctx)

	assert.Equal(t, 2, tab.prompter.hidden)
	assert.Equal(t, 2, tab.sched.cancelled)

	// Even a scheduler that fires anyway finds no payload left.
	tab.sched.fire()
	assert.Empty(t, consumer.received)
}

func TestDeferredDelivery_LastWriteWins(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)
	shared.Record(ctx, originA, true)
	shared.Record(ctx, originB, false)

	tab := newTab(shared)
	consumerA := tab.frames.addConsumer(originA)
	consumerB := tab.frames.addConsumer(originB)

	// Two cache hits before the loop ticks: only the newest payload survives.
	tab.negotiator.Resolve(ctx, originA)
	tab.negotiator.Resolve(ctx, originB)
	tab.sched.fire()
	tab.sched.fire()

	assert.Empty(t, consumerA.received)
	assert.Equal(t, []bool{false}, consumerB.received)
}

func TestClose_RemovesTabFromBroadcast(t *testing.T) {
	ctx := testContext()
	shared := usecase.NewSharedPermissions(nil)

	tab1 := newTab(shared)
	tab2 := newTab(shared)
	consumer2 := tab2.frames.addConsumer(originA)

	tab2.negotiator.Resolve(ctx, originB)
	tab2.negotiator.Resolve(ctx, originA)
	tab2.negotiator.Close()

	tab1.negotiator.Resolve(ctx, originA)
	tab1.negotiator.ProvideDecision(ctx, originA, true, true)

	// The closed tab is no longer reached by the broadcast.
	assert.Empty(t, consumer2.received)
}

func TestResolve_SeededStoreAnswersWithoutPrompt(t *testing.T) {
	ctx := testContext()
	repo := newFakeRepo()
	require.NoError(t, repo.Set(ctx, &entity.PermissionRecord{
		Origin:   originA,
		Decision: entity.PermissionGranted,
	}))

	shared := usecase.NewSharedPermissions(repo)
	require.NoError(t, shared.Load(ctx))

	tab := newTab(shared)
	consumer := tab.frames.addConsumer(originA)

	tab.negotiator.Resolve(ctx, originA)
	tab.sched.fire()

	assert.Empty(t, tab.prompter.shown)
	assert.Equal(t, []bool{true}, consumer.received)
}
