package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fluxbotics/visionflow/pkg/compiler"
	"github.com/fluxbotics/visionflow/pkg/component"
	"github.com/fluxbotics/visionflow/pkg/concurrency"
	"github.com/fluxbotics/visionflow/pkg/eventsink"
	"github.com/fluxbotics/visionflow/pkg/graph"
	"github.com/fluxbotics/visionflow/pkg/interpolate"
	"github.com/fluxbotics/visionflow/pkg/telemetry"
	"github.com/fluxbotics/visionflow/pkg/value"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config configures a Runtime. Zero values fall back to sensible
// defaults: MaxRunning 1, NumThreads GOMAXPROCS, a no-op registry,
// a no-op event sink, and a no-op logger.
type Config struct {
	MaxRunning int
	NumThreads int
	Registry   *component.Registry
	EventSink  eventsink.EventSink
	Logger     *zap.Logger

	// Tracing, if set, is passed to telemetry.SetupTracing during
	// NewRuntime; its shutdown func is invoked from EndSource. Left nil,
	// the runtime's spans (see pkg/telemetry/span.go) still get created
	// but exported to whatever otel.TracerProvider is already globally
	// configured, or nowhere if none is.
	Tracing *telemetry.TracingConfig
}

// Runtime dispatches invocations of a compiled Plan across concurrent
// Runs, per §4.3 of the data model: admission control guards begin_run,
// a fixed worker pool executes Ready invocations, and per-Run scope
// bookkeeping drives aggregation windows closed deterministically.
type Runtime struct {
	plan       *compiler.Plan
	registry   *component.Registry
	admission  *concurrency.Limiter
	sink       eventsink.EventSink
	logger     *zap.Logger
	pool       *workerPool
	collapsers map[compiler.ScopeID]string

	ctx    context.Context
	cancel context.CancelFunc

	tracingShutdown func(context.Context) error

	mu   sync.Mutex
	runs map[uuid.UUID]*Run
}

// NewRuntime builds a Runtime against plan, starting its worker pool.
func NewRuntime(plan *compiler.Plan, cfg Config) *Runtime {
	if cfg.Registry == nil {
		cfg.Registry = component.NewRegistry()
	}
	if cfg.EventSink == nil {
		cfg.EventSink = eventsink.NoOpSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	maxRunning := cfg.MaxRunning
	if maxRunning <= 0 {
		maxRunning = 1
	}

	collapsers := make(map[compiler.ScopeID]string)
	for name, cp := range plan.Components {
		if cp.CollapsesScope != 0 {
			collapsers[cp.CollapsesScope] = name
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		plan:       plan,
		registry:   cfg.Registry,
		admission:  concurrency.NewLimiter(maxRunning),
		sink:       cfg.EventSink,
		logger:     cfg.Logger,
		collapsers: collapsers,
		ctx:        ctx,
		cancel:     cancel,
		runs:       make(map[uuid.UUID]*Run),
	}
	rt.pool = newWorkerPool(cfg.NumThreads, 0, rt.executeInvocation, cfg.Logger)
	rt.pool.Start(ctx)

	if cfg.Tracing != nil {
		shutdown, err := telemetry.SetupTracing(ctx, *cfg.Tracing, cfg.Logger)
		if err != nil {
			cfg.Logger.Warn("failed to setup tracing, continuing without it", zap.Error(err))
		} else {
			rt.tracingShutdown = shutdown
		}
	}

	return rt
}

// shortID renders the 32-hex-char pipeline id form of a run id, per §3's
// %i interpolation rule.
func shortID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

var finishType = value.NewType("$finish")

// finishValue is the payload $finish deliveries carry. Per §4.3 its
// payload is always ignored by ref-wired consumers; a shared sentinel
// avoids allocating one per delivery.
var finishValue = value.New(finishType, struct{}{})

// BeginRun admits a new Run, fast-failing with RunDroppedError if
// max_running is already saturated. entryValues maps each entry
// component's name to the value it is seeded with on its primary
// output, as if that component had itself just run and emitted it.
func (rt *Runtime) BeginRun(sourceName string, entryValues map[string]value.Value) (*Run, error) {
	if !rt.admission.TryAcquire() {
		rt.publishEvent(uuid.Nil, sourceName, eventsink.EventRunDropped, "max_running exceeded")
		return nil, &RunDroppedError{SourceName: sourceName, Reason: "max_running exceeded"}
	}

	id := uuid.New()
	run := newRun(id, sourceName, rt.plan)

	rt.mu.Lock()
	rt.runs[id] = run
	rt.mu.Unlock()

	rt.publishEvent(id, sourceName, eventsink.EventRunBegun, "")

	run.mu.Lock()
	for _, entryName := range rt.plan.Entries {
		entryPlan, ok := rt.plan.Components[entryName]
		if !ok {
			continue
		}
		inv := run.getOrCreate(entryName, nil)
		var emitted []emittedValue
		if v, has := entryValues[entryName]; has {
			channel := entryPlan.Descriptor.PrimaryOutput
			emitted = []emittedValue{{channel: channel, value: v}}
		}
		rt.processFinish(run, inv, emitted, Emitted)
	}
	run.mu.Unlock()

	return run, nil
}

// EndSource drains the worker pool (letting already-dispatched
// invocations finish) and tears down the runtime's background context.
// It is the graceful-shutdown hook of §6; it does not retire Runs still
// in flight, it only stops admitting new dispatch work.
func (rt *Runtime) EndSource() {
	rt.pool.Stop()
	rt.cancel()
	if rt.tracingShutdown != nil {
		if err := telemetry.ShutdownTracing(rt.tracingShutdown, rt.logger); err != nil {
			rt.logger.Error("failed to shut down tracing", zap.Error(err))
		}
	}
}

// Lookup returns a previously begun Run by id, for callers that want to
// wait on Run.Done().
func (rt *Runtime) Lookup(id uuid.UUID) (*Run, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	r, ok := rt.runs[id]
	return r, ok
}

func (rt *Runtime) publishEvent(id uuid.UUID, sourceName string, kind eventsink.EventKind, detail string) {
	env := eventsink.NewEnvelope(id, sourceName, kind, time.Now().Unix(), detail)
	go func() {
		ctx, cancel := context.WithTimeout(rt.ctx, 2*time.Second)
		defer cancel()
		if err := rt.sink.Publish(ctx, env); err != nil {
			rt.logger.Warn("event sink publish failed", zap.Error(err), zap.String("kind", string(kind)))
		}
	}()
}

// executeInvocation is the worker pool's execute callback: it runs the
// registered component for inv and folds the result back into run
// through processFinish.
func (rt *Runtime) executeInvocation(ctx context.Context, run *Run, inv *invocation) {
	run.mu.Lock()
	inv.status = Running
	run.mu.Unlock()

	comp, ok := rt.registry.Lookup(inv.plan.Descriptor.PluginType)
	if !ok {
		err := fmt.Errorf("no component registered for plugin type %q", inv.plan.Descriptor.PluginType)
		wrapped := &ComponentFailedError{RunID: run.ID.String(), Component: inv.component, Cause: err}
		rt.logger.Error("invocation failed", zap.Error(wrapped))
		telemetry.ReportError(wrapped, run.ID.String(), inv.component)
		run.mu.Lock()
		rt.processFinish(run, inv, nil, Emitted)
		run.mu.Unlock()
		return
	}

	pipelineID := shortID(run.ID)
	label := interpolate.Interpolate("%N/%i", interpolate.InterpolationContext{
		SourceName: run.SourceName,
		PipelineID: pipelineID,
	}, interpolate.AsIs)

	spanCtx, span := telemetry.StartSpan(ctx, inv.component, rt.logger,
		zap.String("run_id", run.ID.String()),
		zap.String("pipeline_id", pipelineID),
		zap.String("component", inv.component),
		zap.String("source_name", run.SourceName),
		zap.String("pipeline_label", label))
	defer span.End()

	rctx := newRunContext(spanCtx, run, inv, span)
	if runErr := comp.Run(rctx); runErr != nil {
		wrapped := &ComponentFailedError{RunID: run.ID.String(), Component: inv.component, Cause: runErr}
		span.RecordError(wrapped)
		telemetry.ReportError(wrapped, run.ID.String(), inv.component)
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	rt.processFinish(run, inv, rctx.emitted, Emitted)
}

// maybeSchedule promotes inv to Ready and submits it to the worker pool
// once every plain required input has arrived and, for an aggregating
// component, its collapsed scope has closed. Callers must hold run.mu.
func (rt *Runtime) maybeSchedule(run *Run, inv *invocation) {
	if inv.status != Pending {
		return
	}
	closed := true
	if inv.plan.CollapsesScope != 0 {
		closed = run.scopeClosed(inv.plan.CollapsesScope, inv.prefix)
	}
	if !inv.readyForDispatch(closed) {
		return
	}
	inv.status = Ready
	rt.pool.Submit(run, inv)
}

// applyPending delivers any shallow broadcast values already recorded
// for inv's component that apply to inv's prefix. Callers must hold
// run.mu; called at most once per invocation.
func (rt *Runtime) applyPending(run *Run, inv *invocation) {
	if inv.primedFromPending {
		return
	}
	inv.primedFromPending = true
	for _, e := range run.pending[inv.component] {
		if !isPrefixOf(e.prefix, inv.prefix) {
			continue
		}
		if e.input == poisonSentinel {
			rt.processFinish(run, inv, nil, Skipped)
			return
		}
		inv.deliver(e.input, e.value)
	}
}

func isPrefixOf(a, b Stack) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// deliverRoute routes one produced value (deliveredStack already carries
// any scope index the emitting channel minted) to a single compiled
// route. When the route's consumer runs at a shallower depth than the
// value's own stack, the stack is truncated to the consumer's compiled
// depth (the elem/ref aggregation mechanic). When the consumer runs at a
// deeper depth than the value's stack, the value is a broadcast that
// applies to every deeper invocation sharing this prefix, present or
// future. Callers must hold run.mu.
func (rt *Runtime) deliverRoute(run *Run, route compiler.RouteEntry, deliveredStack Stack, v value.Value) {
	consumerPlan, ok := rt.plan.Components[route.ConsumerComponent]
	if !ok {
		return
	}
	targetLen := len(consumerPlan.Stack)

	if len(deliveredStack) >= targetLen {
		targetPrefix := deliveredStack.Truncate(targetLen)
		inv := run.getOrCreate(route.ConsumerComponent, targetPrefix)
		if inv.finished {
			return
		}
		rt.applyPending(run, inv)
		if inv.finished {
			return
		}
		inv.deliver(route.ConsumerInput, v)
		rt.maybeSchedule(run, inv)
		return
	}

	run.pending[route.ConsumerComponent] = append(run.pending[route.ConsumerComponent], pendingEntry{
		input:  route.ConsumerInput,
		prefix: deliveredStack,
		value:  v,
	})
	for _, inv := range run.invocations {
		if inv.component != route.ConsumerComponent || inv.finished {
			continue
		}
		if isPrefixOf(deliveredStack, inv.prefix) {
			inv.deliver(route.ConsumerInput, v)
			rt.maybeSchedule(run, inv)
		}
	}
}

// promoteIfClosed checks whether (scopeID, parentPrefix) has closed and,
// if so, nudges its collapsing aggregator's invocation towards Ready.
// Callers must hold run.mu.
func (rt *Runtime) promoteIfClosed(run *Run, scopeID compiler.ScopeID, parentPrefix Stack) {
	if !run.scopeClosed(scopeID, parentPrefix) {
		return
	}
	aggName, ok := rt.collapsers[scopeID]
	if !ok {
		return
	}
	inv := run.getOrCreate(aggName, parentPrefix)
	if inv.finished {
		return
	}
	rt.applyPending(run, inv)
	if inv.finished {
		return
	}
	rt.maybeSchedule(run, inv)
}

// processFinish folds one invocation's outcome into its Run: it routes
// every emitted value (including the synthetic $finish every invocation
// produces), poisons required-input consumers of channels that were
// never emitted (cascading Skipped status through the graph), mints and
// settles broadcast-scope tokens, and retires the Run once in_flight and
// every scope reach zero. Callers must hold run.mu; it may recurse into
// itself (still under the same lock) to cascade a Skip.
func (rt *Runtime) processFinish(run *Run, inv *invocation, emitted []emittedValue, status InvocationStatus) {
	if run.cancelled || inv.finished {
		return
	}
	inv.finished = true
	inv.status = status

	plan := inv.plan
	emittedChannels := make(map[string]bool, len(emitted))
	for _, e := range emitted {
		emittedChannels[e.channel] = true
	}

	// 1. Route every value the component actually emitted, minting one
	// broadcast token per Multiple-channel emit call.
	multiIndex := make(map[string]int)
	// directReturns counts, per scope, how many of this batch's branches
	// landed straight on a collapsing aggregator's own scope input with no
	// in-scope invocation in between. Those branches have no invocation of
	// their own to return the token through step 5 later, so step 1
	// returns it itself once the whole batch has been minted and
	// delivered (see below) — not per item, or the scope could close
	// after the first of several branches.
	directReturns := make(map[compiler.ScopeID]int)
	for _, e := range emitted {
		routing, ok := plan.Outputs[e.channel]
		if !ok {
			continue
		}
		var deliveredStack Stack
		if routing.Kind == graph.Multiple {
			idx := multiIndex[e.channel]
			multiIndex[e.channel] = idx + 1
			deliveredStack = inv.prefix.Append(idx)
			if len(routing.Routes) > 0 {
				run.addTokens(routing.Routes[0].ScopeID, inv.prefix, 1)
			}
		} else {
			deliveredStack = inv.prefix
		}
		for _, route := range routing.Routes {
			rt.deliverRoute(run, route, deliveredStack, e.value)
			if cp, ok := rt.plan.Components[route.ConsumerComponent]; ok &&
				cp.CollapsesScope != 0 && cp.CollapsesScope == route.ScopeID && isScopeInput(cp, route.ConsumerInput) {
				directReturns[route.ScopeID]++
			}
		}
	}
	for scopeID, n := range directReturns {
		if newCount := run.addTokens(scopeID, inv.prefix, -n); newCount < 0 {
			rt.abortRun(run, &ScopeUnderflowError{RunID: run.ID.String(), ScopeID: int(scopeID), Prefix: inv.prefix.Key()})
			return
		}
		rt.promoteIfClosed(run, scopeID, inv.prefix)
	}

	// 2. Every invocation emits $finish, unconditionally.
	finishRouting := plan.Outputs[graph.FinishChannel]
	for _, route := range finishRouting.Routes {
		rt.deliverRoute(run, route, inv.prefix, finishValue)
	}

	// 3. Any required input fed only by a channel this invocation never
	// emitted on will never arrive; poison that consumer's invocation
	// (cascading) rather than leaving it Pending forever.
	for channel, routing := range plan.Outputs {
		if channel == graph.FinishChannel || emittedChannels[channel] {
			continue
		}
		for _, route := range routing.Routes {
			rt.poisonIfRequired(run, route, inv.prefix)
		}
	}

	// 4. This invocation's own Multiple channels mint no further tokens
	// now that it has finished; mark their scopes opened and check for
	// immediate closure.
	for channel, spec := range plan.Descriptor.Outputs {
		if spec.Kind != graph.Multiple {
			continue
		}
		routing := plan.Outputs[channel]
		if len(routing.Routes) == 0 {
			continue
		}
		scopeID := routing.Routes[0].ScopeID
		run.markOpened(scopeID, inv.prefix)
		rt.promoteIfClosed(run, scopeID, inv.prefix)
	}

	// 5. Contribute to the innermost scope this invocation lived inside:
	// fanout_within_scope (deliveries whose consumer is still within that
	// scope) minus one for the branch this invocation's finish retires.
	if len(plan.Stack) > 0 {
		scopeID := plan.Stack[len(plan.Stack)-1]
		parentPrefix := inv.prefix.Truncate(len(plan.Stack) - 1)

		fanout := 0
		for _, e := range emitted {
			routing := plan.Outputs[e.channel]
			for _, route := range routing.Routes {
				if cp, ok := rt.plan.Components[route.ConsumerComponent]; ok && containsScope(cp.Stack, scopeID) {
					fanout++
				}
			}
		}
		for _, route := range finishRouting.Routes {
			if cp, ok := rt.plan.Components[route.ConsumerComponent]; ok && containsScope(cp.Stack, scopeID) {
				fanout++
			}
		}

		newCount := run.addTokens(scopeID, parentPrefix, fanout-1)
		if newCount < 0 {
			rt.abortRun(run, &ScopeUnderflowError{RunID: run.ID.String(), ScopeID: int(scopeID), Prefix: parentPrefix.Key()})
			return
		}
		rt.promoteIfClosed(run, scopeID, parentPrefix)
	}

	// 6. Retire the Run once every invocation it ever created has
	// finished.
	run.inFlight--
	if run.inFlight == 0 {
		run.retire()
		rt.admission.Release()
		rt.publishEvent(run.ID, run.SourceName, eventsink.EventRunRetired, "")
	}
}

// isScopeInput reports whether inputName is one of plan's elem-style
// broadcast-accumulating slots rather than a plain named or primary input.
func isScopeInput(plan *compiler.ComponentPlan, inputName string) bool {
	for _, n := range plan.ScopeInputs {
		if n == inputName {
			return true
		}
	}
	return false
}

// poisonIfRequired marks route's consumer Skipped (cascading) if its
// input is a plain required slot, per §4.2: "required inputs cause the
// consumer to be skipped with a logged warning". Scope-accumulating
// (elem-style) inputs are left alone; an empty aggregation window is
// valid. producerPrefix is the finishing producer's own broadcast
// prefix, used to resolve which of the consumer's (possibly many)
// broadcast instances is affected. Callers must hold run.mu.
func (rt *Runtime) poisonIfRequired(run *Run, route compiler.RouteEntry, producerPrefix Stack) {
	consumerInst, ok := rt.plan.Components[route.ConsumerComponent]
	if !ok {
		return
	}
	spec, ok := consumerInst.Descriptor.InputSpecFor(route.ConsumerInput)
	if !ok || !spec.Required {
		return
	}
	for _, n := range consumerInst.ScopeInputs {
		if n == route.ConsumerInput {
			return
		}
	}

	rt.logger.Warn("invocation skipped: required input will never arrive",
		zap.String("component", route.ConsumerComponent),
		zap.String("input", route.ConsumerInput))

	targetLen := len(consumerInst.Stack)
	if len(producerPrefix) >= targetLen {
		inv := run.getOrCreate(route.ConsumerComponent, producerPrefix.Truncate(targetLen))
		rt.processFinish(run, inv, nil, Skipped)
		return
	}
	// The missing input is itself a broadcast ancestor of deeper
	// instances not created yet; poison every live instance sharing this
	// prefix now, and record the poison so future deeper instances of
	// this component are rejected too.
	for _, inv := range run.invocations {
		if inv.component == route.ConsumerComponent && !inv.finished && isPrefixOf(producerPrefix, inv.prefix) {
			rt.processFinish(run, inv, nil, Skipped)
		}
	}
	run.pending[route.ConsumerComponent] = append(run.pending[route.ConsumerComponent], pendingEntry{
		input:  poisonSentinel,
		prefix: producerPrefix,
	})
}

// poisonSentinel is a reserved input name, never a real wire target (per
// ParseChannelRef rejecting "$"-prefixed names except $finish), used to
// record a pending-poison entry in Run.pending rather than a real value.
const poisonSentinel = "$poisoned"

func (rt *Runtime) abortRun(run *Run, err *ScopeUnderflowError) {
	run.cancelled = true
	rt.logger.Error("scope underflow, aborting run", zap.Error(err))
	telemetry.ReportError(err, run.ID.String(), "")
	rt.publishEvent(run.ID, run.SourceName, eventsink.EventScopeUnderflow, err.Error())
	run.retire()
	rt.admission.Release()
}
