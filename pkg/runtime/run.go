package runtime

import (
	"sync"

	"github.com/fluxbotics/visionflow/pkg/compiler"
	"github.com/fluxbotics/visionflow/pkg/value"
	"github.com/google/uuid"
)

// scopeKey identifies one live instance of a broadcast scope: the scope
// itself plus the dynamic prefix at the depth where it was opened.
type scopeKey struct {
	scope  compiler.ScopeID
	prefix string
}

// pendingEntry is a value delivered at a broadcast prefix shorter than its
// consumer's compiled depth: it applies to every deeper invocation sharing
// that prefix, including ones not created yet.
type pendingEntry struct {
	input  string
	prefix Stack
	value  value.Value
}

// Run is the per-invocation arena for one pipeline execution: everything
// components reach through their Context is resolved against the Run the
// runtime looked up by run_id, never through a direct handle, so run state
// can be torn down the moment it retires without dangling references.
type Run struct {
	ID         uuid.UUID
	SourceName string

	plan *compiler.Plan

	mu          sync.Mutex
	invocations map[string]*invocation
	refcount    map[scopeKey]int
	opened      map[scopeKey]bool
	pending     map[string][]pendingEntry // keyed by component name

	inFlight  int64
	cancelled bool
	retired   chan struct{}
}

func newRun(id uuid.UUID, sourceName string, plan *compiler.Plan) *Run {
	return &Run{
		ID:          id,
		SourceName:  sourceName,
		plan:        plan,
		invocations: make(map[string]*invocation),
		refcount:    make(map[scopeKey]int),
		opened:      make(map[scopeKey]bool),
		pending:     make(map[string][]pendingEntry),
		retired:     make(chan struct{}),
	}
}

func invocationKey(component string, prefix Stack) string {
	return component + "#" + prefix.Key()
}

// getOrCreate returns the invocation state for (component, prefix),
// creating a fresh Pending one if this is the first time anything has
// touched it. Callers must hold r.mu.
func (r *Run) getOrCreate(component string, prefix Stack) *invocation {
	key := invocationKey(component, prefix)
	inv, ok := r.invocations[key]
	if !ok {
		plan := r.plan.Components[component]
		inv = newInvocation(component, plan, prefix)
		r.invocations[key] = inv
		r.inFlight++
	}
	return inv
}

// addTokens adjusts the outstanding-token count for one scope instance and
// reports the new count. Callers must hold r.mu.
func (r *Run) addTokens(scope compiler.ScopeID, parentPrefix Stack, delta int) int {
	k := scopeKey{scope: scope, prefix: parentPrefix.Key()}
	r.refcount[k] += delta
	return r.refcount[k]
}

// markOpened records that the scope-creating producer for (scope,
// parentPrefix) has finished running and will mint no further tokens.
// Callers must hold r.mu.
func (r *Run) markOpened(scope compiler.ScopeID, parentPrefix Stack) {
	r.opened[scopeKey{scope: scope, prefix: parentPrefix.Key()}] = true
}

// scopeClosed reports whether a scope instance's window may close: its
// producer has finished minting branches and every minted token has been
// resolved. Callers must hold r.mu.
func (r *Run) scopeClosed(scope compiler.ScopeID, parentPrefix Stack) bool {
	k := scopeKey{scope: scope, prefix: parentPrefix.Key()}
	return r.opened[k] && r.refcount[k] == 0
}

// retire marks the run done and closes the retired channel exactly once.
// Callers must hold r.mu; mu is released before the channel close is
// observed by waiters since close is itself the synchronization point.
func (r *Run) retire() {
	select {
	case <-r.retired:
		// already retired
	default:
		close(r.retired)
	}
}

// Done returns a channel closed when the run retires (in_flight reaches
// zero and every scope has been flushed).
func (r *Run) Done() <-chan struct{} {
	return r.retired
}
