package runtime

import (
	"github.com/fluxbotics/visionflow/pkg/compiler"
	"github.com/fluxbotics/visionflow/pkg/value"
)

// InvocationStatus is the state of one (component, broadcast prefix) unit
// of scheduling, per §4.3 of the data model.
type InvocationStatus int

const (
	Pending InvocationStatus = iota
	Ready
	Running
	Emitted
	Skipped
)

func (s InvocationStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Emitted:
		return "emitted"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// invocation is the per-(component, broadcast prefix) bookkeeping the
// dispatcher maintains while it assembles a component's inputs, while a
// worker runs it, and while its emitted values are published.
type invocation struct {
	component string
	plan      *compiler.ComponentPlan
	prefix    Stack
	status    InvocationStatus

	hasPrimary bool
	primary    value.Value

	named   map[string]value.Value
	present map[string]bool

	namedAll map[string][]value.Value

	missing     map[string]bool // required, non-scope inputs not yet arrived
	scopeInputs map[string]bool

	emittedSingle map[string]bool // single-channel emit-once guard, by channel

	// finished guards processFinish against being applied twice to the
	// same invocation (normal completion racing a poison cascade).
	finished bool

	// primedFromPending marks that this invocation has already been
	// checked against Run.pending for shallow broadcast values delivered
	// before it existed.
	primedFromPending bool
}

func newInvocation(name string, plan *compiler.ComponentPlan, prefix Stack) *invocation {
	inv := &invocation{
		component:     name,
		plan:          plan,
		prefix:        prefix,
		status:        Pending,
		named:         make(map[string]value.Value),
		present:       make(map[string]bool),
		namedAll:      make(map[string][]value.Value),
		missing:       make(map[string]bool),
		scopeInputs:   make(map[string]bool),
		emittedSingle: make(map[string]bool),
	}
	for _, n := range plan.ScopeInputs {
		inv.scopeInputs[n] = true
	}
	for _, n := range plan.RequiredInputs {
		if !inv.scopeInputs[n] {
			inv.missing[n] = true
		}
	}
	return inv
}

// deliver stores an arriving value into the appropriate input slot,
// clearing it from the missing set if it was a plain required input.
func (inv *invocation) deliver(inputName string, v value.Value) {
	if inv.scopeInputs[inputName] {
		inv.namedAll[inputName] = append(inv.namedAll[inputName], v)
		return
	}
	if inputName == "" {
		inv.hasPrimary = true
		inv.primary = v
	} else {
		inv.named[inputName] = v
	}
	inv.present[inputName] = true
	delete(inv.missing, inputName)
}

// readyForDispatch reports whether every plain required input has arrived
// and, if this component collapses a broadcast scope, that scope's window
// has closed.
func (inv *invocation) readyForDispatch(scopeClosed bool) bool {
	if len(inv.missing) > 0 {
		return false
	}
	if inv.plan.CollapsesScope != 0 && !scopeClosed {
		return false
	}
	return true
}
