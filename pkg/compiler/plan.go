// Package compiler validates a declared component graph and compiles it
// into a Plan: precomputed routing tables, broadcast depths, and
// aggregation scopes that the runtime dispatches against without
// re-deriving any of this structure per run.
package compiler

import "github.com/fluxbotics/visionflow/pkg/graph"

// ScopeID identifies a broadcast scope: the span of dataflow opened by one
// specific (producer component, multiple-channel) pair. Scope 0 is
// reserved and never assigned to a real scope — it means "no scope",
// i.e. a value travels unchanged across a Single-channel edge.
type ScopeID int

// Scope describes one broadcast scope discovered during compilation.
type Scope struct {
	ID               ScopeID
	ProducerComponent string
	ProducerChannel   string
	// Parent is the stack of enclosing scopes (outermost first) at the
	// point this scope was opened; len(Parent) is this scope's nesting
	// depth minus one.
	Parent []ScopeID
}

// Depth returns the nesting depth of this scope (1 for a top-level
// broadcast, 2 for one nested inside another, and so on).
func (s Scope) Depth() int {
	return len(s.Parent) + 1
}

// RouteEntry is one downstream destination of an output channel.
type RouteEntry struct {
	ConsumerComponent string
	ConsumerInput     string // graph.PrimaryInput ("") for the unnamed slot
	// ScopeID is non-zero when this edge crosses a Multiple channel: the
	// runtime appends this scope to the broadcast-index stack of every
	// value emitted on the channel before routing it to this consumer.
	ScopeID ScopeID
}

// OutputRouting is the compiled routing table for one output channel.
type OutputRouting struct {
	Kind   graph.ChannelKind
	Routes []RouteEntry
}

// ComponentPlan is the compiled, per-component routing and scope
// information the runtime dispatches against.
type ComponentPlan struct {
	Name       string
	Descriptor graph.Descriptor
	IsEntry    bool

	// Outputs maps each declared output channel (including the implicit
	// $finish channel) to its compiled routing table.
	Outputs map[string]OutputRouting

	// Stack is the broadcast-index-stack prefix (outermost scope first)
	// this component's invocations are keyed by, and that its Single
	// channels and $finish carry — i.e. its broadcast depth, expressed as
	// the chain of enclosing scopes rather than a bare integer. Values on
	// a Multiple channel carry one more scope than this.
	Stack []ScopeID

	// CollapsesScope is non-zero for an aggregating component: the scope
	// identifier whose window it closes over.
	CollapsesScope ScopeID

	RequiredInputs []string
	OptionalInputs []string

	// ScopeInputs names the subset of inputs whose wire crosses into
	// CollapsesScope (the elem-style inputs of an aggregating component).
	// The runtime accumulates these via GetNamedAll, gated by the scope's
	// reference count, rather than waiting for a single arrival.
	ScopeInputs []string
}

// Depth returns this component's broadcast depth (number of enclosing
// scopes its invocations sit in; a Multiple output adds one more).
func (c *ComponentPlan) Depth() int {
	return len(c.Stack)
}

// Plan is the compiled, validated routing structure the runtime consumes.
// It is immutable and safe to share across concurrent runs.
type Plan struct {
	Components map[string]*ComponentPlan
	// Order is a topological order of component names: producers always
	// precede their consumers.
	Order   []string
	Entries []string
	Scopes  map[ScopeID]Scope
}

// ComponentNames returns the plan's components in topological order.
func (p *Plan) ComponentNames() []string {
	return p.Order
}
