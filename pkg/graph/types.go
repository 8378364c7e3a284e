// Package graph holds the declared component graph: component descriptors,
// wires between them, and the entry set. It has no validation logic of its
// own — building a Graph never fails; the compiler package is what rejects
// ill-formed graphs and turns a Graph into an executable Plan.
package graph

import "github.com/fluxbotics/visionflow/pkg/value"

// ChannelKind distinguishes a single-valued output channel from a
// broadcasting one.
type ChannelKind int

const (
	// Single channels emit at most one value per invocation.
	Single ChannelKind = iota
	// Multiple channels (broadcast) may emit zero or more values; each
	// emitted value produces a distinct downstream invocation fan-out.
	Multiple
)

func (k ChannelKind) String() string {
	if k == Multiple {
		return "multiple"
	}
	return "single"
}

// FinishChannel is the implicit per-invocation synchronization channel
// every component has, emitted exactly once when the invocation returns.
// It carries no payload.
const FinishChannel = "$finish"

// PrimaryInput is the sentinel input name used by components that declare
// a single unnamed input rather than a named set.
const PrimaryInput = ""

// OutputSpec describes one declared output channel of a component type.
type OutputSpec struct {
	Kind      ChannelKind
	ValueType value.Type
}

// InputSpec describes one declared input slot of a component type.
type InputSpec struct {
	Required  bool
	ValueType value.Type
	// Any indicates the input accepts any value type (no static type
	// check at wire time). Used sparingly — most inputs should declare a
	// concrete ValueType so the compiler can catch TypeMismatch early.
	Any bool
}

// Accepts reports whether a producer output of the given type may be wired
// into this input.
func (s InputSpec) Accepts(t value.Type) bool {
	return s.Any || s.ValueType == t
}

// Descriptor is the static, per-component-type shape consumed by the
// compiler: its input set (primary or named), its output channels, and
// whether it aggregates a broadcast scope.
type Descriptor struct {
	PluginType string

	// PrimaryInput is set when the component declares a single unnamed
	// input. Mutually exclusive with NamedInputs.
	PrimaryInput *InputSpec

	// NamedInputs is set when the component declares a named input set.
	// Mutually exclusive with PrimaryInput.
	NamedInputs map[string]InputSpec

	// PrimaryOutput names the output channel a bare "name" channel
	// reference (no ".ch" suffix) resolves to.
	PrimaryOutput string

	Outputs map[string]OutputSpec

	// Aggregating marks a component that runs once per aggregation
	// window rather than once per input tuple (see the compiler's
	// broadcast-depth handling).
	Aggregating bool
}

// InputNames returns the set of declared input names, using PrimaryInput
// for components with a single unnamed input.
func (d Descriptor) InputNames() []string {
	if d.PrimaryInput != nil {
		return []string{PrimaryInput}
	}
	names := make([]string, 0, len(d.NamedInputs))
	for n := range d.NamedInputs {
		names = append(names, n)
	}
	return names
}

// InputSpecFor returns the InputSpec for the given input name (PrimaryInput
// for the unnamed slot) and whether it exists.
func (d Descriptor) InputSpecFor(name string) (InputSpec, bool) {
	if d.PrimaryInput != nil {
		if name == PrimaryInput {
			return *d.PrimaryInput, true
		}
		return InputSpec{}, false
	}
	s, ok := d.NamedInputs[name]
	return s, ok
}

// ComponentInstance is a named component in a graph, paired with its
// static descriptor.
type ComponentInstance struct {
	Name       string
	Descriptor Descriptor
}
