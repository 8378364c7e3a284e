// Package component defines the interface an external vision-processing
// component implements, and the dynamic-dispatch Registry the runtime uses
// to look one up by plugin type. The runtime is the only caller of Run;
// component authors never construct a Context themselves.
package component

import (
	"context"

	"github.com/fluxbotics/visionflow/pkg/graph"
	"github.com/fluxbotics/visionflow/pkg/telemetry"
	"github.com/fluxbotics/visionflow/pkg/value"
	"github.com/google/uuid"
)

// Component is the interface every pipeline node implements: a static
// descriptor plus a per-invocation run.
type Component interface {
	// Descriptor returns the component's static shape. Called once at
	// graph-build time, never per invocation.
	Descriptor() graph.Descriptor

	// Run executes one invocation. It must not retain ctx beyond the
	// call; the runtime reclaims invocation state as soon as Run returns.
	Run(ctx Context) error
}

// Context is everything a Component's Run sees for one invocation: its
// inputs, a way to emit outputs, and identity/logging handles.
type Context interface {
	// GetPrimary returns the value on the component's unnamed input slot.
	// ok is false if the slot is optional and was not wired, or was wired
	// but the invocation legitimately has no value for it.
	GetPrimary() (value.Value, bool)

	// GetNamed returns the value on the named input slot.
	GetNamed(name string) (value.Value, bool)

	// GetNamedAll returns the ordered sequence of values collected in an
	// aggregation window for the named input. Only meaningful for
	// aggregating components; non-aggregating components get a
	// single-element (or empty) slice.
	GetNamedAll(name string) []value.Value

	// Emit publishes a value on an output channel. Calling Emit more than
	// once on a Single channel within one invocation is a runtime fault
	// reported as EmitOnSingleTwice. Each call on a Multiple channel
	// starts a distinct downstream fan-out.
	Emit(channel string, v value.Value) error

	// RunID returns the owning Run's 128-bit identifier.
	RunID() uuid.UUID

	// SourceName returns the short human-readable name used for %N
	// interpolation.
	SourceName() string

	// PipelineID returns the short hex form of RunID used for %i
	// interpolation.
	PipelineID() string

	// LogSpan returns this invocation's tracing/logging handle.
	LogSpan() *telemetry.Span

	// Done returns the invocation's cancellation context. Components that
	// perform blocking work (goja evaluation, network calls) should
	// select on it.
	Done() context.Context
}

// Registry maps plugin type names to constructed Component instances, the
// dynamic-dispatch mechanism the runtime uses to execute a compiled Plan
// without any reflection or per-type switch statement.
type Registry struct {
	components map[string]Component
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Register adds c under its own descriptor's PluginType.
func (r *Registry) Register(c Component) {
	r.components[c.Descriptor().PluginType] = c
}

// RegisterWithName adds c under an explicit plugin type, for components
// that ship under more than one name (e.g. a renamed successor kept
// reachable under its old name).
func (r *Registry) RegisterWithName(c Component, pluginType string) {
	r.components[pluginType] = c
}

// Lookup returns the component registered for pluginType.
func (r *Registry) Lookup(pluginType string) (Component, bool) {
	c, ok := r.components[pluginType]
	return c, ok
}

// HasComponent reports whether pluginType has a registered implementation.
func (r *Registry) HasComponent(pluginType string) bool {
	_, ok := r.components[pluginType]
	return ok
}

// RegisteredTypes returns all registered plugin type names.
func (r *Registry) RegisteredTypes() []string {
	types := make([]string, 0, len(r.components))
	for t := range r.components {
		types = append(types, t)
	}
	return types
}
