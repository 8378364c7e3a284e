package component

import (
	"context"
	"testing"

	"github.com/fluxbotics/visionflow/pkg/graph"
	"github.com/fluxbotics/visionflow/pkg/telemetry"
	"github.com/fluxbotics/visionflow/pkg/value"
	"github.com/google/uuid"
)

type stubComponent struct {
	pluginType string
}

func (s stubComponent) Descriptor() graph.Descriptor {
	return graph.Descriptor{PluginType: s.pluginType}
}

func (stubComponent) Run(Context) error { return nil }

var _ Component = stubComponent{}

// stubContext satisfies Context minimally for tests that don't need a
// real runtime invocation.
type stubContext struct{}

func (stubContext) GetPrimary() (value.Value, bool)       { return value.Value{}, false }
func (stubContext) GetNamed(string) (value.Value, bool)   { return value.Value{}, false }
func (stubContext) GetNamedAll(string) []value.Value       { return nil }
func (stubContext) Emit(string, value.Value) error         { return nil }
func (stubContext) RunID() uuid.UUID                        { return uuid.Nil }
func (stubContext) SourceName() string                      { return "stub" }
func (stubContext) PipelineID() string                      { return "stub" }
func (stubContext) LogSpan() *telemetry.Span                { return nil }
func (stubContext) Done() context.Context                   { return context.Background() }

var _ Context = stubContext{}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(stubComponent{pluginType: "camera"})

	c, ok := r.Lookup("camera")
	if !ok {
		t.Fatal("expected camera to be registered")
	}
	if c.Descriptor().PluginType != "camera" {
		t.Fatalf("unexpected descriptor: %+v", c.Descriptor())
	}
	if !r.HasComponent("camera") {
		t.Fatal("expected HasComponent to report true")
	}
	if r.HasComponent("missing") {
		t.Fatal("expected HasComponent to report false for unregistered type")
	}
}

func TestRegistryRegisterWithNameOverridesPluginType(t *testing.T) {
	r := NewRegistry()
	r.RegisterWithName(stubComponent{pluginType: "clone-v2"}, "clone")

	c, ok := r.Lookup("clone")
	if !ok {
		t.Fatal("expected lookup under explicit name to succeed")
	}
	if c.Descriptor().PluginType != "clone-v2" {
		t.Fatalf("unexpected descriptor: %+v", c.Descriptor())
	}
	if _, ok := r.Lookup("clone-v2"); ok {
		t.Fatal("did not expect lookup under the component's own plugin type")
	}
}

func TestRegistryRegisteredTypes(t *testing.T) {
	r := NewRegistry()
	r.Register(stubComponent{pluginType: "a"})
	r.Register(stubComponent{pluginType: "b"})

	types := r.RegisteredTypes()
	if len(types) != 2 {
		t.Fatalf("expected 2 registered types, got %d: %v", len(types), types)
	}
}
