package compiler

import (
	"errors"
	"testing"

	"github.com/fluxbotics/visionflow/pkg/graph"
	"github.com/fluxbotics/visionflow/pkg/value"
)

var (
	frameType = value.NewType("frame")
	boxType   = value.NewType("box")
)

func cameraDescriptor() graph.Descriptor {
	return graph.Descriptor{
		PluginType:    "camera",
		PrimaryOutput: "frame",
		Outputs: map[string]graph.OutputSpec{
			"frame": {Kind: graph.Single, ValueType: frameType},
		},
	}
}

func cloneDescriptor() graph.Descriptor {
	return graph.Descriptor{
		PluginType:    "clone",
		PrimaryInput:  &graph.InputSpec{Required: true, ValueType: frameType},
		PrimaryOutput: "frame",
		Outputs: map[string]graph.OutputSpec{
			"frame": {Kind: graph.Single, ValueType: frameType},
		},
	}
}

func debugDescriptor() graph.Descriptor {
	return graph.Descriptor{
		PluginType:   "debug",
		PrimaryInput: &graph.InputSpec{Required: true, Any: true},
	}
}

func detectorDescriptor() graph.Descriptor {
	return graph.Descriptor{
		PluginType:    "detector",
		PrimaryInput:  &graph.InputSpec{Required: true, ValueType: frameType},
		PrimaryOutput: "box",
		Outputs: map[string]graph.OutputSpec{
			"box": {Kind: graph.Multiple, ValueType: boxType},
		},
	}
}

func collectorDescriptor() graph.Descriptor {
	return graph.Descriptor{
		PluginType:   "collector",
		PrimaryInput: &graph.InputSpec{Required: true, ValueType: boxType},
		Aggregating:  true,
	}
}

func mustRef(t *testing.T, s string) graph.ChannelRef {
	t.Helper()
	ref, err := graph.ParseChannelRef(s)
	if err != nil {
		t.Fatalf("ParseChannelRef(%q): %v", s, err)
	}
	return ref
}

// Identity pipeline: camera -> clone -> debug. Should compile cleanly with
// no broadcast scopes.
func TestCompileIdentityPipeline(t *testing.T) {
	g := graph.New()
	g.AddComponent("camera", cameraDescriptor())
	g.AddComponent("clone", cloneDescriptor())
	g.AddComponent("debug", debugDescriptor())
	g.MarkEntry("camera")
	g.AddWire(graph.Wire{ConsumerComponent: "clone", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "camera")})
	g.AddWire(graph.Wire{ConsumerComponent: "debug", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "clone")})

	plan, err := Compile(g)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(plan.Entries) != 1 || plan.Entries[0] != "camera" {
		t.Fatalf("Entries = %v, want [camera]", plan.Entries)
	}
	if depth := plan.Components["debug"].Depth(); depth != 0 {
		t.Fatalf("debug depth = %d, want 0", depth)
	}
	order := map[string]int{}
	for i, n := range plan.Order {
		order[n] = i
	}
	if order["camera"] > order["clone"] || order["clone"] > order["debug"] {
		t.Fatalf("Order = %v, producers must precede consumers", plan.Order)
	}
}

// Broadcast-and-collect: camera -> detector (Multiple box) -> collector
// (aggregating). The collector's depth returns to 0 after collapsing the
// detector's scope, and detector's own outputs carry depth 1.
func TestCompileBroadcastAndCollect(t *testing.T) {
	g := graph.New()
	g.AddComponent("camera", cameraDescriptor())
	g.AddComponent("detector", detectorDescriptor())
	g.AddComponent("collector", collectorDescriptor())
	g.MarkEntry("camera")
	g.AddWire(graph.Wire{ConsumerComponent: "detector", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "camera")})
	g.AddWire(graph.Wire{ConsumerComponent: "collector", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "detector")})

	plan, err := Compile(g)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	detectorPlan := plan.Components["detector"]
	if detectorPlan.Depth() != 0 {
		t.Fatalf("detector depth = %d, want 0 (depth reflects consumed stack, not produced)", detectorPlan.Depth())
	}
	boxRouting := detectorPlan.Outputs["box"]
	if len(boxRouting.Routes) != 1 {
		t.Fatalf("detector box routes = %v, want 1", boxRouting.Routes)
	}
	scopeID := boxRouting.Routes[0].ScopeID
	if scopeID == 0 {
		t.Fatalf("detector box route has zero ScopeID, want a real broadcast scope")
	}

	collectorPlan := plan.Components["collector"]
	if collectorPlan.CollapsesScope != scopeID {
		t.Fatalf("collector.CollapsesScope = %v, want %v", collectorPlan.CollapsesScope, scopeID)
	}
	if collectorPlan.Depth() != 0 {
		t.Fatalf("collector depth = %d, want 0 after collapsing the only scope", collectorPlan.Depth())
	}
	if len(collectorPlan.ScopeInputs) != 1 || collectorPlan.ScopeInputs[0] != graph.PrimaryInput {
		t.Fatalf("collector.ScopeInputs = %v, want [%q]", collectorPlan.ScopeInputs, graph.PrimaryInput)
	}
}

// A non-aggregating consumer wired to two independent Multiple producers
// has incompatible broadcast provenance and must be rejected.
func TestCompileRejectsAmbiguousBroadcast(t *testing.T) {
	g := graph.New()
	g.AddComponent("camera", cameraDescriptor())
	g.AddComponent("detectorA", detectorDescriptor())
	g.AddComponent("detectorB", detectorDescriptor())
	g.AddComponent("merge", graph.Descriptor{
		PluginType: "merge",
		NamedInputs: map[string]graph.InputSpec{
			"a": {Required: true, ValueType: boxType},
			"b": {Required: true, ValueType: boxType},
		},
	})
	g.MarkEntry("camera")
	g.AddWire(graph.Wire{ConsumerComponent: "detectorA", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "camera")})
	g.AddWire(graph.Wire{ConsumerComponent: "detectorB", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "camera")})
	g.AddWire(graph.Wire{ConsumerComponent: "merge", ConsumerInput: "a", Producer: mustRef(t, "detectorA.box")})
	g.AddWire(graph.Wire{ConsumerComponent: "merge", ConsumerInput: "b", Producer: mustRef(t, "detectorB.box")})

	_, err := Compile(g)
	if !errors.Is(err, ErrAmbiguousBroadcast) {
		t.Fatalf("Compile error = %v, want ErrAmbiguousBroadcast", err)
	}
}

func TestCompileRejectsMissingRequiredInput(t *testing.T) {
	g := graph.New()
	g.AddComponent("clone", cloneDescriptor())

	_, err := Compile(g)
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("Compile error = %v, want ErrMissingInput", err)
	}
}

func TestCompileRejectsDuplicateWire(t *testing.T) {
	g := graph.New()
	g.AddComponent("camera", cameraDescriptor())
	g.AddComponent("camera2", cameraDescriptor())
	g.AddComponent("clone", cloneDescriptor())
	g.MarkEntry("camera")
	g.MarkEntry("camera2")
	g.AddWire(graph.Wire{ConsumerComponent: "clone", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "camera")})
	g.AddWire(graph.Wire{ConsumerComponent: "clone", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "camera2")})

	_, err := Compile(g)
	if !errors.Is(err, ErrDuplicateWire) {
		t.Fatalf("Compile error = %v, want ErrDuplicateWire", err)
	}
}

func TestCompileRejectsTypeMismatch(t *testing.T) {
	g := graph.New()
	g.AddComponent("camera", cameraDescriptor())
	g.AddComponent("collector", collectorDescriptor())
	g.MarkEntry("camera")
	g.AddWire(graph.Wire{ConsumerComponent: "collector", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "camera")})

	_, err := Compile(g)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("Compile error = %v, want ErrTypeMismatch", err)
	}
}

func TestCompileRejectsCycle(t *testing.T) {
	g := graph.New()
	g.AddComponent("a", cloneDescriptor())
	g.AddComponent("b", cloneDescriptor())
	g.AddWire(graph.Wire{ConsumerComponent: "a", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "b")})
	g.AddWire(graph.Wire{ConsumerComponent: "b", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "a")})

	_, err := Compile(g)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("Compile error = %v, want ErrCycleDetected", err)
	}
}

func TestCompileRejectsUnknownComponent(t *testing.T) {
	g := graph.New()
	g.AddComponent("clone", cloneDescriptor())
	g.AddWire(graph.Wire{ConsumerComponent: "clone", ConsumerInput: graph.PrimaryInput, Producer: mustRef(t, "ghost")})

	_, err := Compile(g)
	if !errors.Is(err, ErrUnknownComponent) {
		t.Fatalf("Compile error = %v, want ErrUnknownComponent", err)
	}
}
