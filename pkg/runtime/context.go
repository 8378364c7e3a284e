package runtime

import (
	"context"
	"sync"

	"github.com/fluxbotics/visionflow/pkg/component"
	"github.com/fluxbotics/visionflow/pkg/graph"
	"github.com/fluxbotics/visionflow/pkg/telemetry"
	"github.com/fluxbotics/visionflow/pkg/value"
	"github.com/google/uuid"
)

// emittedValue is one buffered Emit call, published atomically once the
// invocation's Run returns.
type emittedValue struct {
	channel string
	value   value.Value
}

// runContext is the concrete component.Context a worker hands to
// Component.Run for one invocation. It is valid only for the duration of
// that call.
type runContext struct {
	run  *Run
	inv  *invocation
	span *telemetry.Span
	ctx  context.Context

	mu      sync.Mutex
	emitted []emittedValue
}

func newRunContext(ctx context.Context, run *Run, inv *invocation, span *telemetry.Span) *runContext {
	return &runContext{run: run, inv: inv, span: span, ctx: ctx}
}

func (c *runContext) GetPrimary() (value.Value, bool) {
	return c.inv.primary, c.inv.hasPrimary
}

func (c *runContext) GetNamed(name string) (value.Value, bool) {
	if !c.inv.present[name] {
		return value.Value{}, false
	}
	return c.inv.named[name], true
}

func (c *runContext) GetNamedAll(name string) []value.Value {
	vs, ok := c.inv.namedAll[name]
	if !ok && !c.inv.scopeInputs[name] && c.inv.present[name] {
		if name == graph.PrimaryInput {
			return []value.Value{c.inv.primary}
		}
		return []value.Value{c.inv.named[name]}
	}
	out := make([]value.Value, len(vs))
	copy(out, vs)
	return out
}

func (c *runContext) Emit(channel string, v value.Value) error {
	outSpec, ok := c.inv.plan.Descriptor.Outputs[channel]
	if !ok {
		return &EmitOnUnknownChannelError{Component: c.inv.component, Channel: channel}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if outSpec.Kind == graph.Single {
		if c.inv.emittedSingle[channel] {
			return &EmitOnSingleTwiceError{Component: c.inv.component, Channel: channel}
		}
		c.inv.emittedSingle[channel] = true
	}
	c.emitted = append(c.emitted, emittedValue{channel: channel, value: v})
	return nil
}

func (c *runContext) RunID() uuid.UUID { return c.run.ID }

func (c *runContext) SourceName() string { return c.run.SourceName }

func (c *runContext) PipelineID() string { return shortID(c.run.ID) }

func (c *runContext) LogSpan() *telemetry.Span { return c.span }

func (c *runContext) Done() context.Context { return c.ctx }

var _ component.Context = (*runContext)(nil)
