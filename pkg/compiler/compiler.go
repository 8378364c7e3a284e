package compiler

import (
	"fmt"
	"sort"

	"github.com/fluxbotics/visionflow/pkg/graph"
)

// Compile validates g against the invariants in the data model and, on
// success, returns the Plan the runtime dispatches against. On failure the
// returned error is one of the concrete graph-error types in errors.go and
// can be classified with errors.Is against the matching sentinel.
func Compile(g *graph.Graph) (*Plan, error) {
	if err := checkReferences(g); err != nil {
		return nil, err
	}

	order, err := topoSort(g)
	if err != nil {
		return nil, err
	}

	c := &compilation{
		graph:   g,
		plans:   make(map[string]*ComponentPlan, len(g.Components)),
		scopes:  make(map[ScopeID]Scope),
		scopeOf: make(map[scopeKey]ScopeID),
	}

	for _, name := range order {
		if err := c.compileComponent(name); err != nil {
			return nil, err
		}
	}

	if err := c.checkInputsAndTypes(); err != nil {
		return nil, err
	}

	c.buildRoutes()

	entries := make([]string, 0, len(g.Entries))
	for e := range g.Entries {
		entries = append(entries, e)
	}
	sort.Strings(entries)

	return &Plan{
		Components: c.plans,
		Order:      order,
		Entries:    entries,
		Scopes:     c.scopes,
	}, nil
}

// checkReferences validates that every wire names a real component, and
// that every explicit (non-primary, non-$finish) producer channel is
// actually declared.
func checkReferences(g *graph.Graph) error {
	for name := range g.Entries {
		if _, ok := g.Components[name]; !ok {
			return &UnknownComponentError{Component: name, ContextOf: "entry set"}
		}
	}
	for _, w := range g.Wires {
		consumer, ok := g.Components[w.ConsumerComponent]
		if !ok {
			return &UnknownComponentError{Component: w.ConsumerComponent, ContextOf: w.Producer.String()}
		}
		if _, ok := consumer.Descriptor.InputSpecFor(w.ConsumerInput); !ok {
			return &UnknownChannelError{Component: w.ConsumerComponent, Channel: "input:" + w.ConsumerInput}
		}
		producer, ok := g.Components[w.Producer.Component]
		if !ok {
			return &UnknownComponentError{Component: w.Producer.Component, ContextOf: w.ConsumerComponent}
		}
		channel := resolveChannel(producer.Descriptor, w.Producer.Channel)
		if channel == graph.FinishChannel {
			continue
		}
		if _, ok := producer.Descriptor.Outputs[channel]; !ok {
			return &UnknownChannelError{Component: w.Producer.Component, Channel: channel}
		}
	}
	return nil
}

// resolveChannel turns a possibly-empty channel reference into the real
// output channel name, honoring the producer's declared primary output.
func resolveChannel(d graph.Descriptor, channel string) string {
	if channel == "" {
		return d.PrimaryOutput
	}
	return channel
}

// topoSort returns components in dependency order (producers before
// consumers) or a CycleError if the wire graph has a cycle.
func topoSort(g *graph.Graph) ([]string, error) {
	indegree := make(map[string]int, len(g.Components))
	adj := make(map[string][]string, len(g.Components))
	for name := range g.Components {
		indegree[name] = 0
	}
	for _, w := range g.Wires {
		adj[w.Producer.Component] = append(adj[w.Producer.Component], w.ConsumerComponent)
		indegree[w.ConsumerComponent]++
	}

	names := make([]string, 0, len(g.Components))
	for name := range g.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	var queue []string
	for _, n := range names {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		next := adj[n]
		sort.Strings(next)
		for _, m := range next {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	if len(order) != len(g.Components) {
		cycle := findCycle(g, names)
		return nil, &CycleError{Cycle: cycle}
	}
	return order, nil
}

// findCycle performs a DFS to extract one concrete cycle for diagnostics,
// after topoSort has already established that one exists.
func findCycle(g *graph.Graph, names []string) []string {
	adj := make(map[string][]string)
	for _, w := range g.Wires {
		adj[w.Producer.Component] = append(adj[w.Producer.Component], w.ConsumerComponent)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		state[n] = visiting
		stack = append(stack, n)
		for _, m := range adj[n] {
			switch state[m] {
			case unvisited:
				if visit(m) {
					return true
				}
			case visiting:
				// found the back edge; extract the cycle from stack
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append([]string{stack[i]}, cycle...)
					if stack[i] == m {
						break
					}
				}
				cycle = append(cycle, m)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return false
	}

	for _, n := range names {
		if state[n] == unvisited {
			if visit(n) {
				return cycle
			}
		}
	}
	return []string{"<unknown>"}
}

type scopeKey struct {
	component string
	channel   string
}

type compilation struct {
	graph   *graph.Graph
	plans   map[string]*ComponentPlan
	scopes  map[ScopeID]Scope
	scopeOf map[scopeKey]ScopeID
	nextID  ScopeID
}

// scopeFor returns the (lazily created) scope opened by a producer's
// Multiple channel, given the broadcast stack in effect at the producer.
func (c *compilation) scopeFor(key scopeKey, parent []ScopeID) ScopeID {
	if id, ok := c.scopeOf[key]; ok {
		return id
	}
	c.nextID++
	id := c.nextID
	c.scopeOf[key] = id
	parentCopy := append([]ScopeID(nil), parent...)
	c.scopes[id] = Scope{ID: id, ProducerComponent: key.component, ProducerChannel: key.channel, Parent: parentCopy}
	return id
}

// incomingStack computes the broadcast-index-stack carried by values
// arriving over wire w, given the already-compiled stack of its producer.
func (c *compilation) incomingStack(w graph.Wire) []ScopeID {
	producer := c.graph.Components[w.Producer.Component]
	channel := resolveChannel(producer.Descriptor, w.Producer.Channel)
	producerPlan := c.plans[w.Producer.Component]

	if channel == graph.FinishChannel {
		return producerPlan.Stack
	}
	outSpec := producer.Descriptor.Outputs[channel]
	if outSpec.Kind == graph.Single {
		return producerPlan.Stack
	}
	id := c.scopeFor(scopeKey{w.Producer.Component, channel}, producerPlan.Stack)
	return append(append([]ScopeID(nil), producerPlan.Stack...), id)
}

// stacksCompatible reports whether a is a prefix of b or b is a prefix of a.
func stacksCompatible(a, b []ScopeID) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// compileComponent derives one component's ComponentPlan.Stack and (if
// aggregating) CollapsesScope, enforcing rule 3 of the data model for
// non-aggregating consumers.
func (c *compilation) compileComponent(name string) error {
	inst := c.graph.Components[name]
	plan := &ComponentPlan{
		Name:       name,
		Descriptor: inst.Descriptor,
		IsEntry:    c.graph.Entries[name],
	}

	wires := c.graph.WiresFor(name)

	if plan.IsEntry || len(wires) == 0 {
		plan.Stack = nil
		c.plans[name] = plan
		return nil
	}

	stacks := make([]scopedStack, 0, len(wires))
	for _, w := range wires {
		stacks = append(stacks, scopedStack{wire: w, stack: c.incomingStack(w)})
	}

	if inst.Descriptor.Aggregating {
		deepest := stacks[0].stack
		for _, s := range stacks[1:] {
			if len(s.stack) > len(deepest) {
				deepest = s.stack
			}
		}
		if len(deepest) > 0 {
			plan.CollapsesScope = deepest[len(deepest)-1]
			plan.Stack = deepest[:len(deepest)-1]
			for _, s := range stacks {
				if len(s.stack) == len(plan.Stack)+1 && s.stack[len(s.stack)-1] == plan.CollapsesScope {
					plan.ScopeInputs = append(plan.ScopeInputs, s.wire.ConsumerInput)
				}
			}
		} else {
			plan.Stack = nil
		}
	} else {
		longest := stacks[0].stack
		for _, s := range stacks[1:] {
			if !stacksCompatible(longest, s.stack) {
				return &AmbiguousBroadcastError{
					Component: name,
					Detail: fmt.Sprintf("input %q and input %q carry incompatible broadcast provenance",
						stacks[0].wire.ConsumerInput, s.wire.ConsumerInput),
				}
			}
			if len(s.stack) > len(longest) {
				longest = s.stack
			}
		}
		plan.Stack = longest
	}

	c.plans[name] = plan
	return nil
}

type scopedStack struct {
	wire  graph.Wire
	stack []ScopeID
}

// checkInputsAndTypes enforces rules 1 and 4 of the data model: every
// required input of every non-entry component is wired exactly once, and
// every wire's producer type is accepted by its consumer input.
func (c *compilation) checkInputsAndTypes() error {
	for name, plan := range c.plans {
		inst := c.graph.Components[name]
		wiresByInput := make(map[string][]graph.Wire)
		for _, w := range c.graph.WiresFor(name) {
			wiresByInput[w.ConsumerInput] = append(wiresByInput[w.ConsumerInput], w)
		}

		for _, inputName := range inst.Descriptor.InputNames() {
			spec, _ := inst.Descriptor.InputSpecFor(inputName)
			ws := wiresByInput[inputName]

			if len(ws) > 1 {
				return &DuplicateWireError{Component: name, Input: inputName}
			}
			if len(ws) == 0 {
				if spec.Required && !plan.IsEntry {
					return &MissingInputError{Component: name, Input: inputName}
				}
				if spec.Required {
					plan.RequiredInputs = append(plan.RequiredInputs, inputName)
				} else {
					plan.OptionalInputs = append(plan.OptionalInputs, inputName)
				}
				continue
			}
			if spec.Required {
				plan.RequiredInputs = append(plan.RequiredInputs, inputName)
			} else {
				plan.OptionalInputs = append(plan.OptionalInputs, inputName)
			}

			w := ws[0]
			producer := c.graph.Components[w.Producer.Component]
			channel := resolveChannel(producer.Descriptor, w.Producer.Channel)
			if channel == graph.FinishChannel {
				continue // $finish carries no payload; nothing to type-check
			}
			outSpec := producer.Descriptor.Outputs[channel]
			if !spec.Accepts(outSpec.ValueType) {
				return &TypeMismatchError{
					Producer:       w.Producer.Component,
					ProducerOutput: channel,
					Consumer:       name,
					ConsumerInput:  inputName,
					ProducerType:   outSpec.ValueType.String(),
					ConsumerType:   spec.ValueType.String(),
				}
			}
		}
	}
	return nil
}

// buildRoutes fills in each component's Outputs routing table from the
// wire list now that every scope id and stack is known.
func (c *compilation) buildRoutes() {
	for name, plan := range c.plans {
		inst := c.graph.Components[name]
		plan.Outputs = make(map[string]OutputRouting)
		for channel, spec := range inst.Descriptor.Outputs {
			plan.Outputs[channel] = OutputRouting{Kind: spec.Kind}
		}
		plan.Outputs[graph.FinishChannel] = OutputRouting{Kind: graph.Single}
	}

	for _, w := range c.graph.Wires {
		producer := c.graph.Components[w.Producer.Component]
		channel := resolveChannel(producer.Descriptor, w.Producer.Channel)
		producerPlan := c.plans[w.Producer.Component]

		routing := producerPlan.Outputs[channel]
		entry := RouteEntry{ConsumerComponent: w.ConsumerComponent, ConsumerInput: w.ConsumerInput}
		if routing.Kind == graph.Multiple {
			entry.ScopeID = c.scopeFor(scopeKey{w.Producer.Component, channel}, producerPlan.Stack)
		}
		routing.Routes = append(routing.Routes, entry)
		producerPlan.Outputs[channel] = routing
	}
}
