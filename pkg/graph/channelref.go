package graph

import (
	"fmt"
	"strings"
)

// ChannelRef identifies a producer's output channel: "name" refers to the
// primary output of component "name"; "name.ch" refers to its "ch"
// channel; "name.$finish" refers to its synthetic finish channel.
type ChannelRef struct {
	Component string
	Channel   string // PrimaryInput ("") means the component's primary output
}

// IsFinish reports whether this reference names the synthetic $finish
// channel.
func (r ChannelRef) IsFinish() bool {
	return r.Channel == FinishChannel
}

// String renders the reference back to its wire syntax.
func (r ChannelRef) String() string {
	if r.Channel == "" {
		return r.Component
	}
	return r.Component + "." + r.Channel
}

// ParseChannelRef parses the channel reference syntax described in the
// graph description: "name" = primary output, "name.ch" = named channel,
// "name.$finish" = the always-referenceable finish channel. A bare "$"
// prefix on the component name is rejected — that namespace is reserved
// for runtime-synthesized channels, never for user component names.
func ParseChannelRef(s string) (ChannelRef, error) {
	if s == "" {
		return ChannelRef{}, fmt.Errorf("empty channel reference")
	}
	component, channel, found := strings.Cut(s, ".")
	if component == "" {
		return ChannelRef{}, fmt.Errorf("channel reference %q has no component name", s)
	}
	if strings.HasPrefix(component, "$") {
		return ChannelRef{}, fmt.Errorf("channel reference %q: %q is reserved for runtime-synthesized channels", s, component)
	}
	if found && strings.HasPrefix(channel, "$") && channel != FinishChannel {
		return ChannelRef{}, fmt.Errorf("channel reference %q: %q is reserved for runtime-synthesized channels", s, channel)
	}
	return ChannelRef{Component: component, Channel: channel}, nil
}
