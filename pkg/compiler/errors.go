package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel graph-error kinds. Use errors.Is against these to classify a
// compile failure without inspecting the concrete wrapper type.
var (
	ErrCycleDetected      = errors.New("cycle detected")
	ErrMissingInput       = errors.New("missing input")
	ErrDuplicateWire      = errors.New("duplicate wire")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrUnknownComponent   = errors.New("unknown component")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrAmbiguousBroadcast = errors.New("ambiguous broadcast")
)

// CycleError names the offending cycle.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// MissingInputError names the component and required input left unwired.
type MissingInputError struct {
	Component string
	Input     string
}

func (e *MissingInputError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("component %q: required primary input is not wired", e.Component)
	}
	return fmt.Sprintf("component %q: required input %q is not wired", e.Component, e.Input)
}

func (e *MissingInputError) Unwrap() error { return ErrMissingInput }

// DuplicateWireError names the component input that received more than one
// wire.
type DuplicateWireError struct {
	Component string
	Input     string
}

func (e *DuplicateWireError) Error() string {
	return fmt.Sprintf("component %q: input %q has more than one wire", e.Component, e.Input)
}

func (e *DuplicateWireError) Unwrap() error { return ErrDuplicateWire }

// TypeMismatchError names the wire whose producer output type the consumer
// input does not accept.
type TypeMismatchError struct {
	Producer       string
	ProducerOutput string
	Consumer       string
	ConsumerInput  string
	ProducerType   string
	ConsumerType   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("wire %s.%s -> %s.%s: producer type %q not accepted by consumer input (wants %q)",
		e.Producer, e.ProducerOutput, e.Consumer, e.ConsumerInput, e.ProducerType, e.ConsumerType)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// UnknownComponentError names a reference to a component not present in
// the graph.
type UnknownComponentError struct {
	Component string
	ContextOf string // the referencing wire/consumer, for diagnostics
}

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("unknown component %q referenced by %q", e.Component, e.ContextOf)
}

func (e *UnknownComponentError) Unwrap() error { return ErrUnknownComponent }

// UnknownChannelError names a reference to an output channel the producer
// does not declare.
type UnknownChannelError struct {
	Component string
	Channel   string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("component %q has no output channel %q", e.Component, e.Channel)
}

func (e *UnknownChannelError) Unwrap() error { return ErrUnknownChannel }

// AmbiguousBroadcastError names the consumer whose inputs have
// incompatible broadcast-index-stack provenance.
type AmbiguousBroadcastError struct {
	Component string
	Detail    string
}

func (e *AmbiguousBroadcastError) Error() string {
	return fmt.Sprintf("component %q: ambiguous broadcast depth among its inputs: %s", e.Component, e.Detail)
}

func (e *AmbiguousBroadcastError) Unwrap() error { return ErrAmbiguousBroadcast }
