// Package value implements the opaque, shareable payload type that flows
// through a compiled pipeline. A Value carries a runtime type tag (for
// wire-time and emit-time type checks) plus a reference-counted payload with
// cheap-clone, last-holder-drops ownership semantics.
package value

import "sync/atomic"

// Type is an opaque, comparable identifier for a Value's runtime payload
// type. Component authors define their own Types (typically package-level
// vars) and compare them with ==; the compiler uses them to reject
// mismatched wires (TypeMismatch).
type Type struct {
	tag *typeTag
}

type typeTag struct {
	name string
}

// NewType creates a new runtime type tag. Two calls with the same name
// produce distinct, non-equal Types — identity, not the name string, is
// what the compiler compares. Components should keep a single package-level
// Type value and share it rather than calling NewType per invocation.
func NewType(name string) Type {
	return Type{tag: &typeTag{name: name}}
}

// String returns the human-readable name used to create the Type. Useful
// only for diagnostics; never compare Types by this string.
func (t Type) String() string {
	if t.tag == nil {
		return ""
	}
	return t.tag.name
}

// refbox is the shared, atomically-refcounted payload holder. Multiple
// Values can point at the same refbox; Clone bumps the count, Release
// decrements it, and the last holder to release drops the payload.
type refbox struct {
	refs    atomic.Int64
	payload any
	onDrop  func(any)
}

// Value is a heap-allocated, immutable-by-default payload with a runtime
// type tag and shared-ownership semantics. The zero Value is not usable;
// construct one with New.
type Value struct {
	typ Type
	box *refbox
}

// New creates a Value wrapping payload under the given type tag. The
// returned Value owns one reference; callers that fan the Value out to
// multiple consumers must call Clone for each additional holder and
// Release when a holder is done.
func New(typ Type, payload any) Value {
	box := &refbox{payload: payload}
	box.refs.Store(1)
	return Value{typ: typ, box: box}
}

// NewWithFinalizer is like New but registers a callback invoked exactly
// once, with the payload, when the last holder releases it. Used by
// components that wrap external resources (e.g. a decoded frame buffer)
// that need explicit cleanup.
func NewWithFinalizer(typ Type, payload any, onDrop func(any)) Value {
	box := &refbox{payload: payload, onDrop: onDrop}
	box.refs.Store(1)
	return Value{typ: typ, box: box}
}

// Type returns the Value's runtime type tag.
func (v Value) Type() Type {
	return v.typ
}

// IsZero reports whether v is the zero Value (never constructed with New).
func (v Value) IsZero() bool {
	return v.box == nil
}

// Payload returns the underlying payload. Callers must not mutate a payload
// obtained this way unless it is a *Cell (see cell.go) — Values are
// immutable-by-default, and sharing a mutable payload outside a Cell
// violates that contract.
func (v Value) Payload() any {
	if v.box == nil {
		return nil
	}
	return v.box.payload
}

// Clone returns a new Value sharing the same payload and bumping the
// reference count. Cheap: no payload copy occurs.
func (v Value) Clone() Value {
	if v.box == nil {
		return v
	}
	v.box.refs.Add(1)
	return v
}

// Release drops this holder's reference. When the last holder releases,
// the registered finalizer (if any) runs with the payload.
func (v Value) Release() {
	if v.box == nil {
		return
	}
	if v.box.refs.Add(-1) == 0 && v.box.onDrop != nil {
		v.box.onDrop(v.box.payload)
	}
}
