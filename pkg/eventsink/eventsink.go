// Package eventsink publishes run lifecycle notifications to an
// external, core-decoupled telemetry surface. The runtime holds an
// EventSink behind an interface so it has zero hard dependency on any
// specific backend; a publish failure is logged and never propagated
// to the run it describes.
package eventsink

import (
	"context"

	"github.com/google/uuid"
)

// EventKind names a run lifecycle transition the runtime reports.
type EventKind string

const (
	EventRunBegun     EventKind = "run_begun"
	EventRunDropped   EventKind = "run_dropped"
	EventRunRetired   EventKind = "run_retired"
	EventScopeUnderflow EventKind = "scope_underflow"
)

// Envelope is the small JSON payload published for one lifecycle event.
type Envelope struct {
	RunID      string    `json:"run_id,omitempty"`
	SourceName string    `json:"source_name"`
	Kind       EventKind `json:"kind"`
	Timestamp  int64     `json:"timestamp"`
	Detail     string    `json:"detail,omitempty"`
}

// EventSink receives best-effort notifications of run lifecycle
// transitions. Implementations must not block the caller for long and
// must never return an error that the runtime would need to act on;
// Publish reports failures for logging only.
type EventSink interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// NoOpSink discards every event. It is the runtime's default sink.
type NoOpSink struct{}

func (NoOpSink) Publish(context.Context, Envelope) error { return nil }
func (NoOpSink) Close() error                             { return nil }

var _ EventSink = NoOpSink{}

// NewEnvelope builds an Envelope for a run identified by id (the zero
// uuid.UUID is rendered as an empty RunID, for events like RunDropped
// that precede run-id assignment).
func NewEnvelope(id uuid.UUID, sourceName string, kind EventKind, nowUnix int64, detail string) Envelope {
	env := Envelope{
		SourceName: sourceName,
		Kind:       kind,
		Timestamp:  nowUnix,
		Detail:     detail,
	}
	if id != uuid.Nil {
		env.RunID = id.String()
	}
	return env
}
