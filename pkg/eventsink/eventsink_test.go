package eventsink

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestNoOpSinkDiscardsEvents(t *testing.T) {
	var sink EventSink = NoOpSink{}
	env := NewEnvelope(uuid.New(), "camera", EventRunBegun, 1700000000, "")
	if err := sink.Publish(context.Background(), env); err != nil {
		t.Fatalf("NoOpSink.Publish should never error, got %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("NoOpSink.Close should never error, got %v", err)
	}
}

func TestNewEnvelopeOmitsRunIDForNilUUID(t *testing.T) {
	env := NewEnvelope(uuid.Nil, "camera", EventRunDropped, 1700000000, "admission limit reached")
	if env.RunID != "" {
		t.Fatalf("expected empty RunID for nil uuid, got %q", env.RunID)
	}
	if env.SourceName != "camera" || env.Kind != EventRunDropped || env.Detail != "admission limit reached" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestNewEnvelopeSetsRunIDWhenPresent(t *testing.T) {
	id := uuid.New()
	env := NewEnvelope(id, "camera", EventRunRetired, 1700000001, "")
	if env.RunID != id.String() {
		t.Fatalf("expected RunID %s, got %s", id.String(), env.RunID)
	}
}

func TestBusErrorWrapsUnderlyingError(t *testing.T) {
	underlying := ErrTimeout
	err := NewError("PUBLISH_TIMEOUT", "ack not received in time", underlying)

	if !IsTimeout(err) {
		t.Fatal("expected IsTimeout to unwrap to ErrTimeout")
	}
	if IsNotConnected(err) {
		t.Fatal("did not expect IsNotConnected to match a timeout error")
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}
