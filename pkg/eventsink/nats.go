package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSEventSink publishes lifecycle envelopes onto a JetStream stream,
// reusing the teacher's stream-provisioning pattern
// (pkg/runner.ensureStream): NewNATSEventSink creates the stream if it
// does not already exist.
type NATSEventSink struct {
	js      nats.JetStreamContext
	subject string
	timeout time.Duration
	logger  *zap.Logger
}

// NATSEventSinkConfig configures a NATSEventSink.
type NATSEventSinkConfig struct {
	// Stream is the JetStream stream name events are published under.
	Stream string
	// SubjectPrefix is the subject prefix; the full subject is
	// "<prefix>.<eventKind>".
	SubjectPrefix string
	// PublishTimeout bounds how long Publish waits for JetStream ack.
	// The runtime never blocks on this beyond the bound.
	PublishTimeout time.Duration
}

// DefaultNATSEventSinkConfig mirrors natsconn.DefaultConnectionConfig's
// event fields.
func DefaultNATSEventSinkConfig() NATSEventSinkConfig {
	return NATSEventSinkConfig{
		Stream:         "RUN_EVENTS",
		SubjectPrefix:  "run.events",
		PublishTimeout: 2 * time.Second,
	}
}

// NewNATSEventSink ensures the configured stream exists and returns a
// sink publishing onto it. js must already be connected.
func NewNATSEventSink(js nats.JetStreamContext, cfg NATSEventSinkConfig, logger *zap.Logger) (*NATSEventSink, error) {
	if js == nil {
		return nil, fmt.Errorf("eventsink: JetStream context is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stream == "" {
		cfg.Stream = "RUN_EVENTS"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "run.events"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	if err := ensureStream(js, cfg.Stream, cfg.SubjectPrefix, logger); err != nil {
		return nil, fmt.Errorf("eventsink: failed to ensure stream %q exists: %w", cfg.Stream, err)
	}

	return &NATSEventSink{
		js:      js,
		subject: cfg.SubjectPrefix,
		timeout: cfg.PublishTimeout,
		logger:  logger,
	}, nil
}

// ensureStream creates the JetStream stream if it doesn't already
// exist, matching pkg/runner.ensureStream's check-then-create shape.
func ensureStream(js nats.JetStreamContext, streamName, subjectPrefix string, logger *zap.Logger) error {
	_, err := js.StreamInfo(streamName)
	if err == nil {
		logger.Info("event stream already exists", zap.String("stream", streamName))
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info for %q: %w", streamName, err)
	}

	logger.Info("creating event stream", zap.String("stream", streamName))
	streamConfig := &nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{fmt.Sprintf("%s.*", subjectPrefix)},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
		MaxMsgs:  100000,
		Replicas: 1,
	}
	if _, err := js.AddStream(streamConfig); err != nil {
		return fmt.Errorf("failed to create stream %q: %w", streamName, err)
	}
	logger.Info("created event stream",
		zap.String("stream", streamName),
		zap.Strings("subjects", streamConfig.Subjects))
	return nil
}

// Publish fire-and-forgets env onto the stream's subject for its kind,
// bounded by the configured timeout. A failure is logged here and also
// returned; the runtime only logs it and never propagates it to the run.
func (s *NATSEventSink) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn("event envelope marshal failed", zap.Error(err), zap.String("kind", string(env.Kind)))
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	subject := fmt.Sprintf("%s.%s", s.subject, env.Kind)
	_, err = s.js.PublishAsync(subject, payload)
	if err != nil {
		s.logger.Warn("event publish failed", zap.Error(err), zap.String("subject", subject))
		return err
	}

	select {
	case <-s.js.PublishAsyncComplete():
		return nil
	case <-pubCtx.Done():
		s.logger.Warn("event publish ack timed out", zap.String("subject", subject))
		return pubCtx.Err()
	}
}

// Close is a no-op: the sink does not own the underlying connection.
func (s *NATSEventSink) Close() error { return nil }

var _ EventSink = (*NATSEventSink)(nil)
