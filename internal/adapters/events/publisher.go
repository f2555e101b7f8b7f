package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
)

type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	p.logger.InfoContext(ctx, "event published",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish",
		"outcome", "success",
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload_bytes", len(payload),
	)
	return nil
}

// MultiPublisher sends every event to all sinks in order. A failure in any
// sink fails the publish so the outbox retries it; sinks must tolerate the
// resulting duplicates.
type MultiPublisher struct {
	sinks []ports.EventPublisher
}

func NewMultiPublisher(sinks ...ports.EventPublisher) *MultiPublisher {
	return &MultiPublisher{sinks: sinks}
}

func (p *MultiPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	var errs []error
	for i, sink := range p.sinks {
		if err := sink.Publish(ctx, eventType, payload, partitionKey); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
