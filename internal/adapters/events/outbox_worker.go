package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
)

// OutboxWorker relays committed submission events to the publisher.
type OutboxWorker struct {
	logger    *slog.Logger
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	interval  time.Duration
	batchSize int
}

func NewOutboxWorker(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, interval time.Duration, batchSize int) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxWorker{
		logger: logger, outbox: outbox, publisher: publisher, interval: interval, batchSize: batchSize,
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce publishes one batch and returns how many records went out.
// After a failure the remaining records of the same partition key are held
// back so they are never published ahead of the failed one.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (int, error) {
	records, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	blocked := map[string]struct{}{}
	published := 0
	for _, rec := range records {
		if _, ok := blocked[rec.PartitionKey]; ok {
			continue
		}
		if err := w.publisher.Publish(ctx, rec.EventType, rec.Payload, rec.PartitionKey); err != nil {
			blocked[rec.PartitionKey] = struct{}{}
			w.logger.WarnContext(ctx, "outbox publish failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "publish",
				"outcome", "failure",
				"outbox_id", rec.OutboxID.String(),
				"event_type", rec.EventType,
				"retry_count", rec.RetryCount,
				"error", err,
			)
			if markErr := w.outbox.MarkFailed(ctx, rec.OutboxID, err.Error(), now); markErr != nil {
				w.logMarkFailure(ctx, "mark_failed", rec, markErr)
			}
			continue
		}
		published++
		if err := w.outbox.MarkPublished(ctx, rec.OutboxID, now); err != nil {
			// The record goes out again on the next poll; hold its key so
			// later events never overtake the re-send.
			blocked[rec.PartitionKey] = struct{}{}
			w.logMarkFailure(ctx, "mark_published", rec, err)
		}
	}
	return published, nil
}

func (w *OutboxWorker) logMarkFailure(ctx context.Context, operation string, rec ports.OutboxRecord, err error) {
	w.logger.ErrorContext(ctx, "outbox bookkeeping failed",
		"module", "events.outbox_worker",
		"layer", "adapter",
		"operation", operation,
		"outcome", "failure",
		"outbox_id", rec.OutboxID.String(),
		"event_type", rec.EventType,
		"error", err,
	)
}
