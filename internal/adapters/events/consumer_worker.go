package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
)

type Message struct {
	Topic   string
	Payload []byte
	raw     *kafka.Message
}

type Consumer interface {
	Poll(ctx context.Context, max int) ([]Message, error)
	// Commit acknowledges handled messages.
	Commit(ctx context.Context, msgs ...Message) error
}

type DispatchHandler interface {
	HandleSubmissionDispatch(ctx context.Context, payload []byte) error
}

const (
	dispatchBackoff    = 500 * time.Millisecond
	maxDispatchBackoff = 30 * time.Second
)

// ConsumerWorker feeds runner-bound topics into the dispatch handler.
type ConsumerWorker struct {
	logger   *slog.Logger
	consumer Consumer
	handler  DispatchHandler
	topics   map[string]struct{}
	interval time.Duration
	backoff  time.Duration
}

func NewConsumerWorker(logger *slog.Logger, consumer Consumer, handler DispatchHandler, dispatchTopics []string, interval time.Duration) *ConsumerWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	set := make(map[string]struct{}, len(dispatchTopics))
	for _, t := range dispatchTopics {
		set[t] = struct{}{}
	}
	return &ConsumerWorker{
		logger: logger, consumer: consumer, handler: handler, topics: set, interval: interval, backoff: dispatchBackoff,
	}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"module", "events.consumer_worker",
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

func (w *ConsumerWorker) ProcessOnce(ctx context.Context) error {
	msgs, err := w.consumer.Poll(ctx, 50)
	if err != nil {
		return err
	}
	for i, msg := range msgs {
		if _, ok := w.topics[msg.Topic]; !ok {
			continue
		}
		if err := w.dispatch(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Leave the unhandled tail uncommitted for redelivery.
				return errors.Join(ctx.Err(), w.consumer.Commit(context.WithoutCancel(ctx), msgs[:i]...))
			}
			w.logger.WarnContext(ctx, "failed to dispatch submission",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "dispatch",
				"outcome", "failure",
				"topic", msg.Topic,
				"error", err,
			)
		}
	}
	return w.consumer.Commit(ctx, msgs...)
}

// dispatch retries for as long as the runner or the database is
// unavailable; the submission would otherwise stay JUDGING forever. Any
// other error is final.
func (w *ConsumerWorker) dispatch(ctx context.Context, msg Message) error {
	backoff := w.backoff
	for {
		err := w.handler.HandleSubmissionDispatch(ctx, msg.Payload)
		if err == nil || !transient(err) {
			return err
		}
		w.logger.WarnContext(ctx, "submission dispatch will be retried",
			"module", "events.consumer_worker",
			"layer", "adapter",
			"operation", "dispatch",
			"outcome", "retry",
			"topic", msg.Topic,
			"backoff_ms", backoff.Milliseconds(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxDispatchBackoff)
	}
}

func transient(err error) bool {
	return errors.Is(err, domain.ErrDependencyUnavailable) || errors.Is(err, domain.ErrStorageUnavailable)
}
