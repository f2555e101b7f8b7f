package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/application"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
)

// FanoutChannel carries every submission event to all API instances.
const FanoutChannel = "judge:events"

// FanoutPublisher relays outbox events onto the Redis fanout channel.
type FanoutPublisher struct {
	client  *redis.Client
	channel string
}

func NewFanoutPublisher(client *redis.Client, channel string) *FanoutPublisher {
	if channel == "" {
		channel = FanoutChannel
	}
	return &FanoutPublisher{client: client, channel: channel}
}

func (p *FanoutPublisher) Publish(ctx context.Context, eventType string, payload []byte, _ string) error {
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: redis publish %s: %v", domain.ErrDependencyUnavailable, eventType, err)
	}
	return nil
}

var _ ports.EventPublisher = (*FanoutPublisher)(nil)

// EventSink receives decoded events; fanout.Hub satisfies it.
type EventSink interface {
	Publish(ctx context.Context, evt domain.SubmissionEvent) int
}

// FanoutSubscriber feeds the local hub from the fanout channel. Messages are
// handled one at a time so per-submission order is kept.
type FanoutSubscriber struct {
	client  *redis.Client
	channel string
	sink    EventSink
	logger  *slog.Logger
}

func NewFanoutSubscriber(client *redis.Client, channel string, sink EventSink, logger *slog.Logger) *FanoutSubscriber {
	if channel == "" {
		channel = FanoutChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FanoutSubscriber{client: client, channel: channel, sink: sink, logger: logger}
}

func (s *FanoutSubscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.Deliver(ctx, []byte(msg.Payload))
		}
	}
}

// Deliver decodes one payload and hands it to the sink. Undecodable payloads
// are logged and dropped.
func (s *FanoutSubscriber) Deliver(ctx context.Context, payload []byte) int {
	evt, err := application.DecodeSubmissionEvent(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "dropping undecodable fanout event",
			"module", "cache",
			"layer", "adapter",
			"operation", "fanout_deliver",
			"outcome", "failure",
			"error", err,
		)
		return 0
	}
	n := s.sink.Publish(ctx, evt)
	s.logger.DebugContext(ctx, "fanout event delivered",
		"module", "cache",
		"layer", "adapter",
		"operation", "fanout_deliver",
		"outcome", "success",
		"event_id", evt.EventID.String(),
		"event_type", string(evt.Type),
		"trace_id", evt.TraceID,
		"delivered", n,
	)
	return n
}
