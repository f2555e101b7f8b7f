package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process publisher and consumer. The worker uses it
// when no Kafka brokers are configured, so the outbox relay feeds runner
// dispatch directly.
type MemoryBus struct {
	mu     sync.Mutex
	queue  []Message
	topics map[string]string
}

func NewMemoryBus(topicByEvent map[string]string) *MemoryBus {
	return &MemoryBus{topics: topicByEvent}
}

func (b *MemoryBus) Publish(_ context.Context, eventType string, payload []byte, _ string) error {
	topic := TopicFor(b.topics, eventType)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

func (b *MemoryBus) Poll(_ context.Context, max int) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if max <= 0 || max > len(b.queue) {
		max = len(b.queue)
	}
	out := b.queue[:max:max]
	b.queue = b.queue[max:]
	return out, nil
}

// Commit is a no-op; Poll already removed the messages.
func (b *MemoryBus) Commit(context.Context, ...Message) error {
	return nil
}
