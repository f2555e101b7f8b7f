// Package fanout delivers submission events to live-feed subscribers.
//
// Every subscription is authorized when it is opened and again before each
// delivery, so a member who loses access stops receiving messages without
// having to reconnect. Each subscriber owns a bounded queue; a subscriber
// that falls behind is disconnected rather than allowed to block the hub.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/topics"
)

const defaultBufferSize = 64

type Authorizer interface {
	AuthorizeSubscription(ctx context.Context, sc session.Context, destination string) (topics.Decision, error)
}

type Message struct {
	Destination    string
	SubscriptionID string
	Event          domain.SubmissionEvent
}

type Subscriber struct {
	id     uuid.UUID
	sc     session.Context
	out    chan Message
	mu     sync.Mutex
	closed bool
	// subscription id -> destination
	subscriptions map[string]string
}

func (s *Subscriber) ID() uuid.UUID { return s.id }

// Messages is closed when the subscriber is disconnected.
func (s *Subscriber) Messages() <-chan Message { return s.out }

func (s *Subscriber) Session() session.Context { return s.sc }

// send never blocks. It reports false when the queue is full or closed.
func (s *Subscriber) send(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- m:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

type subscription struct {
	subscriber *Subscriber
	id         string
}

type Hub struct {
	auth       Authorizer
	logger     *slog.Logger
	bufferSize int

	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
	byTopic     map[string]map[subscription]struct{}
}

func NewHub(auth Authorizer, logger *slog.Logger, bufferSize int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		auth:        auth,
		logger:      logger,
		bufferSize:  bufferSize,
		subscribers: map[uuid.UUID]*Subscriber{},
		byTopic:     map[string]map[subscription]struct{}{},
	}
}

// Connect registers a subscriber for the lifetime of one connection.
func (h *Hub) Connect(sc session.Context) *Subscriber {
	sub := &Subscriber{
		id:            uuid.New(),
		sc:            sc,
		out:           make(chan Message, h.bufferSize),
		subscriptions: map[string]string{},
	}
	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()
	return sub
}

// Subscribe authorizes destination for sub and records it under
// subscriptionID. Only an allowed decision registers anything.
func (h *Hub) Subscribe(ctx context.Context, sub *Subscriber, subscriptionID, destination string) (topics.Decision, error) {
	decision, err := h.auth.AuthorizeSubscription(ctx, sub.sc, destination)
	if err != nil || !decision.Allowed() {
		return decision, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.id]; !ok {
		return topics.Deny("subscriber disconnected"), nil
	}
	if previous, ok := sub.subscriptions[subscriptionID]; ok {
		h.removeLocked(sub, subscriptionID, previous)
	}
	sub.subscriptions[subscriptionID] = destination
	set, ok := h.byTopic[destination]
	if !ok {
		set = map[subscription]struct{}{}
		h.byTopic[destination] = set
	}
	set[subscription{subscriber: sub, id: subscriptionID}] = struct{}{}
	return decision, nil
}

func (h *Hub) Unsubscribe(sub *Subscriber, subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if destination, ok := sub.subscriptions[subscriptionID]; ok {
		h.removeLocked(sub, subscriptionID, destination)
	}
}

// Disconnect drops every subscription of sub and closes its queue.
func (h *Hub) Disconnect(sub *Subscriber) {
	h.mu.Lock()
	for id, destination := range sub.subscriptions {
		h.removeLocked(sub, id, destination)
	}
	delete(h.subscribers, sub.id)
	h.mu.Unlock()
	sub.close()
}

func (h *Hub) removeLocked(sub *Subscriber, subscriptionID, destination string) {
	delete(sub.subscriptions, subscriptionID)
	set := h.byTopic[destination]
	delete(set, subscription{subscriber: sub, id: subscriptionID})
	if len(set) == 0 {
		delete(h.byTopic, destination)
	}
}

// Publish delivers evt to every subscription on one of its topics whose
// session is still authorized. It returns the number of messages queued.
// Calls must be serialized by the caller to keep per-submission order.
func (h *Hub) Publish(ctx context.Context, evt domain.SubmissionEvent) int {
	type target struct {
		destination string
		sub         subscription
	}
	h.mu.RLock()
	var targets []target
	for _, destination := range evt.TopicPaths {
		for sub := range h.byTopic[destination] {
			targets = append(targets, target{destination: destination, sub: sub})
		}
	}
	h.mu.RUnlock()

	delivered := 0
	var slow []*Subscriber
	for _, t := range targets {
		decision, err := h.auth.AuthorizeSubscription(ctx, t.sub.subscriber.sc, t.destination)
		if err != nil {
			h.logger.WarnContext(ctx, "fanout revalidation failed",
				"module", "fanout",
				"layer", "application",
				"operation", "publish",
				"outcome", "failure",
				"event_id", evt.EventID.String(),
				"destination", t.destination,
				"error", err,
			)
			continue
		}
		if !decision.Allowed() {
			continue
		}
		msg := Message{Destination: t.destination, SubscriptionID: t.sub.id, Event: evt}
		if t.sub.subscriber.send(msg) {
			delivered++
			continue
		}
		slow = append(slow, t.sub.subscriber)
	}
	for _, sub := range slow {
		h.logger.WarnContext(ctx, "disconnecting slow subscriber",
			"module", "fanout",
			"layer", "application",
			"operation", "publish",
			"outcome", "dropped",
			"subscriber_id", sub.id.String(),
			"member_id", sub.sc.MemberID().String(),
		)
		h.Disconnect(sub)
	}
	return delivered
}

// Subscriptions returns the number of open subscriptions, for readiness
// reporting.
func (h *Hub) Subscriptions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.byTopic {
		n += len(set)
	}
	return n
}
