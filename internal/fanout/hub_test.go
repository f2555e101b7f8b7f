package fanout_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/fanout"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/topics"
)

// fakeAuthorizer allows (member, destination) pairs present in allowed.
type fakeAuthorizer struct {
	mu      sync.Mutex
	allowed map[string]bool
	err     error
	calls   int
}

func key(memberID uuid.UUID, destination string) string { return memberID.String() + " " + destination }

func (f *fakeAuthorizer) allow(memberID uuid.UUID, destination string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed[key(memberID, destination)] = ok
}

func (f *fakeAuthorizer) AuthorizeSubscription(_ context.Context, sc session.Context, destination string) (topics.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return topics.Decision{}, f.err
	}
	if f.allowed[key(sc.MemberID(), destination)] {
		return topics.Allow(), nil
	}
	return topics.Deny("not allowed"), nil
}

func member() session.Context {
	return session.Context{Member: &domain.Member{MemberID: uuid.New(), Type: domain.MemberTypeContestant}}
}

func event(paths ...string) domain.SubmissionEvent {
	return domain.SubmissionEvent{EventID: uuid.New(), Type: domain.SubmissionEventUpdated, TopicPaths: paths}
}

func TestSubscribeRequiresAuthorization(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthorizer{allowed: map[string]bool{}}
	hub := fanout.NewHub(auth, nil, 4)
	sc := member()
	sub := hub.Connect(sc)

	d, err := hub.Subscribe(context.Background(), sub, "sub-1", "/topic/a")
	if err != nil || d.Allowed() {
		t.Fatalf("expected deny, got %+v %v", d, err)
	}
	if hub.Subscriptions() != 0 {
		t.Fatalf("denied subscription was registered")
	}

	auth.allow(sc.MemberID(), "/topic/a", true)
	if d, _ := hub.Subscribe(context.Background(), sub, "sub-1", "/topic/a"); !d.Allowed() {
		t.Fatalf("expected allow")
	}
	if hub.Subscriptions() != 1 {
		t.Fatalf("expected one subscription, got %d", hub.Subscriptions())
	}
}

func TestPublishRevalidatesBeforeDelivery(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthorizer{allowed: map[string]bool{}}
	hub := fanout.NewHub(auth, nil, 4)
	sc := member()
	sub := hub.Connect(sc)
	auth.allow(sc.MemberID(), "/topic/a", true)
	if _, err := hub.Subscribe(context.Background(), sub, "sub-1", "/topic/a"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if n := hub.Publish(context.Background(), event("/topic/a", "/topic/b")); n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}
	msg := <-sub.Messages()
	if msg.Destination != "/topic/a" || msg.SubscriptionID != "sub-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	auth.allow(sc.MemberID(), "/topic/a", false)
	if n := hub.Publish(context.Background(), event("/topic/a")); n != 0 {
		t.Fatalf("revoked access must not be delivered, got %d", n)
	}

	auth.mu.Lock()
	auth.err = errors.New("db down")
	auth.mu.Unlock()
	if n := hub.Publish(context.Background(), event("/topic/a")); n != 0 {
		t.Fatalf("failed revalidation must not deliver, got %d", n)
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthorizer{allowed: map[string]bool{}}
	hub := fanout.NewHub(auth, nil, 16)
	sc := member()
	sub := hub.Connect(sc)
	auth.allow(sc.MemberID(), "/topic/a", true)
	_, _ = hub.Subscribe(context.Background(), sub, "s", "/topic/a")

	var sent []uuid.UUID
	for i := 0; i < 10; i++ {
		evt := event("/topic/a")
		sent = append(sent, evt.EventID)
		hub.Publish(context.Background(), evt)
	}
	for i, want := range sent {
		got := <-sub.Messages()
		if got.Event.EventID != want {
			t.Fatalf("message %d out of order", i)
		}
	}
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthorizer{allowed: map[string]bool{}}
	hub := fanout.NewHub(auth, nil, 1)
	sc := member()
	sub := hub.Connect(sc)
	auth.allow(sc.MemberID(), "/topic/a", true)
	_, _ = hub.Subscribe(context.Background(), sub, "s", "/topic/a")

	hub.Publish(context.Background(), event("/topic/a"))
	hub.Publish(context.Background(), event("/topic/a"))

	<-sub.Messages()
	if _, ok := <-sub.Messages(); ok {
		t.Fatalf("expected closed queue after overflow")
	}
	if hub.Subscriptions() != 0 {
		t.Fatalf("slow subscriber still registered")
	}
}

func TestUnsubscribeAndDisconnect(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthorizer{allowed: map[string]bool{}}
	hub := fanout.NewHub(auth, nil, 4)
	sc := member()
	sub := hub.Connect(sc)
	auth.allow(sc.MemberID(), "/topic/a", true)
	auth.allow(sc.MemberID(), "/topic/b", true)
	_, _ = hub.Subscribe(context.Background(), sub, "a", "/topic/a")
	_, _ = hub.Subscribe(context.Background(), sub, "b", "/topic/b")

	hub.Unsubscribe(sub, "a")
	if n := hub.Publish(context.Background(), event("/topic/a")); n != 0 {
		t.Fatalf("unsubscribed topic delivered")
	}
	hub.Disconnect(sub)
	hub.Disconnect(sub)
	if hub.Subscriptions() != 0 {
		t.Fatalf("disconnect left subscriptions behind")
	}
	if _, ok := <-sub.Messages(); ok {
		t.Fatalf("queue not closed on disconnect")
	}
}
