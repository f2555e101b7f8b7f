package events_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/events"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOutbox struct {
	mu        sync.Mutex
	records   []ports.OutboxRecord
	published map[uuid.UUID]bool
	failed    map[uuid.UUID]int
	markErr   map[uuid.UUID]error
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ports.OutboxRecord
	for _, r := range f.records {
		if !f.published[r.OutboxID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.markErr[id]; err != nil {
		delete(f.markErr, id)
		return err
	}
	f.published[id] = true
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id]++
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	failKey map[string]bool
	sent    []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ []byte, partitionKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKey[partitionKey] {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, partitionKey+":"+eventType)
	return nil
}

func record(key, eventType string) ports.OutboxRecord {
	return ports.OutboxRecord{OutboxID: uuid.New(), EventType: eventType, PartitionKey: key, Payload: []byte("{}")}
}

func TestOutboxWorkerHoldsBackFailedPartition(t *testing.T) {
	t.Parallel()

	outbox := &fakeOutbox{
		records: []ports.OutboxRecord{
			record("a", "submission.updated"),
			record("b", "submission.created"),
			record("a", "submission.rerun"),
		},
		published: map[uuid.UUID]bool{},
		failed:    map[uuid.UUID]int{},
	}
	pub := &recordingPublisher{failKey: map[string]bool{"a": true}}
	worker := events.NewOutboxWorker(discardLogger(), outbox, pub, time.Second, 10)

	n, err := worker.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 1 || len(pub.sent) != 1 || pub.sent[0] != "b:submission.created" {
		t.Fatalf("unexpected publishes: %v", pub.sent)
	}
	if outbox.failed[outbox.records[0].OutboxID] != 1 || outbox.failed[outbox.records[2].OutboxID] != 0 {
		t.Fatalf("only the first record of the failed partition is marked failed: %v", outbox.failed)
	}

	pub.failKey["a"] = false
	if _, err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := []string{"b:submission.created", "a:submission.updated", "a:submission.rerun"}
	for i, w := range want {
		if pub.sent[i] != w {
			t.Fatalf("publish %d = %s, want %s", i, pub.sent[i], w)
		}
	}
}

func TestOutboxWorkerLogsAndHoldsBackUnmarkedRecord(t *testing.T) {
	t.Parallel()

	first := record("a", "submission.created")
	outbox := &fakeOutbox{
		records: []ports.OutboxRecord{
			first,
			record("a", "submission.updated"),
			record("b", "submission.created"),
		},
		published: map[uuid.UUID]bool{},
		failed:    map[uuid.UUID]int{},
		markErr:   map[uuid.UUID]error{first.OutboxID: errors.New("db down")},
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	pub := &recordingPublisher{failKey: map[string]bool{}}
	worker := events.NewOutboxWorker(logger, outbox, pub, time.Second, 10)

	if _, err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := strings.Join(pub.sent, ","); got != "a:submission.created,b:submission.created" {
		t.Fatalf("first pass publishes = %s", got)
	}
	if !strings.Contains(logs.String(), `"operation":"mark_published"`) || !strings.Contains(logs.String(), "db down") {
		t.Fatalf("bookkeeping failure not logged: %s", logs.String())
	}

	if _, err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := "a:submission.created,b:submission.created,a:submission.created,a:submission.updated"
	if got := strings.Join(pub.sent, ","); got != want {
		t.Fatalf("publishes = %s, want %s", got, want)
	}
}

type fakeHandler struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (h *fakeHandler) HandleSubmissionDispatch(context.Context, []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.failures > 0 {
		h.failures--
		return h.err
	}
	return nil
}

func TestConsumerWorkerDispatchesRunnerTopics(t *testing.T) {
	t.Parallel()

	topics := map[string]string{"submission.created": "judge.submission.created"}
	bus := events.NewMemoryBus(topics)
	_ = bus.Publish(context.Background(), "submission.created", []byte("{}"), "k")
	_ = bus.Publish(context.Background(), "submission.updated", []byte("{}"), "k")

	handler := &fakeHandler{}
	worker := events.NewConsumerWorker(discardLogger(), bus, handler, []string{"judge.submission.created"}, time.Second)
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("expected only the runner topic dispatched, got %d calls", handler.calls)
	}
	if msgs, _ := bus.Poll(context.Background(), 10); len(msgs) != 0 {
		t.Fatalf("bus not drained: %d left", len(msgs))
	}
}

func TestConsumerWorkerRetriesUnavailableRunner(t *testing.T) {
	t.Parallel()

	bus := events.NewMemoryBus(nil)
	_ = bus.Publish(context.Background(), "submission.rerun", []byte("{}"), "k")
	handler := &fakeHandler{failures: 1, err: domain.ErrDependencyUnavailable}
	worker := events.NewConsumerWorker(discardLogger(), bus, handler, []string{"submission.rerun"}, time.Second)
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if handler.calls != 2 {
		t.Fatalf("expected one retry, got %d calls", handler.calls)
	}

	_ = bus.Publish(context.Background(), "submission.rerun", []byte("{}"), "k")
	handler.failures, handler.err, handler.calls = 2, domain.ErrStorageUnavailable, 0
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if handler.calls != 3 {
		t.Fatalf("storage outages are retried too, got %d calls", handler.calls)
	}

	_ = bus.Publish(context.Background(), "submission.rerun", []byte("{}"), "k")
	handler.failures, handler.err, handler.calls = 1, domain.ErrInvalidInput, 0
	_ = worker.ProcessOnce(context.Background())
	if handler.calls != 1 {
		t.Fatalf("non-retryable errors must not retry, got %d calls", handler.calls)
	}
}

type recordingConsumer struct {
	pending   []events.Message
	committed int
}

func (c *recordingConsumer) Poll(context.Context, int) ([]events.Message, error) {
	out := c.pending
	c.pending = nil
	return out, nil
}

func (c *recordingConsumer) Commit(_ context.Context, msgs ...events.Message) error {
	c.committed += len(msgs)
	return nil
}

func TestConsumerWorkerCommitsHandledBatch(t *testing.T) {
	t.Parallel()

	consumer := &recordingConsumer{pending: []events.Message{
		{Topic: "judge.submission.created", Payload: []byte("{}")},
		{Topic: "judge.submission.updated", Payload: []byte("{}")},
		{Topic: "judge.submission.created", Payload: []byte("{}")},
	}}
	handler := &fakeHandler{failures: 1, err: domain.ErrInvalidInput}
	worker := events.NewConsumerWorker(discardLogger(), consumer, handler, []string{"judge.submission.created"}, time.Second)
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if handler.calls != 2 || consumer.committed != 3 {
		t.Fatalf("calls=%d committed=%d", handler.calls, consumer.committed)
	}
}

func TestConsumerWorkerLeavesTailUncommittedOnShutdown(t *testing.T) {
	t.Parallel()

	consumer := &recordingConsumer{pending: []events.Message{
		{Topic: "judge.submission.created", Payload: []byte("{}")},
		{Topic: "judge.submission.created", Payload: []byte("{}")},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	handler := &cancellingHandler{cancel: cancel}
	worker := events.NewConsumerWorker(discardLogger(), consumer, handler, []string{"judge.submission.created"}, time.Second)
	if err := worker.ProcessOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if consumer.committed != 1 {
		t.Fatalf("only the handled message may be committed, got %d", consumer.committed)
	}
}

// cancellingHandler handles the first message, then fails with a runner
// outage and stops the worker.
type cancellingHandler struct {
	cancel context.CancelFunc
	calls  int
}

func (h *cancellingHandler) HandleSubmissionDispatch(context.Context, []byte) error {
	h.calls++
	if h.calls == 1 {
		return nil
	}
	h.cancel()
	return domain.ErrDependencyUnavailable
}

func TestMultiPublisherJoinsErrors(t *testing.T) {
	t.Parallel()

	ok := &recordingPublisher{failKey: map[string]bool{}}
	bad := &recordingPublisher{failKey: map[string]bool{"k": true}}
	err := events.NewMultiPublisher(ok, bad).Publish(context.Background(), "submission.updated", nil, "k")
	if err == nil {
		t.Fatalf("expected error from failing sink")
	}
	if len(ok.sent) != 1 {
		t.Fatalf("healthy sink must still receive the event")
	}
}
