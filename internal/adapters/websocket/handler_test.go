package websocket_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	wsadapter "github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/websocket"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/fanout"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/topics"
)

type fakeAuthorizer struct {
	mu      sync.Mutex
	allowed map[string]bool
}

func (f *fakeAuthorizer) set(destination string, allowed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed[destination] = allowed
}

func (f *fakeAuthorizer) AuthorizeSubscription(_ context.Context, _ session.Context, destination string) (topics.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed, known := f.allowed[destination]
	switch {
	case !known:
		return topics.NotFound("no route"), nil
	case !allowed:
		return topics.Deny("denied"), nil
	}
	return topics.Allow(), nil
}

func (f *fakeAuthorizer) AuthorizeFrame(ctx context.Context, sc session.Context, command, destination string) (topics.Decision, error) {
	if command != topics.CommandSubscribe {
		return topics.Allow(), nil
	}
	return f.AuthorizeSubscription(ctx, sc, destination)
}

type fixture struct {
	hub  *fanout.Hub
	auth *fakeAuthorizer
	url  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := &fakeAuthorizer{allowed: map[string]bool{}}
	hub := fanout.NewHub(auth, logger, 8)
	handler := wsadapter.NewHandler(hub, auth, logger, nil)

	member := domain.Member{MemberID: uuid.New(), Type: domain.MemberTypeContestant}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc := session.Context{Member: &member, TraceID: "trace"}
		handler.ServeHTTP(w, r.WithContext(session.WithContext(r.Context(), sc)))
	}))
	t.Cleanup(srv.Close)
	return &fixture{hub: hub, auth: auth, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *fixture) dial(t *testing.T) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn, ctx
}

type rawFrame struct {
	Command     string          `json:"command"`
	Destination string          `json:"destination"`
	ID          string          `json:"id"`
	Receipt     string          `json:"receipt"`
	Message     string          `json:"message"`
	Body        json.RawMessage `json:"body"`
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, out wsadapter.Frame) rawFrame {
	t.Helper()
	if err := wsjson.Write(ctx, conn, out); err != nil {
		t.Fatalf("write %s: %v", out.Command, err)
	}
	var in rawFrame
	if err := wsjson.Read(ctx, conn, &in); err != nil {
		t.Fatalf("read reply to %s: %v", out.Command, err)
	}
	return in
}

func connect(t *testing.T, ctx context.Context, conn *websocket.Conn) {
	t.Helper()
	if in := roundTrip(t, ctx, conn, wsadapter.Frame{Command: "CONNECT"}); in.Command != wsadapter.CommandConnected {
		t.Fatalf("expected CONNECTED, got %+v", in)
	}
}

func TestFramesBeforeConnectAreRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn, ctx := f.dial(t)
	in := roundTrip(t, ctx, conn, wsadapter.Frame{Command: "SUBSCRIBE", ID: "s1", Destination: "/topic/x"})
	if in.Command != wsadapter.CommandError {
		t.Fatalf("expected ERROR, got %+v", in)
	}
}

func TestRejectedSubscriptionsLookAlike(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.set("/topic/denied", false)
	conn, ctx := f.dial(t)
	connect(t, ctx, conn)

	denied := roundTrip(t, ctx, conn, wsadapter.Frame{Command: "SUBSCRIBE", ID: "s1", Destination: "/topic/denied", Receipt: "r1"})
	unknown := roundTrip(t, ctx, conn, wsadapter.Frame{Command: "SUBSCRIBE", ID: "s2", Destination: "/topic/unknown", Receipt: "r2"})
	if denied.Command != wsadapter.CommandError || unknown.Command != wsadapter.CommandError {
		t.Fatalf("expected errors, got %+v and %+v", denied, unknown)
	}
	if denied.Message != unknown.Message {
		t.Fatalf("deny and not-found must not be distinguishable: %q vs %q", denied.Message, unknown.Message)
	}
	if f.hub.Subscriptions() != 0 {
		t.Fatalf("rejected subscriptions must not register")
	}
}

func TestSubscribeAndReceiveMessages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	destination := "/topic/contests/c/submissions"
	f.auth.set(destination, true)
	conn, ctx := f.dial(t)
	connect(t, ctx, conn)

	if in := roundTrip(t, ctx, conn, wsadapter.Frame{Command: "SUBSCRIBE", ID: "sub-1", Destination: destination, Receipt: "r1"}); in.Command != wsadapter.CommandReceipt || in.Receipt != "r1" {
		t.Fatalf("expected RECEIPT, got %+v", in)
	}

	submission := domain.Submission{SubmissionID: uuid.New(), Status: domain.SubmissionStatusJudged, Answer: domain.AnswerAccepted}
	evt := domain.SubmissionEvent{EventID: uuid.New(), Type: domain.SubmissionEventUpdated, Submission: submission, TopicPaths: []string{destination}}
	if n := f.hub.Publish(context.Background(), evt); n != 1 {
		t.Fatalf("delivered = %d", n)
	}

	var in rawFrame
	if err := wsjson.Read(ctx, conn, &in); err != nil {
		t.Fatalf("read message: %v", err)
	}
	if in.Command != wsadapter.CommandMessage || in.Destination != destination || in.ID != "sub-1" {
		t.Fatalf("unexpected frame %+v", in)
	}
	var body struct {
		EventType  string `json:"event_type"`
		Submission struct {
			SubmissionID string `json:"submission_id"`
			Answer       string `json:"answer"`
		} `json:"submission"`
	}
	if err := json.Unmarshal(in.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Submission.SubmissionID != submission.SubmissionID.String() || body.Submission.Answer != string(domain.AnswerAccepted) {
		t.Fatalf("unexpected body %+v", body)
	}

	// Access revoked after subscribing: nothing is delivered.
	f.auth.set(destination, false)
	if n := f.hub.Publish(context.Background(), evt); n != 0 {
		t.Fatalf("revoked subscriber received %d messages", n)
	}
}

func TestUnsubscribeAndDisconnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.auth.set("/topic/a", true)
	conn, ctx := f.dial(t)
	connect(t, ctx, conn)

	roundTrip(t, ctx, conn, wsadapter.Frame{Command: "SUBSCRIBE", ID: "s1", Destination: "/topic/a", Receipt: "r1"})
	if f.hub.Subscriptions() != 1 {
		t.Fatalf("subscriptions = %d", f.hub.Subscriptions())
	}
	roundTrip(t, ctx, conn, wsadapter.Frame{Command: "UNSUBSCRIBE", ID: "s1", Receipt: "r2"})
	if f.hub.Subscriptions() != 0 {
		t.Fatalf("subscriptions after unsubscribe = %d", f.hub.Subscriptions())
	}
	if in := roundTrip(t, ctx, conn, wsadapter.Frame{Command: "SEND", Destination: "/app/anything", Receipt: "r3"}); in.Command != wsadapter.CommandReceipt {
		t.Fatalf("SEND frames pass through unchecked, got %+v", in)
	}
	if in := roundTrip(t, ctx, conn, wsadapter.Frame{Command: "DISCONNECT", Receipt: "r4"}); in.Command != wsadapter.CommandReceipt {
		t.Fatalf("expected RECEIPT on disconnect, got %+v", in)
	}
	var in rawFrame
	err := wsjson.Read(ctx, conn, &in)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", err)
	}
}
