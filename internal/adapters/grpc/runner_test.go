package grpc_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	grpcadapter "github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/adapters/grpc"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeRunner struct {
	resp *grpcadapter.RunResponseMessage
	err  error
	got  *grpcadapter.RunRequestMessage
}

func (f *fakeRunner) Run(_ context.Context, req *grpcadapter.RunRequestMessage) (*grpcadapter.RunResponseMessage, error) {
	f.got = req
	return f.resp, f.err
}

func startRunner(t *testing.T, impl grpcadapter.RunnerServer) *grpcadapter.RunnerClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server, hs := grpcadapter.NewHealthServer("judge-runner")
	grpcadapter.SetServing(hs, "judge-runner", true)
	grpcadapter.RegisterRunnerServer(server, impl)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	client, err := grpcadapter.NewRunnerClient("passthrough:///bufnet", 5*time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func runRequest() ports.RunRequest {
	return ports.RunRequest{
		Submission: domain.Submission{SubmissionID: uuid.New(), ContestID: uuid.New(), ProblemID: uuid.New(), Language: "PYTHON_3"},
		Code:       []byte("print(1)"),
		Filename:   "main.py",
	}
}

func TestRunnerClientRoundTrip(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{resp: &grpcadapter.RunResponseMessage{Answer: "wrong_answer"}}
	client := startRunner(t, runner)
	req := runRequest()

	verdict, err := client.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if verdict.Answer != domain.AnswerWrongAnswer || verdict.Failed || verdict.SubmissionID != req.Submission.SubmissionID {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
	if runner.got.SubmissionID != req.Submission.SubmissionID.String() || string(runner.got.Code) != "print(1)" || runner.got.Filename != "main.py" {
		t.Fatalf("request not forwarded: %+v", runner.got)
	}
}

func TestRunnerClientFailedVerdict(t *testing.T) {
	t.Parallel()

	client := startRunner(t, &fakeRunner{resp: &grpcadapter.RunResponseMessage{Failed: true, Reason: "sandbox crashed"}})
	verdict, err := client.Run(context.Background(), runRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !verdict.Failed || verdict.Reason != "sandbox crashed" {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
}

func TestRunnerClientErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code codes.Code
		want error
	}{
		{codes.Unavailable, domain.ErrDependencyUnavailable},
		{codes.ResourceExhausted, domain.ErrDependencyUnavailable},
		{codes.InvalidArgument, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		client := startRunner(t, &fakeRunner{err: status.Error(tc.code, "nope")})
		_, err := client.Run(context.Background(), runRequest())
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.code, err, tc.want)
		}
	}

	client := startRunner(t, &fakeRunner{err: status.Error(codes.Internal, "boom")})
	_, err := client.Run(context.Background(), runRequest())
	if err == nil || errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("internal errors are not retryable, got %v", err)
	}

	client = startRunner(t, &fakeRunner{resp: &grpcadapter.RunResponseMessage{Answer: "MAYBE"}})
	if _, err := client.Run(context.Background(), runRequest()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown answers must be rejected, got %v", err)
	}
}

func TestHealthServerReportsServing(t *testing.T) {
	t.Parallel()

	lis := bufconn.Listen(1 << 20)
	server, hs := grpcadapter.NewHealthServer("judge")
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "judge"})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before start, got %v err=%v", resp.GetStatus(), err)
	}
	grpcadapter.SetServing(hs, "judge", true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "judge"})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v err=%v", resp.GetStatus(), err)
	}
}
