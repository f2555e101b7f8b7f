package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const (
	runnerServiceName = "judge.runner.v1.RunnerService"
	runMethod         = "/" + runnerServiceName + "/Run"
)

type RunRequestMessage struct {
	SubmissionID string `json:"submission_id"`
	ContestID    string `json:"contest_id"`
	ProblemID    string `json:"problem_id"`
	Language     string `json:"language"`
	Filename     string `json:"filename"`
	Code         []byte `json:"code"`
}

type RunResponseMessage struct {
	Answer string `json:"answer"`
	Failed bool   `json:"failed"`
	Reason string `json:"reason,omitempty"`
}

// RunnerServer is implemented by the sandbox side of the runner contract.
type RunnerServer interface {
	Run(ctx context.Context, req *RunRequestMessage) (*RunResponseMessage, error)
}

var runnerServiceDesc = grpc.ServiceDesc{
	ServiceName: runnerServiceName,
	HandlerType: (*RunnerServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Run",
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(RunRequestMessage)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(RunnerServer).Run(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return srv.(RunnerServer).Run(ctx, req.(*RunRequestMessage))
			})
		},
	}},
	Metadata: "runner.json",
}

func RegisterRunnerServer(s grpc.ServiceRegistrar, impl RunnerServer) {
	s.RegisterService(&runnerServiceDesc, impl)
}

// RunnerClient calls the external execution sandbox.
type RunnerClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

func NewRunnerClient(endpoint string, timeout time.Duration, opts ...grpc.DialOption) (*RunnerClient, error) {
	if endpoint == "" {
		return nil, errors.New("runner endpoint is required")
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial runner grpc: %w", err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RunnerClient{conn: conn, timeout: timeout}, nil
}

func (c *RunnerClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *RunnerClient) Run(ctx context.Context, req ports.RunRequest) (domain.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in := &RunRequestMessage{
		SubmissionID: req.Submission.SubmissionID.String(),
		ContestID:    req.Submission.ContestID.String(),
		ProblemID:    req.Submission.ProblemID.String(),
		Language:     string(req.Submission.Language),
		Filename:     req.Filename,
		Code:         req.Code,
	}
	out := new(RunResponseMessage)
	if err := c.conn.Invoke(ctx, runMethod, in, out, grpc.CallContentSubtype(codecName)); err != nil {
		return domain.Verdict{}, mapRunnerError(err)
	}

	verdict := domain.Verdict{SubmissionID: req.Submission.SubmissionID, Failed: out.Failed, Reason: out.Reason}
	if out.Failed {
		return verdict, nil
	}
	answer, err := domain.ParseAnswer(out.Answer)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("runner returned %q: %w", out.Answer, err)
	}
	verdict.Answer = answer
	return verdict, nil
}

func mapRunnerError(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: runner: %v", domain.ErrDependencyUnavailable, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: runner rejected request: %v", domain.ErrInvalidInput, err)
	default:
		return fmt.Errorf("runner call failed: %w", err)
	}
}

var _ ports.SubmissionRunner = (*RunnerClient)(nil)
