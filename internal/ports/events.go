package ports

import (
	"context"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}

type RunRequest struct {
	Submission domain.Submission
	Code       []byte
	Filename   string
}

// SubmissionRunner executes a submission in the external sandbox.
type SubmissionRunner interface {
	Run(ctx context.Context, req RunRequest) (domain.Verdict, error)
}
