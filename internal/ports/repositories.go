package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
)

type ContestRepository interface {
	GetByID(ctx context.Context, contestID uuid.UUID) (domain.Contest, error)
}

type MemberRepository interface {
	GetByID(ctx context.Context, memberID uuid.UUID) (domain.Member, error)
}

type ProblemRepository interface {
	GetByID(ctx context.Context, problemID uuid.UUID) (domain.Problem, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, attachment domain.Attachment) error
	GetByID(ctx context.Context, attachmentID uuid.UUID) (domain.Attachment, error)
}

// TransitionFunc mutates the locked submission in place and returns the
// outbox events to persist with it. Returning no events leaves the stored
// row untouched.
type TransitionFunc func(current *domain.Submission) ([]OutboxEvent, error)

type SubmissionRepository interface {
	CreateWithOutbox(ctx context.Context, submission domain.Submission, events []OutboxEvent) error
	GetByID(ctx context.Context, submissionID uuid.UUID) (domain.Submission, error)
	// Transition runs fn against the row locked for update and commits the
	// new state and events in one transaction.
	Transition(ctx context.Context, submissionID uuid.UUID, fn TransitionFunc) (domain.Submission, error)
}

type OutboxEvent struct {
	EventID          uuid.UUID
	EventType        string
	PartitionKey     string
	PartitionKeyPath string
	Payload          []byte
	OccurredAt       time.Time
	SchemaVersion    string
	TraceID          string
}

type OutboxRecord struct {
	OutboxID     uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	PublishedAt  *time.Time
	LastError    *string
	LastErrorAt  *time.Time
	FirstSeenAt  time.Time
}

type OutboxRepository interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error
}

type EventDedupRepository interface {
	IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}
