package postgres

import (
	"time"

	"github.com/google/uuid"
)

type contestModel struct {
	ContestID uuid.UUID `gorm:"column:contest_id;type:uuid;primaryKey"`
	Slug      string    `gorm:"column:slug"`
	Title     string    `gorm:"column:title"`
	StartAt   time.Time `gorm:"column:start_at"`
	EndAt     time.Time `gorm:"column:end_at"`
	// comma separated language codes
	Languages string    `gorm:"column:languages"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (contestModel) TableName() string { return "contests" }

type memberModel struct {
	MemberID  uuid.UUID  `gorm:"column:member_id;type:uuid;primaryKey"`
	ContestID *uuid.UUID `gorm:"column:contest_id;type:uuid"`
	Type      string     `gorm:"column:member_type"`
	Name      string     `gorm:"column:name"`
	Login     string     `gorm:"column:login"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

func (memberModel) TableName() string { return "members" }

type problemModel struct {
	ProblemID   uuid.UUID `gorm:"column:problem_id;type:uuid;primaryKey"`
	ContestID   uuid.UUID `gorm:"column:contest_id;type:uuid"`
	Letter      string    `gorm:"column:letter"`
	Title       string    `gorm:"column:title"`
	TimeLimitMS int       `gorm:"column:time_limit_ms"`
}

func (problemModel) TableName() string { return "problems" }

type attachmentModel struct {
	AttachmentID uuid.UUID `gorm:"column:attachment_id;type:uuid;primaryKey"`
	MemberID     uuid.UUID `gorm:"column:member_id;type:uuid"`
	ContestID    uuid.UUID `gorm:"column:contest_id;type:uuid"`
	Filename     string    `gorm:"column:filename"`
	ContentType  string    `gorm:"column:content_type"`
	Content      []byte    `gorm:"column:content"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (attachmentModel) TableName() string { return "code_attachments" }

type submissionModel struct {
	SubmissionID     uuid.UUID `gorm:"column:submission_id;type:uuid;primaryKey"`
	ContestID        uuid.UUID `gorm:"column:contest_id;type:uuid"`
	MemberID         uuid.UUID `gorm:"column:member_id;type:uuid"`
	ProblemID        uuid.UUID `gorm:"column:problem_id;type:uuid"`
	CodeAttachmentID uuid.UUID `gorm:"column:code_attachment_id;type:uuid"`
	Language         string    `gorm:"column:language"`
	Status           string    `gorm:"column:status"`
	Answer           string    `gorm:"column:answer"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (submissionModel) TableName() string { return "submissions" }

type submissionOutboxModel struct {
	OutboxID         uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType        string     `gorm:"column:event_type"`
	PartitionKey     string     `gorm:"column:partition_key"`
	PartitionKeyPath string     `gorm:"column:partition_key_path"`
	Payload          string     `gorm:"column:payload"`
	SchemaVersion    string     `gorm:"column:schema_version"`
	TraceID          string     `gorm:"column:trace_id"`
	Sequence         int64      `gorm:"column:sequence;autoIncrement;<-:false"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	FirstSeenAt      time.Time  `gorm:"column:first_seen_at"`
	PublishedAt      *time.Time `gorm:"column:published_at"`
	RetryCount       int        `gorm:"column:retry_count"`
	LastError        *string    `gorm:"column:last_error"`
	LastErrorAt      *time.Time `gorm:"column:last_error_at"`
}

func (submissionOutboxModel) TableName() string { return "submission_outbox" }

type submissionIdempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (submissionIdempotencyModel) TableName() string { return "submission_idempotency" }

type submissionEventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	EventType   string    `gorm:"column:event_type"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (submissionEventDedupModel) TableName() string { return "submission_event_dedup" }
