package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
)

type Config struct {
	ServiceName          string
	IdempotencyTTL       time.Duration
	EventDedupTTL        time.Duration
	SubmissionRateLimit  int
	SubmissionRateWindow time.Duration
	// SystemMemberID identifies the API member the runner dispatcher acts as.
	SystemMemberID uuid.UUID
}

type CreateSubmissionRequest struct {
	ContestID        uuid.UUID `json:"-"`
	ProblemID        uuid.UUID `json:"problem_id"`
	Language         string    `json:"language"`
	CodeAttachmentID uuid.UUID `json:"code_attachment_id"`
}

type UpdateAnswerRequest struct {
	Answer string `json:"answer"`
	Force  bool   `json:"force,omitempty"`
}

type UploadCodeRequest struct {
	ContestID   uuid.UUID
	Filename    string
	ContentType string
	Content     []byte
}

type SubmissionView struct {
	SubmissionID     string    `json:"submission_id"`
	ContestID        string    `json:"contest_id"`
	MemberID         string    `json:"member_id"`
	ProblemID        string    `json:"problem_id"`
	CodeAttachmentID string    `json:"code_attachment_id"`
	Language         string    `json:"language"`
	Status           string    `json:"status"`
	Answer           string    `json:"answer"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type AttachmentView struct {
	AttachmentID string    `json:"attachment_id"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int       `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToSubmissionView is the client-facing shape of a submission, shared by
// the HTTP responses and live-feed messages.
func ToSubmissionView(s domain.Submission) SubmissionView {
	return SubmissionView{
		SubmissionID:     s.SubmissionID.String(),
		ContestID:        s.ContestID.String(),
		MemberID:         s.MemberID.String(),
		ProblemID:        s.ProblemID.String(),
		CodeAttachmentID: s.CodeAttachmentID.String(),
		Language:         string(s.Language),
		Status:           string(s.Status),
		Answer:           string(s.Answer),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
