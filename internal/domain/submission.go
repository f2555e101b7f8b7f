package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SubmissionStatus string

const (
	SubmissionStatusJudging SubmissionStatus = "JUDGING"
	SubmissionStatusJudged  SubmissionStatus = "JUDGED"
	SubmissionStatusFailed  SubmissionStatus = "FAILED"
)

type SubmissionAnswer string

const (
	AnswerNoAnswer            SubmissionAnswer = "NO_ANSWER"
	AnswerAccepted            SubmissionAnswer = "ACCEPTED"
	AnswerWrongAnswer         SubmissionAnswer = "WRONG_ANSWER"
	AnswerTimeLimitExceeded   SubmissionAnswer = "TIME_LIMIT_EXCEEDED"
	AnswerMemoryLimitExceeded SubmissionAnswer = "MEMORY_LIMIT_EXCEEDED"
	AnswerRuntimeError        SubmissionAnswer = "RUNTIME_ERROR"
	AnswerCompilationError    SubmissionAnswer = "COMPILATION_ERROR"
)

func ParseAnswer(v string) (SubmissionAnswer, error) {
	answer := SubmissionAnswer(strings.ToUpper(strings.TrimSpace(v)))
	switch answer {
	case AnswerNoAnswer, AnswerAccepted, AnswerWrongAnswer, AnswerTimeLimitExceeded,
		AnswerMemoryLimitExceeded, AnswerRuntimeError, AnswerCompilationError:
		return answer, nil
	default:
		return "", fmt.Errorf("%w: unknown answer %q", ErrInvalidInput, v)
	}
}

type Submission struct {
	SubmissionID     uuid.UUID
	ContestID        uuid.UUID
	MemberID         uuid.UUID
	ProblemID        uuid.UUID
	CodeAttachmentID uuid.UUID
	Language         Language
	Status           SubmissionStatus
	Answer           SubmissionAnswer
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSubmission returns a submission waiting for its first judgment.
func NewSubmission(contestID, memberID, problemID, codeAttachmentID uuid.UUID, language Language, now time.Time) Submission {
	return Submission{
		SubmissionID:     uuid.New(),
		ContestID:        contestID,
		MemberID:         memberID,
		ProblemID:        problemID,
		CodeAttachmentID: codeAttachmentID,
		Language:         language,
		Status:           SubmissionStatusJudging,
		Answer:           AnswerNoAnswer,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Fail moves the submission to FAILED from any state.
func (s *Submission) Fail(now time.Time) {
	s.Status = SubmissionStatusFailed
	s.Answer = AnswerNoAnswer
	s.UpdatedAt = now
}

// Rerun resets a settled submission for another judging pass.
func (s *Submission) Rerun(now time.Time) error {
	if s.Status == SubmissionStatusJudging {
		return fmt.Errorf("%w: submission %s is already judging", ErrForbidden, s.SubmissionID)
	}
	s.Status = SubmissionStatusJudging
	s.Answer = AnswerNoAnswer
	s.UpdatedAt = now
	return nil
}

// ApplyAnswer records a verdict. Without force it only applies while the
// submission is JUDGING and otherwise reports applied=false with no error.
func (s *Submission) ApplyAnswer(answer SubmissionAnswer, force bool, now time.Time) (bool, error) {
	if answer == AnswerNoAnswer {
		return false, fmt.Errorf("%w: answer update must carry a verdict", ErrBusiness)
	}
	if !force && s.Status != SubmissionStatusJudging {
		return false, nil
	}
	s.Status = SubmissionStatusJudged
	s.Answer = answer
	s.UpdatedAt = now
	return true, nil
}

type SubmissionEventType string

const (
	SubmissionEventCreated SubmissionEventType = "submission.created"
	SubmissionEventUpdated SubmissionEventType = "submission.updated"
	SubmissionEventRerun   SubmissionEventType = "submission.rerun"
)

// SubmissionEvent carries the full snapshot after the transition plus the
// topics fanout should consider for delivery.
type SubmissionEvent struct {
	EventID    uuid.UUID
	Type       SubmissionEventType
	Submission Submission
	TopicPaths []string
	TraceID    string
	OccurredAt time.Time
}

type Attachment struct {
	AttachmentID uuid.UUID
	MemberID     uuid.UUID
	ContestID    uuid.UUID
	Filename     string
	ContentType  string
	Content      []byte
	CreatedAt    time.Time
}

// Verdict is what the external runner reports for a submission.
type Verdict struct {
	SubmissionID uuid.UUID
	Answer       SubmissionAnswer
	Failed       bool
	Reason       string
}
