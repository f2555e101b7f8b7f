package postgres

import (
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Contests    ports.ContestRepository
	Members     ports.MemberRepository
	Problems    ports.ProblemRepository
	Attachments ports.AttachmentRepository
	Submissions ports.SubmissionRepository
	Outbox      ports.OutboxRepository
	EventDedup  ports.EventDedupRepository
	Idempotency ports.IdempotencyRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Contests:    &contestRepository{db: db},
		Members:     &memberRepository{db: db},
		Problems:    &problemRepository{db: db},
		Attachments: &attachmentRepository{db: db},
		Submissions: &submissionRepository{db: db},
		Outbox:      &outboxRepository{db: db},
		EventDedup:  &eventDedupRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
	}
}
