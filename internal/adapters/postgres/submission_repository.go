package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) CreateWithOutbox(ctx context.Context, submission domain.Submission, events []ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toSubmissionModel(submission)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: submission %s exists", domain.ErrConflict, submission.SubmissionID)
			}
			return fmt.Errorf("%w: create submission: %v", domain.ErrStorageUnavailable, err)
		}
		return insertOutbox(tx, events)
	})
}

func (r *submissionRepository) GetByID(ctx context.Context, submissionID uuid.UUID) (domain.Submission, error) {
	var row submissionModel
	if err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Take(&row).Error; err != nil {
		return domain.Submission{}, lookupErr(err, "submission", submissionID)
	}
	return toDomainSubmission(row), nil
}

// Transition holds SELECT ... FOR UPDATE on the submission row for the
// duration of fn, so concurrent transitions on one submission serialize.
func (r *submissionRepository) Transition(ctx context.Context, submissionID uuid.UUID, fn ports.TransitionFunc) (domain.Submission, error) {
	var out domain.Submission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row submissionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("submission_id = ?", submissionID).
			Take(&row).Error; err != nil {
			return lookupErr(err, "submission", submissionID)
		}
		current := toDomainSubmission(row)
		next := current
		events, err := fn(&next)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			out = current
			return nil
		}
		if err := tx.Model(&submissionModel{}).
			Where("submission_id = ?", submissionID).
			Updates(map[string]any{
				"status":     string(next.Status),
				"answer":     string(next.Answer),
				"updated_at": next.UpdatedAt,
			}).Error; err != nil {
			return fmt.Errorf("%w: update submission: %v", domain.ErrStorageUnavailable, err)
		}
		if err := insertOutbox(tx, events); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func insertOutbox(tx *gorm.DB, events []ports.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]submissionOutboxModel, 0, len(events))
	for _, event := range events {
		rows = append(rows, toOutboxModel(event))
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("%w: enqueue outbox: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}
