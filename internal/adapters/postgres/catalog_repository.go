package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"gorm.io/gorm"
)

type contestRepository struct {
	db *gorm.DB
}

func (r *contestRepository) GetByID(ctx context.Context, contestID uuid.UUID) (domain.Contest, error) {
	var row contestModel
	if err := r.db.WithContext(ctx).Where("contest_id = ?", contestID).Take(&row).Error; err != nil {
		return domain.Contest{}, lookupErr(err, "contest", contestID)
	}
	return toDomainContest(row), nil
}

type memberRepository struct {
	db *gorm.DB
}

func (r *memberRepository) GetByID(ctx context.Context, memberID uuid.UUID) (domain.Member, error) {
	var row memberModel
	if err := r.db.WithContext(ctx).Where("member_id = ?", memberID).Take(&row).Error; err != nil {
		return domain.Member{}, lookupErr(err, "member", memberID)
	}
	return toDomainMember(row), nil
}

type problemRepository struct {
	db *gorm.DB
}

func (r *problemRepository) GetByID(ctx context.Context, problemID uuid.UUID) (domain.Problem, error) {
	var row problemModel
	if err := r.db.WithContext(ctx).Where("problem_id = ?", problemID).Take(&row).Error; err != nil {
		return domain.Problem{}, lookupErr(err, "problem", problemID)
	}
	return toDomainProblem(row), nil
}

type attachmentRepository struct {
	db *gorm.DB
}

func (r *attachmentRepository) Create(ctx context.Context, a domain.Attachment) error {
	row := attachmentModel{
		AttachmentID: a.AttachmentID, MemberID: a.MemberID, ContestID: a.ContestID, Filename: a.Filename,
		ContentType: a.ContentType, Content: a.Content, CreatedAt: a.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: attachment %s exists", domain.ErrConflict, a.AttachmentID)
		}
		return fmt.Errorf("%w: create attachment: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *attachmentRepository) GetByID(ctx context.Context, attachmentID uuid.UUID) (domain.Attachment, error) {
	var row attachmentModel
	if err := r.db.WithContext(ctx).Where("attachment_id = ?", attachmentID).Take(&row).Error; err != nil {
		return domain.Attachment{}, lookupErr(err, "attachment", attachmentID)
	}
	return toDomainAttachment(row), nil
}
