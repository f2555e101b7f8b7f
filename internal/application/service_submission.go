package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/authorization"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
)

// UploadCode stores source code for a later submission by the same member.
func (s *Service) UploadCode(ctx context.Context, sc session.Context, req UploadCodeRequest) (AttachmentView, error) {
	if err := s.authorizer.Chain(sc).
		RequireAuthenticated().
		RequireMemberBelongsToContest(req.ContestID).
		Check(ctx); err != nil {
		return AttachmentView{}, err
	}
	if err := domain.ValidateCode(req.Content); err != nil {
		return AttachmentView{}, err
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return AttachmentView{}, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = "text/plain"
	}
	attachment := domain.Attachment{
		AttachmentID: uuid.New(),
		MemberID:     sc.MemberID(),
		ContestID:    req.ContestID,
		Filename:     filename,
		ContentType:  contentType,
		Content:      req.Content,
		CreatedAt:    s.nowFn(),
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		return AttachmentView{}, err
	}
	return AttachmentView{
		AttachmentID: attachment.AttachmentID.String(),
		Filename:     attachment.Filename,
		ContentType:  attachment.ContentType,
		SizeBytes:    len(attachment.Content),
		CreatedAt:    attachment.CreatedAt,
	}, nil
}

// CreateSubmission opens a submission in (JUDGING, NO_ANSWER) and records a
// created event in the same transaction.
func (s *Service) CreateSubmission(ctx context.Context, sc session.Context, req CreateSubmissionRequest, idempotencyKey string) (SubmissionView, error) {
	if !sc.Authenticated() {
		return SubmissionView{}, fmt.Errorf("%w: submissions require a member session", domain.ErrUnauthorized)
	}
	language := domain.NormalizeLanguage(req.Language)
	if err := domain.ValidateLanguage(language); err != nil {
		// No contest can allow a language that is not a valid identifier.
		return SubmissionView{}, fmt.Errorf("%w: language %q is not allowed", domain.ErrForbidden, req.Language)
	}
	req.Language = string(language)
	fingerprint := map[string]any{"member_id": sc.MemberID(), "contest_id": req.ContestID, "request": req}

	var replayed SubmissionView
	if ok, err := s.replayIdempotent(ctx, idempotencyKey, fingerprint, &replayed); err != nil || ok {
		return replayed, err
	}
	if err := s.authorizer.Chain(sc).
		RequireMemberType(domain.MemberTypeContestant).
		RequireMemberBelongsToContest(req.ContestID).
		RequireContestActive(req.ContestID).
		Check(ctx); err != nil {
		s.logOperation(ctx, slog.LevelInfo, "submission rejected", "create_submission", errorOutcome(err), sc, "error", err)
		return SubmissionView{}, err
	}
	if err := s.checkSubmissionRate(ctx, sc.MemberID()); err != nil {
		return SubmissionView{}, err
	}

	member, err := s.members.GetByID(ctx, sc.MemberID())
	if err != nil {
		return SubmissionView{}, err
	}
	problem, err := s.problems.GetByID(ctx, req.ProblemID)
	if err != nil {
		return SubmissionView{}, err
	}
	if problem.ContestID != req.ContestID {
		return SubmissionView{}, fmt.Errorf("%w: problem %s in contest %s", domain.ErrNotFound, req.ProblemID, req.ContestID)
	}
	attachment, err := s.attachments.GetByID(ctx, req.CodeAttachmentID)
	if err != nil {
		return SubmissionView{}, err
	}
	if attachment.MemberID != member.MemberID {
		return SubmissionView{}, fmt.Errorf("%w: code attachment %s", domain.ErrNotFound, req.CodeAttachmentID)
	}

	contest, err := s.contests.GetByID(ctx, req.ContestID)
	if err != nil {
		return SubmissionView{}, err
	}
	if !contest.AllowsLanguage(language) {
		return SubmissionView{}, fmt.Errorf("%w: language %s is not allowed in contest %s", domain.ErrForbidden, language, req.ContestID)
	}

	if err := s.reserveIdempotency(ctx, idempotencyKey, fingerprint); err != nil {
		return SubmissionView{}, err
	}
	submission := domain.NewSubmission(req.ContestID, member.MemberID, problem.ProblemID, attachment.AttachmentID, language, s.nowFn())
	events, err := s.submissionEvents(sc, submission, domain.SubmissionEventCreated)
	if err != nil {
		return SubmissionView{}, err
	}
	if err := s.submissions.CreateWithOutbox(ctx, submission, events); err != nil {
		return SubmissionView{}, err
	}

	resp := ToSubmissionView(submission)
	s.completeIdempotency(ctx, idempotencyKey, http.StatusCreated, resp)
	s.logOperation(ctx, slog.LevelInfo, "submission created", "create_submission", "success", sc,
		"submission_id", resp.SubmissionID,
		"problem_id", resp.ProblemID,
		"language", resp.Language,
	)
	return resp, nil
}

// GetSubmission is visible to its author and to contest staff.
func (s *Service) GetSubmission(ctx context.Context, sc session.Context, submissionID uuid.UUID) (SubmissionView, error) {
	if !sc.Authenticated() {
		return SubmissionView{}, fmt.Errorf("%w: no authenticated member", domain.ErrUnauthorized)
	}
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return SubmissionView{}, err
	}
	if submission.MemberID != sc.MemberID() {
		if err := s.authorizer.Chain(sc).
			RequireMemberBelongsToContest(submission.ContestID).
			RequireMemberType(domain.ElevatedMemberTypes...).
			Check(ctx); err != nil {
			return SubmissionView{}, err
		}
	}
	return ToSubmissionView(submission), nil
}

// RerunSubmission sends a settled submission back to the runner.
func (s *Service) RerunSubmission(ctx context.Context, sc session.Context, submissionID uuid.UUID) (SubmissionView, error) {
	current, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return SubmissionView{}, err
	}
	if err := s.authorizer.Chain(sc).
		RequireMemberType(domain.ElevatedMemberTypes...).
		RequireMemberBelongsToContest(current.ContestID).
		Check(ctx); err != nil {
		return SubmissionView{}, err
	}

	updated, err := s.submissions.Transition(ctx, submissionID, func(sub *domain.Submission) ([]ports.OutboxEvent, error) {
		if err := sub.Rerun(s.nowFn()); err != nil {
			return nil, err
		}
		return s.submissionEvents(sc, *sub, domain.SubmissionEventUpdated, domain.SubmissionEventRerun)
	})
	if err != nil {
		s.logOperation(ctx, slog.LevelInfo, "rerun rejected", "rerun_submission", errorOutcome(err), sc,
			"submission_id", submissionID.String(), "error", err)
		return SubmissionView{}, err
	}
	s.logOperation(ctx, slog.LevelInfo, "submission rerun", "rerun_submission", "success", sc,
		"submission_id", submissionID.String())
	return ToSubmissionView(updated), nil
}

// UpdateAnswer records a verdict. Without force a submission that is no
// longer judging is returned unchanged and nothing is emitted.
func (s *Service) UpdateAnswer(ctx context.Context, sc session.Context, submissionID uuid.UUID, req UpdateAnswerRequest) (SubmissionView, error) {
	answer, err := domain.ParseAnswer(req.Answer)
	if err != nil {
		return SubmissionView{}, err
	}
	if answer == domain.AnswerNoAnswer {
		return SubmissionView{}, fmt.Errorf("%w: answer update must carry a verdict", domain.ErrBusiness)
	}
	current, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return SubmissionView{}, err
	}
	if err := s.authorizeAnswerUpdate(ctx, sc, current, req.Force); err != nil {
		return SubmissionView{}, err
	}

	applied := false
	updated, err := s.submissions.Transition(ctx, submissionID, func(sub *domain.Submission) ([]ports.OutboxEvent, error) {
		ok, err := sub.ApplyAnswer(answer, req.Force, s.nowFn())
		if err != nil || !ok {
			return nil, err
		}
		applied = true
		return s.submissionEvents(sc, *sub, domain.SubmissionEventUpdated)
	})
	if err != nil {
		return SubmissionView{}, err
	}
	outcome := "success"
	if !applied {
		outcome = "noop"
	}
	s.logOperation(ctx, slog.LevelInfo, "submission answer update", "update_answer", outcome, sc,
		"submission_id", submissionID.String(),
		"answer", string(answer),
		"force", req.Force,
	)
	return ToSubmissionView(updated), nil
}

// FailSubmission marks the submission FAILED whatever its state.
func (s *Service) FailSubmission(ctx context.Context, sc session.Context, submissionID uuid.UUID) (SubmissionView, error) {
	if err := s.authorizer.Chain(sc).
		RequireMemberType(domain.MemberTypeRoot, domain.MemberTypeAPI).
		Check(ctx); err != nil {
		return SubmissionView{}, err
	}
	updated, err := s.submissions.Transition(ctx, submissionID, func(sub *domain.Submission) ([]ports.OutboxEvent, error) {
		sub.Fail(s.nowFn())
		return s.submissionEvents(sc, *sub, domain.SubmissionEventUpdated)
	})
	if err != nil {
		return SubmissionView{}, err
	}
	s.logOperation(ctx, slog.LevelWarn, "submission failed", "fail_submission", "success", sc,
		"submission_id", submissionID.String())
	return ToSubmissionView(updated), nil
}

// authorizeAnswerUpdate lets staff of the contest force verdicts while
// plain updates are reserved for the runner identity.
func (s *Service) authorizeAnswerUpdate(ctx context.Context, sc session.Context, current domain.Submission, force bool) error {
	chain := s.authorizer.Chain(sc)
	if force {
		chain.RequireMemberType(domain.ElevatedMemberTypes...).
			RequireMemberBelongsToContest(current.ContestID)
	} else {
		chain.Require(authorization.MemberType(domain.MemberTypeRoot, domain.MemberTypeAPI))
	}
	return chain.Check(ctx)
}
