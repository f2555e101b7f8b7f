package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
)

// HandleSubmissionDispatch consumes created and rerun events, runs the
// submission and records the verdict as the runner identity. Verdicts for
// submissions that are no longer judging are dropped by UpdateAnswer.
func (s *Service) HandleSubmissionDispatch(ctx context.Context, payload []byte) error {
	evt, err := DecodeSubmissionEvent(payload)
	if err != nil {
		return err
	}
	eventID := evt.EventID.String()
	dup, err := s.eventDedup.IsDuplicate(ctx, eventID, s.nowFn())
	if err != nil {
		return err
	}
	if dup {
		return nil
	}
	sc := s.systemSession(evt.TraceID)
	// A lost mark only means a redelivery, which UpdateAnswer turns into a
	// no-op, so it is logged rather than returned.
	markProcessed := func() {
		if err := s.eventDedup.MarkProcessed(ctx, eventID, string(evt.Type), s.nowFn().Add(s.cfg.EventDedupTTL)); err != nil {
			s.logOperation(ctx, slog.LevelError, "event dedup mark failed", "mark_processed", errorOutcome(err), sc,
				"event_id", eventID, "event_type", string(evt.Type), "error", err)
		}
	}
	if evt.Type != domain.SubmissionEventCreated && evt.Type != domain.SubmissionEventRerun {
		markProcessed()
		return nil
	}

	submissionID := evt.Submission.SubmissionID
	current, err := s.submissions.GetByID(ctx, submissionID)
	if errors.Is(err, domain.ErrNotFound) {
		markProcessed()
		return nil
	}
	if err != nil {
		return err
	}
	if current.Status != domain.SubmissionStatusJudging {
		s.logOperation(ctx, slog.LevelInfo, "dispatch skipped", "dispatch_submission", "stale", sc,
			"submission_id", submissionID.String(), "status", string(current.Status))
		markProcessed()
		return nil
	}

	verdict, err := s.runSubmission(ctx, current)
	if err != nil {
		return err
	}
	if verdict.Failed || verdict.Answer == domain.AnswerNoAnswer {
		s.logOperation(ctx, slog.LevelWarn, "runner reported failure", "dispatch_submission", "failure", sc,
			"submission_id", submissionID.String(), "reason", verdict.Reason)
		_, err = s.FailSubmission(ctx, sc, submissionID)
	} else {
		_, err = s.UpdateAnswer(ctx, sc, submissionID, UpdateAnswerRequest{Answer: string(verdict.Answer)})
	}
	if err != nil {
		return err
	}
	markProcessed()
	return nil
}

// runSubmission returns an error only when the runner is unreachable, so
// the event is retried. Everything else becomes a failed verdict.
func (s *Service) runSubmission(ctx context.Context, submission domain.Submission) (domain.Verdict, error) {
	attachment, err := s.attachments.GetByID(ctx, submission.CodeAttachmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Verdict{SubmissionID: submission.SubmissionID, Failed: true, Reason: "code attachment missing"}, nil
	}
	if err != nil {
		return domain.Verdict{}, err
	}
	verdict, err := s.runner.Run(ctx, ports.RunRequest{
		Submission: submission,
		Code:       attachment.Content,
		Filename:   attachment.Filename,
	})
	if errors.Is(err, domain.ErrDependencyUnavailable) {
		return domain.Verdict{}, err
	}
	if err != nil {
		return domain.Verdict{SubmissionID: submission.SubmissionID, Failed: true, Reason: fmt.Sprintf("runner error: %v", err)}, nil
	}
	return verdict, nil
}
