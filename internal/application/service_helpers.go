package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/authorization"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
)

const (
	idempotencyStatusCompleted = "COMPLETED"
	runnerMemberName           = "judge-runner"
)

func hashRequest(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// replayIdempotent returns the stored response for a completed request with
// the same fingerprint. A reused key with a different body or one still in
// flight is a conflict.
func (s *Service) replayIdempotent(ctx context.Context, key string, request any, out any) (bool, error) {
	if key == "" {
		return false, nil
	}
	rec, err := s.idempotency.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.ExpiresAt.Before(s.nowFn()) {
		return false, nil
	}
	if rec.RequestHash != hashRequest(request) {
		return false, fmt.Errorf("%w: key reused with a different request", domain.ErrIdempotencyConflict)
	}
	if rec.Status != idempotencyStatusCompleted {
		return false, fmt.Errorf("%w: request still in progress", domain.ErrIdempotencyConflict)
	}
	if err := json.Unmarshal(rec.ResponseBody, out); err != nil {
		return false, fmt.Errorf("%w: stored response unreadable", domain.ErrIdempotencyConflict)
	}
	return true, nil
}

func (s *Service) reserveIdempotency(ctx context.Context, key string, request any) error {
	if key == "" {
		return nil
	}
	err := s.idempotency.Reserve(ctx, key, hashRequest(request), s.nowFn().Add(s.cfg.IdempotencyTTL))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIdempotencyConflict, err)
	}
	return nil
}

func (s *Service) completeIdempotency(ctx context.Context, key string, code int, response any) {
	if key == "" {
		return
	}
	body, _ := json.Marshal(response)
	if err := s.idempotency.Complete(ctx, key, code, body, s.nowFn()); err != nil {
		slog.Default().WarnContext(ctx, "failed to complete idempotency record",
			"service", s.cfg.ServiceName,
			"module", "application",
			"layer", "application",
			"operation", "complete_idempotency",
			"outcome", "failure",
			"error", err,
		)
	}
}

// checkSubmissionRate counts creates per member in a fixed window. Cache
// failures let the request through.
func (s *Service) checkSubmissionRate(ctx context.Context, memberID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	count, err := s.cache.IncrWithTTL(ctx, cacheKeySubmitRate(memberID), s.cfg.SubmissionRateWindow)
	if err != nil {
		slog.Default().WarnContext(ctx, "rate-limit state unavailable",
			"service", s.cfg.ServiceName,
			"module", "application",
			"layer", "application",
			"operation", "rate_limit",
			"outcome", "warning",
			"member_id", memberID.String(),
			"error", err,
		)
		return nil
	}
	if count > int64(s.cfg.SubmissionRateLimit) {
		return fmt.Errorf("%w: at most %d submissions per %s", domain.ErrRateLimited, s.cfg.SubmissionRateLimit, s.cfg.SubmissionRateWindow)
	}
	return nil
}

// systemSession is the identity the runner dispatcher acts under.
func (s *Service) systemSession(traceID string) session.Context {
	return session.Context{
		Member: &domain.Member{
			MemberID: s.cfg.SystemMemberID,
			Type:     domain.MemberTypeAPI,
			Name:     runnerMemberName,
		},
		TraceID: traceID,
	}
}

func (s *Service) logOperation(ctx context.Context, level slog.Level, msg, operation, outcome string, sc session.Context, attrs ...any) {
	args := []any{
		"service", s.cfg.ServiceName,
		"module", "submission",
		"layer", "application",
		"operation", operation,
		"outcome", outcome,
	}
	args = append(args, sc.LogAttrs()...)
	args = append(args, attrs...)
	slog.Default().Log(ctx, level, msg, args...)
}

func cacheKeySubmitRate(memberID uuid.UUID) string {
	return "judge:submit-rate:" + memberID.String()
}

func errorOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case authorization.IsDenial(err):
		return "denied"
	default:
		return "failure"
	}
}
