package application

import (
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/authorization"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/topics"
)

type Service struct {
	cfg         Config
	contests    ports.ContestRepository
	members     ports.MemberRepository
	problems    ports.ProblemRepository
	attachments ports.AttachmentRepository
	submissions ports.SubmissionRepository
	eventDedup  ports.EventDedupRepository
	idempotency ports.IdempotencyRepository
	cache       ports.Cache
	runner      ports.SubmissionRunner
	tokens      ports.TokenVerifier
	revocations ports.SessionRevocationStore
	authorizer  *authorization.Authorizer
	topics      *topics.Registry
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Contests    ports.ContestRepository
	Members     ports.MemberRepository
	Problems    ports.ProblemRepository
	Attachments ports.AttachmentRepository
	Submissions ports.SubmissionRepository
	EventDedup  ports.EventDedupRepository
	Idempotency ports.IdempotencyRepository
	Cache       ports.Cache
	Runner      ports.SubmissionRunner
	Tokens      ports.TokenVerifier
	Revocations ports.SessionRevocationStore
	// Topics defaults to the standard live-feed table.
	Topics *topics.Registry
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

func NewService(deps Dependencies) (*Service, error) {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M31-Judge-Service"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.EventDedupTTL <= 0 {
		cfg.EventDedupTTL = 7 * 24 * time.Hour
	}
	if cfg.SubmissionRateLimit <= 0 {
		cfg.SubmissionRateLimit = 20
	}
	if cfg.SubmissionRateWindow <= 0 {
		cfg.SubmissionRateWindow = time.Minute
	}
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}

	s := &Service{
		cfg:         cfg,
		contests:    deps.Contests,
		members:     deps.Members,
		problems:    deps.Problems,
		attachments: deps.Attachments,
		submissions: deps.Submissions,
		eventDedup:  deps.EventDedup,
		idempotency: deps.Idempotency,
		cache:       deps.Cache,
		runner:      deps.Runner,
		tokens:      deps.Tokens,
		revocations: deps.Revocations,
		topics:      deps.Topics,
		nowFn:       nowFn,
	}
	s.authorizer = authorization.NewAuthorizer(deps.Contests, s.nowFn)
	if s.topics == nil {
		registry, err := topics.NewStandardRegistry(s.authorizer)
		if err != nil {
			return nil, fmt.Errorf("build topic registry: %w", err)
		}
		s.topics = registry
	}
	return s, nil
}

