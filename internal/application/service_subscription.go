package application

import (
	"context"
	"log/slog"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/topics"
)

// AuthorizeSubscription decides whether sc may receive messages on
// destination. It is called on SUBSCRIBE and again before every delivery.
func (s *Service) AuthorizeSubscription(ctx context.Context, sc session.Context, destination string) (topics.Decision, error) {
	decision, err := s.topics.Authorize(ctx, sc, destination)
	return s.logSubscriptionDecision(ctx, sc, destination, decision, err)
}

// AuthorizeFrame checks SUBSCRIBE frames only; the command is matched
// case-insensitively.
func (s *Service) AuthorizeFrame(ctx context.Context, sc session.Context, command, destination string) (topics.Decision, error) {
	decision, err := s.topics.AuthorizeFrame(ctx, sc, command, destination)
	return s.logSubscriptionDecision(ctx, sc, destination, decision, err)
}

func (s *Service) logSubscriptionDecision(ctx context.Context, sc session.Context, destination string, decision topics.Decision, err error) (topics.Decision, error) {
	if err != nil {
		slog.Default().ErrorContext(ctx, "subscription check failed",
			append([]any{
				"service", s.cfg.ServiceName,
				"module", "topics",
				"layer", "application",
				"operation", "authorize_subscription",
				"outcome", "failure",
				"destination", destination,
				"error", err,
			}, sc.LogAttrs()...)...,
		)
		return topics.Decision{}, err
	}
	if !decision.Allowed() {
		slog.Default().DebugContext(ctx, "subscription rejected",
			append([]any{
				"service", s.cfg.ServiceName,
				"module", "topics",
				"layer", "application",
				"operation", "authorize_subscription",
				"outcome", decision.Outcome.String(),
				"destination", destination,
				"reason", decision.Reason,
			}, sc.LogAttrs()...)...,
		)
	}
	return decision, nil
}

func (s *Service) TopicRoutes() []topics.Route {
	return s.topics.Routes()
}
