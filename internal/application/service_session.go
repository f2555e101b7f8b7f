package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
)

// AuthenticateSession resolves a bearer token into a session context with
// the member loaded from storage.
func (s *Service) AuthenticateSession(ctx context.Context, token, traceID string) (session.Context, error) {
	if strings.TrimSpace(token) == "" {
		return session.Context{}, domain.ErrUnauthorized
	}
	claims, err := s.tokens.ParseAndValidate(token)
	if err != nil {
		return session.Context{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.SessionID)
		if err != nil {
			return session.Context{}, fmt.Errorf("%w: revocation lookup: %v", domain.ErrDependencyUnavailable, err)
		}
		if revoked {
			return session.Context{}, fmt.Errorf("%w: session revoked", domain.ErrUnauthorized)
		}
	}
	member, err := s.members.GetByID(ctx, claims.MemberID)
	if errors.Is(err, domain.ErrNotFound) {
		return session.Context{}, fmt.Errorf("%w: unknown member", domain.ErrUnauthorized)
	}
	if err != nil {
		return session.Context{}, err
	}
	if !member.Type.Valid() {
		return session.Context{}, fmt.Errorf("%w: unknown member type %q", domain.ErrUnauthorized, member.Type)
	}
	if member.Type.ContestScoped() && member.ContestID == nil {
		return session.Context{}, fmt.Errorf("%w: %s member without contest", domain.ErrUnauthorized, member.Type)
	}

	sc := session.Context{
		Session: &domain.Session{
			SessionID: claims.SessionID,
			MemberID:  claims.MemberID,
			IssuedAt:  claims.IssuedAt,
			ExpiresAt: claims.ExpiresAt,
		},
		Member:  &member,
		TraceID: traceID,
	}
	if member.ContestID != nil {
		sc = sc.WithContestID(*member.ContestID)
	}
	return sc, nil
}
