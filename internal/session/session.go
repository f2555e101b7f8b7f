// Package session holds the per-request identity the core reads from. A
// Context is built by a driving adapter for each HTTP request or websocket
// connection and passed explicitly to every core call.
package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
)

type Context struct {
	Session   *domain.Session
	Member    *domain.Member
	ContestID *uuid.UUID
	TraceID   string
}

// Anonymous returns a context with no authenticated member.
func Anonymous(traceID string) Context {
	return Context{TraceID: traceID}
}

func (c Context) Authenticated() bool {
	return c.Member != nil
}

// MemberID returns uuid.Nil for anonymous contexts.
func (c Context) MemberID() uuid.UUID {
	if c.Member == nil {
		return uuid.Nil
	}
	return c.Member.MemberID
}

// WithContestID returns a copy scoped to the given contest route.
func (c Context) WithContestID(contestID uuid.UUID) Context {
	id := contestID
	c.ContestID = &id
	return c
}

// LogAttrs returns slog key/value pairs describing the caller.
func (c Context) LogAttrs() []any {
	attrs := []any{"trace_id", c.TraceID}
	if c.Member != nil {
		attrs = append(attrs, "member_id", c.Member.MemberID.String(), "member_type", string(c.Member.Type))
	}
	if c.ContestID != nil {
		attrs = append(attrs, "contest_id", c.ContestID.String())
	}
	return attrs
}

type contextKey struct{}

// WithContext stores c on ctx for adapters that hand a request off through
// net/http middleware.
func WithContext(ctx context.Context, c Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the stored session context, or an anonymous one.
func FromContext(ctx context.Context) Context {
	if ctx == nil {
		return Context{}
	}
	c, _ := ctx.Value(contextKey{}).(Context)
	return c
}
