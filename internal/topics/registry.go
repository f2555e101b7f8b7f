// Package topics gates subscriptions to live feeds.
//
// A Registry is an ordered table of path patterns, each naming a handler by
// id. Handlers are supplied separately, so the table itself stays plain data
// and can be listed, documented and tested in isolation. The first pattern
// that fully matches a path decides; a path no pattern matches is NotFound.
package topics

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/authorization"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
)

// CommandSubscribe is the only frame command the registry inspects.
const CommandSubscribe = "SUBSCRIBE"

const (
	groupContestID = "contestId"
	groupMemberID  = "memberId"
)

type HandlerID string

type Outcome int

const (
	OutcomeDeny Outcome = iota
	OutcomeAllow
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "deny"
	}
}

// Decision is the result of an authorization attempt. Reason is for logs
// only and must not be echoed to the subscriber.
type Decision struct {
	Outcome Outcome
	Reason  string
}

func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllow }

func Allow() Decision { return Decision{Outcome: OutcomeAllow} }

func Deny(reason string) Decision { return Decision{Outcome: OutcomeDeny, Reason: reason} }

func NotFound(reason string) Decision { return Decision{Outcome: OutcomeNotFound, Reason: reason} }

// Route binds a pattern to a handler id. Patterns are anchored on both ends
// when compiled.
type Route struct {
	Pattern string
	Handler HandlerID
}

// Match carries the identifiers captured from a topic path.
type Match struct {
	Path      string
	Route     Route
	ContestID uuid.UUID
	MemberID  *uuid.UUID
}

type Handler interface {
	Check(ctx context.Context, sc session.Context, m Match) (Decision, error)
}

type HandlerFunc func(ctx context.Context, sc session.Context, m Match) (Decision, error)

func (f HandlerFunc) Check(ctx context.Context, sc session.Context, m Match) (Decision, error) {
	return f(ctx, sc, m)
}

type filter struct {
	route   Route
	re      *regexp.Regexp
	handler Handler
}

// Registry is immutable after NewRegistry and safe for concurrent use.
type Registry struct {
	filters []filter
}

func NewRegistry(routes []Route, handlers map[HandlerID]Handler) (*Registry, error) {
	filters := make([]filter, 0, len(routes))
	for i, route := range routes {
		handler, ok := handlers[route.Handler]
		if !ok || handler == nil {
			return nil, fmt.Errorf("topic route %d (%s): unknown handler %q", i, route.Pattern, route.Handler)
		}
		re, err := regexp.Compile(anchor(route.Pattern))
		if err != nil {
			return nil, fmt.Errorf("topic route %d: %w", i, err)
		}
		if re.SubexpIndex(groupContestID) < 0 {
			return nil, fmt.Errorf("topic route %d (%s): missing %s group", i, route.Pattern, groupContestID)
		}
		filters = append(filters, filter{route: route, re: re, handler: handler})
	}
	return &Registry{filters: filters}, nil
}

// Routes returns the table in registration order.
func (r *Registry) Routes() []Route {
	out := make([]Route, 0, len(r.filters))
	for _, f := range r.filters {
		out = append(out, f.route)
	}
	return out
}

// Resolve returns the first route matching path.
func (r *Registry) Resolve(path string) (Match, bool) {
	for _, f := range r.filters {
		if m, ok := f.match(path); ok {
			return m, true
		}
	}
	return Match{}, false
}

// Authorize evaluates the subscription of sc to path. Errors are returned
// only for infrastructure failures; access outcomes are Decisions.
func (r *Registry) Authorize(ctx context.Context, sc session.Context, path string) (Decision, error) {
	for _, f := range r.filters {
		m, ok := f.match(path)
		if !ok {
			continue
		}
		return f.handler.Check(ctx, sc, m)
	}
	return NotFound("no topic matches " + path), nil
}

// AuthorizeFrame checks SUBSCRIBE frames and lets every other command pass.
func (r *Registry) AuthorizeFrame(ctx context.Context, sc session.Context, command, destination string) (Decision, error) {
	if !strings.EqualFold(command, CommandSubscribe) {
		return Allow(), nil
	}
	return r.Authorize(ctx, sc, destination)
}

func (f filter) match(path string) (Match, bool) {
	groups := f.re.FindStringSubmatch(path)
	if groups == nil {
		return Match{}, false
	}
	contestID, err := uuid.Parse(groups[f.re.SubexpIndex(groupContestID)])
	if err != nil {
		return Match{}, false
	}
	m := Match{Path: path, Route: f.route, ContestID: contestID}
	if idx := f.re.SubexpIndex(groupMemberID); idx >= 0 {
		memberID, err := uuid.Parse(groups[idx])
		if err != nil {
			return Match{}, false
		}
		m.MemberID = &memberID
	}
	return m, true
}

func anchor(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") {
		pattern += "$"
	}
	return pattern
}

// decide turns a chain result into a Decision. Lookup failures other than
// NotFound are returned as errors.
func decide(err error) (Decision, error) {
	switch {
	case err == nil:
		return Allow(), nil
	case errors.Is(err, domain.ErrNotFound):
		return NotFound(err.Error()), nil
	case authorization.IsDenial(err):
		return Deny(err.Error()), nil
	default:
		return Decision{}, err
	}
}
