package authorization

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
)

// Violation is a recorded rule failure. Err wraps one of the domain sentinels.
type Violation struct {
	Rule string
	Err  error
}

func (v Violation) Error() string { return v.Rule + ": " + v.Err.Error() }

func (v Violation) Unwrap() error { return v.Err }

// Rule is one predicate over the evaluation's member and contest snapshots.
// A passing rule returns no violations.
type Rule interface {
	Name() string
	evaluate(ctx context.Context, ev *evaluation) []Violation
}

type ruleFunc struct {
	name string
	fn   func(ctx context.Context, ev *evaluation) error
}

func (r ruleFunc) Name() string { return r.name }

func (r ruleFunc) evaluate(ctx context.Context, ev *evaluation) []Violation {
	if err := r.fn(ctx, ev); err != nil {
		return []Violation{{Rule: r.name, Err: err}}
	}
	return nil
}

// Authenticated requires a member on the session.
func Authenticated() Rule {
	return ruleFunc{name: "authenticated", fn: func(_ context.Context, ev *evaluation) error {
		if ev.member == nil {
			return fmt.Errorf("%w: no authenticated member", domain.ErrUnauthorized)
		}
		return nil
	}}
}

// MemberBelongsToContest passes for ROOT members or members of contestID.
func MemberBelongsToContest(contestID uuid.UUID) Rule {
	return ruleFunc{name: "member_belongs_to_contest", fn: func(_ context.Context, ev *evaluation) error {
		m := ev.member
		if m == nil {
			return fmt.Errorf("%w: no authenticated member", domain.ErrUnauthorized)
		}
		if m.Type == domain.MemberTypeRoot || m.BelongsTo(contestID) {
			return nil
		}
		return fmt.Errorf("%w: member %s does not belong to contest %s", domain.ErrForbidden, m.MemberID, contestID)
	}}
}

// ContestStarted passes for ROOT and ADMIN members without a lookup, and
// otherwise once the contest start time has passed.
func ContestStarted(contestID uuid.UUID) Rule {
	return ruleFunc{name: "contest_started", fn: func(ctx context.Context, ev *evaluation) error {
		if m := ev.member; m != nil && m.Is(domain.MemberTypeRoot, domain.MemberTypeAdmin) {
			return nil
		}
		contest, err := ev.contest(ctx, contestID)
		if err != nil {
			return err
		}
		if !contest.HasStarted(ev.now) {
			return fmt.Errorf("%w: contest %s has not started", domain.ErrForbidden, contestID)
		}
		return nil
	}}
}

// ContestActive requires the contest to be running, with no member bypass.
func ContestActive(contestID uuid.UUID) Rule {
	return ruleFunc{name: "contest_active", fn: func(ctx context.Context, ev *evaluation) error {
		contest, err := ev.contest(ctx, contestID)
		if err != nil {
			return err
		}
		if !contest.IsActive(ev.now) {
			return fmt.Errorf("%w: contest %s is not active", domain.ErrForbidden, contestID)
		}
		return nil
	}}
}

// ContestExists only performs the lookup.
func ContestExists(contestID uuid.UUID) Rule {
	return ruleFunc{name: "contest_exists", fn: func(ctx context.Context, ev *evaluation) error {
		_, err := ev.contest(ctx, contestID)
		return err
	}}
}

func MemberType(types ...domain.MemberType) Rule {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return ruleFunc{name: "member_type", fn: func(_ context.Context, ev *evaluation) error {
		m := ev.member
		if m == nil {
			return fmt.Errorf("%w: no authenticated member", domain.ErrUnauthorized)
		}
		if !m.Is(types...) {
			return fmt.Errorf("%w: member type %s not in [%s]", domain.ErrForbidden, m.Type, strings.Join(names, ","))
		}
		return nil
	}}
}

type orRule struct {
	a, b Rule
}

// Or passes when either sub-rule passes. When both fail the violations of
// a are followed by those of b.
func Or(a, b Rule) Rule {
	return orRule{a: a, b: b}
}

func (r orRule) Name() string { return "or(" + r.a.Name() + "," + r.b.Name() + ")" }

func (r orRule) evaluate(ctx context.Context, ev *evaluation) []Violation {
	left := r.a.evaluate(ctx, ev)
	if len(left) == 0 {
		return nil
	}
	right := r.b.evaluate(ctx, ev)
	if len(right) == 0 {
		return nil
	}
	return append(left, right...)
}

type allRule []Rule

// All passes only when every rule passes; all violations are kept.
func All(rules ...Rule) Rule {
	return allRule(rules)
}

func (r allRule) Name() string {
	names := make([]string, 0, len(r))
	for _, rule := range r {
		names = append(names, rule.Name())
	}
	return "all(" + strings.Join(names, ",") + ")"
}

func (r allRule) evaluate(ctx context.Context, ev *evaluation) []Violation {
	var out []Violation
	for _, rule := range r {
		out = append(out, rule.evaluate(ctx, ev)...)
	}
	return out
}

// IsDenial reports whether err is an authorization outcome rather than an
// infrastructure failure.
func IsDenial(err error) bool {
	return errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrUnauthorized)
}
