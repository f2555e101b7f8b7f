// Package authorization evaluates contest access rules for a session.
//
// A Chain is built fluently and evaluated lazily: no rule runs until Check
// or Violations is called. Every rule is evaluated, failures are collected
// in insertion order, and Check surfaces the first one. Contest lookups are
// memoized per evaluation so each contest is fetched at most once.
package authorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
)

type Authorizer struct {
	contests ports.ContestRepository
	nowFn    func() time.Time
}

func NewAuthorizer(contests ports.ContestRepository, nowFn func() time.Time) *Authorizer {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Authorizer{contests: contests, nowFn: nowFn}
}

// Chain starts an empty rule chain for sc.
func (a *Authorizer) Chain(sc session.Context) *Chain {
	return &Chain{authorizer: a, sc: sc}
}

type Chain struct {
	authorizer *Authorizer
	sc         session.Context
	rules      []Rule
}

func (c *Chain) Require(rules ...Rule) *Chain {
	c.rules = append(c.rules, rules...)
	return c
}

func (c *Chain) RequireAuthenticated() *Chain {
	return c.Require(Authenticated())
}

func (c *Chain) RequireMemberBelongsToContest(contestID uuid.UUID) *Chain {
	return c.Require(MemberBelongsToContest(contestID))
}

func (c *Chain) RequireContestStarted(contestID uuid.UUID) *Chain {
	return c.Require(ContestStarted(contestID))
}

func (c *Chain) RequireContestActive(contestID uuid.UUID) *Chain {
	return c.Require(ContestActive(contestID))
}

func (c *Chain) RequireMemberType(types ...domain.MemberType) *Chain {
	return c.Require(MemberType(types...))
}

func (c *Chain) Or(a, b Rule) *Chain {
	return c.Require(Or(a, b))
}

// Violations evaluates every rule and returns all failures in order.
func (c *Chain) Violations(ctx context.Context) []Violation {
	ev := &evaluation{
		member:   c.sc.Member,
		contests: c.authorizer.contests,
		now:      c.authorizer.nowFn(),
		cache:    map[uuid.UUID]contestResult{},
	}
	var out []Violation
	for _, rule := range c.rules {
		out = append(out, rule.evaluate(ctx, ev)...)
	}
	return out
}

// Check returns the first violation, or nil when every rule passed.
func (c *Chain) Check(ctx context.Context) error {
	violations := c.Violations(ctx)
	if len(violations) == 0 {
		return nil
	}
	return violations[0]
}

type contestResult struct {
	contest domain.Contest
	err     error
}

type evaluation struct {
	member   *domain.Member
	contests ports.ContestRepository
	now      time.Time
	cache    map[uuid.UUID]contestResult
}

func (ev *evaluation) contest(ctx context.Context, contestID uuid.UUID) (domain.Contest, error) {
	if res, ok := ev.cache[contestID]; ok {
		return res.contest, res.err
	}
	contest, err := ev.contests.GetByID(ctx, contestID)
	if err != nil && errors.Is(err, domain.ErrNotFound) {
		err = fmt.Errorf("%w: contest %s", domain.ErrNotFound, contestID)
	}
	ev.cache[contestID] = contestResult{contest: contest, err: err}
	return contest, err
}
