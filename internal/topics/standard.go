package topics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/authorization"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
)

const (
	HandlerContestPublic HandlerID = "contest-public"
	HandlerContestWide   HandlerID = "contest-wide"
	HandlerElevated      HandlerID = "elevated"
	HandlerMine          HandlerID = "mine"
)

const (
	FeedLeaderboardCell           = "leaderboard:cell"
	FeedLeaderboardPartial        = "leaderboard:partial"
	FeedLeaderboardFull           = "leaderboard:full"
	FeedAnnouncements             = "announcements"
	FeedClarifications            = "clarifications"
	FeedClarificationsFull        = "clarifications:full"
	FeedSubmissions               = "submissions"
	FeedSubmissionsWithExecutions = "submissions:with-code-and-executions"
	FeedTickets                   = "tickets"
	FeedMemberSubmissions         = "submissions:with-code"
	FeedMemberClarifications      = "clarifications"
	FeedMemberTickets             = "tickets"
)

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

func contestPattern(feed string) string {
	p := `/topic/contests/(?P<contestId>` + uuidPattern + `)`
	if feed != "" {
		p += "/" + feed
	}
	return p
}

func memberPattern(feed string) string {
	return contestPattern(`members/(?P<memberId>` + uuidPattern + `)/` + feed)
}

// StandardRoutes is the live-feed table. Member-scoped feeds come last;
// their paths never overlap the contest feeds because patterns are anchored.
func StandardRoutes() []Route {
	return []Route{
		{Pattern: contestPattern(""), Handler: HandlerContestPublic},
		{Pattern: contestPattern(FeedLeaderboardCell), Handler: HandlerContestWide},
		{Pattern: contestPattern(FeedLeaderboardPartial), Handler: HandlerContestWide},
		{Pattern: contestPattern(FeedLeaderboardFull), Handler: HandlerElevated},
		{Pattern: contestPattern(FeedAnnouncements), Handler: HandlerContestWide},
		{Pattern: contestPattern(FeedClarifications), Handler: HandlerContestWide},
		{Pattern: contestPattern(FeedClarificationsFull), Handler: HandlerElevated},
		{Pattern: contestPattern(FeedSubmissions), Handler: HandlerContestWide},
		{Pattern: contestPattern(FeedSubmissionsWithExecutions), Handler: HandlerElevated},
		{Pattern: contestPattern(FeedTickets), Handler: HandlerElevated},
		{Pattern: memberPattern(FeedMemberSubmissions), Handler: HandlerMine},
		{Pattern: memberPattern(FeedMemberClarifications), Handler: HandlerMine},
		{Pattern: memberPattern(FeedMemberTickets), Handler: HandlerMine},
	}
}

// StandardHandlers binds the standard handler ids to chain checks.
func StandardHandlers(auth *authorization.Authorizer) map[HandlerID]Handler {
	elevated := authorization.MemberType(domain.ElevatedMemberTypes...)
	return map[HandlerID]Handler{
		HandlerContestPublic: HandlerFunc(func(ctx context.Context, sc session.Context, m Match) (Decision, error) {
			return decide(auth.Chain(sc).Require(authorization.ContestExists(m.ContestID)).Check(ctx))
		}),
		HandlerContestWide: HandlerFunc(func(ctx context.Context, sc session.Context, m Match) (Decision, error) {
			return decide(auth.Chain(sc).
				Require(authorization.ContestExists(m.ContestID)).
				Or(authorization.ContestStarted(m.ContestID),
					authorization.All(authorization.MemberBelongsToContest(m.ContestID), elevated)).
				Check(ctx))
		}),
		HandlerElevated: HandlerFunc(func(ctx context.Context, sc session.Context, m Match) (Decision, error) {
			return decide(auth.Chain(sc).
				Require(authorization.ContestExists(m.ContestID)).
				RequireMemberBelongsToContest(m.ContestID).
				Require(elevated).
				Check(ctx))
		}),
		HandlerMine: HandlerFunc(func(ctx context.Context, sc session.Context, m Match) (Decision, error) {
			d, err := decide(auth.Chain(sc).
				Require(authorization.ContestExists(m.ContestID)).
				RequireMemberBelongsToContest(m.ContestID).
				Check(ctx))
			if err != nil || !d.Allowed() {
				return d, err
			}
			if m.MemberID == nil || *m.MemberID != sc.MemberID() {
				return Deny("topic belongs to another member"), nil
			}
			return d, nil
		}),
	}
}

func NewStandardRegistry(auth *authorization.Authorizer) (*Registry, error) {
	return NewRegistry(StandardRoutes(), StandardHandlers(auth))
}

func ContestTopic(contestID uuid.UUID, feed string) string {
	if feed == "" {
		return fmt.Sprintf("/topic/contests/%s", contestID)
	}
	return fmt.Sprintf("/topic/contests/%s/%s", contestID, feed)
}

func MemberTopic(contestID, memberID uuid.UUID, feed string) string {
	return fmt.Sprintf("/topic/contests/%s/members/%s/%s", contestID, memberID, feed)
}

// SubmissionTopics lists the feeds a submission change is published to.
func SubmissionTopics(contestID, memberID uuid.UUID) []string {
	return []string{
		ContestTopic(contestID, FeedSubmissions),
		ContestTopic(contestID, FeedSubmissionsWithExecutions),
		MemberTopic(contestID, memberID, FeedMemberSubmissions),
	}
}
