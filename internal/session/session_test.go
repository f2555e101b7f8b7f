package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
)

func TestFromContextRoundTrip(t *testing.T) {
	member := &domain.Member{MemberID: uuid.New(), Type: domain.MemberTypeJudge}
	sc := Context{Member: member, TraceID: "trace-1"}

	got := FromContext(WithContext(context.Background(), sc))
	if got.MemberID() != member.MemberID || got.TraceID != "trace-1" {
		t.Fatalf("FromContext = %+v, want %+v", got, sc)
	}
}

func TestFromContextEmpty(t *testing.T) {
	got := FromContext(context.Background())
	if got.Authenticated() {
		t.Fatalf("expected anonymous session context")
	}
	if got.MemberID() != uuid.Nil {
		t.Fatalf("expected nil member id, got %s", got.MemberID())
	}
}

func TestWithContestIDDoesNotAliasOriginal(t *testing.T) {
	base := Anonymous("trace-2")
	a := base.WithContestID(uuid.New())
	b := base.WithContestID(uuid.New())
	if base.ContestID != nil {
		t.Fatalf("base context mutated")
	}
	if *a.ContestID == *b.ContestID {
		t.Fatalf("derived contexts share contest id")
	}
}
