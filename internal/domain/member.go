package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemberType string

const (
	MemberTypeRoot       MemberType = "ROOT"
	MemberTypeAdmin      MemberType = "ADMIN"
	MemberTypeJudge      MemberType = "JUDGE"
	MemberTypeContestant MemberType = "CONTESTANT"
	MemberTypeAPI        MemberType = "API"
)

// ElevatedMemberTypes may observe staff-only feeds and override verdicts.
var ElevatedMemberTypes = []MemberType{MemberTypeRoot, MemberTypeAdmin, MemberTypeJudge}

func (t MemberType) Valid() bool {
	switch t {
	case MemberTypeRoot, MemberTypeAdmin, MemberTypeJudge, MemberTypeContestant, MemberTypeAPI:
		return true
	default:
		return false
	}
}

// ContestScoped reports whether members of this type always belong to exactly one contest.
func (t MemberType) ContestScoped() bool {
	switch t {
	case MemberTypeAdmin, MemberTypeJudge, MemberTypeContestant:
		return true
	default:
		return false
	}
}

type Member struct {
	MemberID  uuid.UUID
	ContestID *uuid.UUID
	Type      MemberType
	Name      string
	Login     string
	CreatedAt time.Time
}

func (m Member) Is(types ...MemberType) bool {
	for _, t := range types {
		if m.Type == t {
			return true
		}
	}
	return false
}

func (m Member) BelongsTo(contestID uuid.UUID) bool {
	return m.ContestID != nil && *m.ContestID == contestID
}

type Session struct {
	SessionID uuid.UUID
	MemberID  uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}
