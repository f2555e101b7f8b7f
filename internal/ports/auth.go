package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SessionClaims struct {
	SessionID uuid.UUID
	MemberID  uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TokenVerifier interface {
	ParseAndValidate(raw string) (SessionClaims, error)
}

type SessionRevocationStore interface {
	IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)
}
