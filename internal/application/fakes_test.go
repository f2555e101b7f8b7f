package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
)

type fakeContests struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Contest
}

func (f *fakeContests) GetByID(_ context.Context, id uuid.UUID) (domain.Contest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return domain.Contest{}, domain.ErrNotFound
	}
	return c, nil
}

type fakeMembers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Member
}

func (f *fakeMembers) GetByID(_ context.Context, id uuid.UUID) (domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return domain.Member{}, domain.ErrNotFound
	}
	return m, nil
}

type fakeProblems struct {
	byID map[uuid.UUID]domain.Problem
}

func (f *fakeProblems) GetByID(_ context.Context, id uuid.UUID) (domain.Problem, error) {
	p, ok := f.byID[id]
	if !ok {
		return domain.Problem{}, domain.ErrNotFound
	}
	return p, nil
}

type fakeAttachments struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Attachment
}

func (f *fakeAttachments) Create(_ context.Context, a domain.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[a.AttachmentID] = a
	return nil
}

func (f *fakeAttachments) GetByID(_ context.Context, id uuid.UUID) (domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return domain.Attachment{}, domain.ErrNotFound
	}
	return a, nil
}

// fakeSubmissions serializes transitions under one lock, like a row lock.
type fakeSubmissions struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]domain.Submission
	outbox []ports.OutboxEvent
	writes int
}

func (f *fakeSubmissions) CreateWithOutbox(_ context.Context, s domain.Submission, events []ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[s.SubmissionID] = s
	f.outbox = append(f.outbox, events...)
	f.writes++
	return nil
}

func (f *fakeSubmissions) GetByID(_ context.Context, id uuid.UUID) (domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return domain.Submission{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSubmissions) Transition(_ context.Context, id uuid.UUID, fn ports.TransitionFunc) (domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.byID[id]
	if !ok {
		return domain.Submission{}, domain.ErrNotFound
	}
	next := current
	events, err := fn(&next)
	if err != nil {
		return domain.Submission{}, err
	}
	if len(events) == 0 {
		return current, nil
	}
	f.byID[id] = next
	f.outbox = append(f.outbox, events...)
	f.writes++
	return next, nil
}

func (f *fakeSubmissions) events() []ports.OutboxEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.OutboxEvent(nil), f.outbox...)
}

func (f *fakeSubmissions) put(s domain.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[s.SubmissionID] = s
}

type fakeDedup struct {
	mu        sync.Mutex
	processed map[string]time.Time
	markErr   error
}

func (f *fakeDedup) IsDuplicate(_ context.Context, eventID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.processed[eventID]
	return ok && exp.After(now), nil
}

func (f *fakeDedup) MarkProcessed(_ context.Context, eventID, _ string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.processed[eventID] = expiresAt
	return nil
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func (f *fakeIdempotency) Get(_ context.Context, key string) (*ports.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	cp := v
	return &cp, nil
}

func (f *fakeIdempotency) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[key]; ok {
		return domain.ErrConflict
	}
	f.records[key] = ports.IdempotencyRecord{Key: key, RequestHash: requestHash, Status: "PENDING", ExpiresAt: expiresAt}
	return nil
}

func (f *fakeIdempotency) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.records[key]
	v.Status = "COMPLETED"
	v.ResponseCode = responseCode
	v.ResponseBody = responseBody
	f.records[key] = v
	return nil
}

type fakeCache struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (f *fakeCache) Get(context.Context, string) (string, error) { return "", ports.ErrCacheMiss }

func (f *fakeCache) Set(context.Context, string, string, time.Duration) error { return nil }

func (f *fakeCache) Delete(context.Context, ...string) error { return nil }

func (f *fakeCache) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

type fakeRunner struct {
	mu      sync.Mutex
	answer  domain.SubmissionAnswer
	err     error
	calls   int
	lastReq ports.RunRequest
}

func (f *fakeRunner) Run(_ context.Context, req ports.RunRequest) (domain.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return domain.Verdict{}, f.err
	}
	return domain.Verdict{SubmissionID: req.Submission.SubmissionID, Answer: f.answer}, nil
}

type fakeTokens struct {
	claims map[string]ports.SessionClaims
}

func (f *fakeTokens) ParseAndValidate(raw string) (ports.SessionClaims, error) {
	c, ok := f.claims[raw]
	if !ok {
		return ports.SessionClaims{}, domain.ErrUnauthorized
	}
	return c, nil
}

type fakeRevocations struct {
	revoked map[uuid.UUID]bool
}

func (f *fakeRevocations) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	return f.revoked[sessionID], nil
}
