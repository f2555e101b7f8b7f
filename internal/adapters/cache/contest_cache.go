package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/domain"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/ports"
)

const contestKeyPrefix = "judge:contest:"

type contestSnapshot struct {
	ContestID uuid.UUID `json:"contest_id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Languages []string  `json:"languages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContestCache is a read-through cache in front of the contest repository.
// Cache failures fall back to the repository; missing contests are not
// cached.
type ContestCache struct {
	next   ports.ContestRepository
	cache  ports.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewContestCache(next ports.ContestRepository, cache ports.Cache, ttl time.Duration, logger *slog.Logger) *ContestCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContestCache{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *ContestCache) GetByID(ctx context.Context, contestID uuid.UUID) (domain.Contest, error) {
	key := contestKeyPrefix + contestID.String()
	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		if contest, ok := decodeContest(raw); ok {
			return contest, nil
		}
		_ = c.cache.Delete(ctx, key)
	case !errors.Is(err, ports.ErrCacheMiss):
		c.logger.WarnContext(ctx, "contest cache read failed",
			"module", "cache",
			"layer", "adapter",
			"contest_id", contestID.String(),
			"error", err,
		)
	}

	contest, err := c.next.GetByID(ctx, contestID)
	if err != nil {
		return domain.Contest{}, err
	}
	if encoded, encErr := encodeContest(contest); encErr == nil {
		if setErr := c.cache.Set(ctx, key, encoded, c.ttl); setErr != nil {
			c.logger.WarnContext(ctx, "contest cache write failed",
				"module", "cache",
				"layer", "adapter",
				"contest_id", contestID.String(),
				"error", setErr,
			)
		}
	}
	return contest, nil
}

func encodeContest(c domain.Contest) (string, error) {
	langs := make([]string, 0, len(c.Languages))
	for _, l := range c.Languages {
		langs = append(langs, string(l))
	}
	raw, err := json.Marshal(contestSnapshot{
		ContestID: c.ContestID,
		Slug:      c.Slug,
		Title:     c.Title,
		StartAt:   c.StartAt,
		EndAt:     c.EndAt,
		Languages: langs,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	})
	return string(raw), err
}

func decodeContest(raw string) (domain.Contest, bool) {
	var snap contestSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil || snap.ContestID == uuid.Nil {
		return domain.Contest{}, false
	}
	langs := make([]domain.Language, 0, len(snap.Languages))
	for _, l := range snap.Languages {
		langs = append(langs, domain.Language(l))
	}
	return domain.Contest{
		ContestID: snap.ContestID,
		Slug:      snap.Slug,
		Title:     snap.Title,
		StartAt:   snap.StartAt,
		EndAt:     snap.EndAt,
		Languages: langs,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}, true
}

var _ ports.ContestRepository = (*ContestCache)(nil)
