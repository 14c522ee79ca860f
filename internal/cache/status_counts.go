package cache

import (
	"context"
	"time"

	"feeledger/internal/core"
)

type countsSource interface {
	ListStatusCounts(ctx context.Context) (core.StatusCounts, error)
}

// StatusCounts memoizes a status count source for a short TTL, so the three
// per-status gauges of one scrape share a single store scan.
type StatusCounts struct {
	source countsSource
	cache  *LRUCache[core.StatusCounts]
}

const statusCountsKey = "status_counts"

func NewStatusCounts(source countsSource, ttl time.Duration) *StatusCounts {
	return &StatusCounts{source: source, cache: NewLRUCache[core.StatusCounts](1, ttl)}
}

func (s *StatusCounts) ListStatusCounts(ctx context.Context) (core.StatusCounts, error) {
	return s.cache.GetOrLoad(statusCountsKey, func() (core.StatusCounts, error) {
		return s.source.ListStatusCounts(ctx)
	})
}
