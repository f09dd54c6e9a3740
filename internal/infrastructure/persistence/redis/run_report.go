package redis

import (
	"context"
	"time"
)

// RunReportStore keeps the last report of each scheduled job.
type RunReportStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewRunReportStore creates a store keeping reports for ttl (TTLJobRun when zero).
func NewRunReportStore(cache *Cache, ttl time.Duration) *RunReportStore {
	if ttl <= 0 {
		ttl = TTLJobRun
	}
	return &RunReportStore{cache: cache, ttl: ttl}
}

// SaveReport overwrites the stored report of jobName.
func (s *RunReportStore) SaveReport(ctx context.Context, jobName string, report any) error {
	return s.cache.Set(ctx, JobRunKey(jobName), report, s.ttl)
}

// LoadReport decodes the stored report of jobName into dest.
// Returns ErrCacheMiss when the job has not reported yet.
func (s *RunReportStore) LoadReport(ctx context.Context, jobName string, dest any) error {
	return s.cache.Get(ctx, JobRunKey(jobName), dest)
}
