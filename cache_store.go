package main

import (
	"sync/atomic"
	"time"
)

// cacheSnapshot is one committed set of the three datasets. It is never
// mutated after it has been handed to cacheStore.replace; readers may keep
// using a snapshot after it has been superseded.
type cacheSnapshot struct {
	scores      scoreTable
	messages    messageLog
	totalCount  int64
	refreshedAt time.Time
}

func newCacheSnapshot(scores scoreTable, messages messageLog, totalCount int64, refreshedAt time.Time) *cacheSnapshot {
	return &cacheSnapshot{
		scores:      scores,
		messages:    messages,
		totalCount:  totalCount,
		refreshedAt: refreshedAt,
	}
}

func (s *cacheSnapshot) userCount() int {
	if s == nil {
		return 0
	}
	return len(s.scores)
}

// cacheStore holds the active snapshot. The fetcher is the only writer;
// queries and the status rotator read without locking.
type cacheStore struct {
	current atomic.Pointer[cacheSnapshot]
	now     func() time.Time
}

func newCacheStore() *cacheStore {
	return &cacheStore{now: time.Now}
}

// read returns the most recently committed snapshot, or nil before the
// first commit.
func (c *cacheStore) read() *cacheSnapshot {
	if c == nil {
		return nil
	}
	return c.current.Load()
}

// replace swaps in next and returns the snapshot that was actually stored.
// refreshedAt is clamped so it is never in the future and never earlier than
// the snapshot being replaced.
func (c *cacheStore) replace(next *cacheSnapshot) *cacheSnapshot {
	if c == nil || next == nil {
		return nil
	}
	now := c.now()
	for {
		prev := c.current.Load()
		stamped := *next
		if stamped.refreshedAt.IsZero() || stamped.refreshedAt.After(now) {
			stamped.refreshedAt = now
		}
		if prev != nil && stamped.refreshedAt.Before(prev.refreshedAt) {
			stamped.refreshedAt = prev.refreshedAt
		}
		if c.current.CompareAndSwap(prev, &stamped) {
			return &stamped
		}
	}
}
