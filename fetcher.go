package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"
)

const (
	defaultFetchTimeout     = 30 * time.Second
	defaultFetchConcurrency = 3
	persistTimeout          = 10 * time.Second
)

// snapshotPersister stores the raw payloads of a committed cycle.
type snapshotPersister interface {
	saveSnapshot(ctx context.Context, payloads []resourcePayload, refreshedAt time.Time) (int, error)
}

// fetcher runs refresh cycles: download and decode all three resources, then
// commit them to the store only if every one succeeded.
type fetcher struct {
	store       *cacheStore
	getter      payloadGetter
	urls        map[resourceName]string
	timeout     time.Duration
	concurrency int
	persister   snapshotPersister
	metrics     *botMetrics
	now         func() time.Time
}

func newFetcher(cfg Config, store *cacheStore, getter payloadGetter, persister snapshotPersister, metrics *botMetrics) *fetcher {
	f := &fetcher{
		store:  store,
		getter: getter,
		urls: map[resourceName]string{
			resourceScores:   cfg.ScoresURL,
			resourceMessages: cfg.MessagesURL,
			resourceTotal:    cfg.TotalURL,
		},
		timeout:     cfg.FetchTimeout,
		concurrency: cfg.FetchConcurrency,
		persister:   persister,
		metrics:     metrics,
		now:         time.Now,
	}
	if f.timeout <= 0 {
		f.timeout = defaultFetchTimeout
	}
	if f.concurrency <= 0 {
		f.concurrency = defaultFetchConcurrency
	}
	return f
}

type cycleResult struct {
	ID          string
	Succeeded   map[resourceName]struct{}
	Failed      map[resourceName]error
	Committed   bool
	RefreshedAt time.Time
	Duration    time.Duration
}

func (r cycleResult) partial() bool {
	return len(r.Failed) > 0
}

// runCycle fetches every resource independently; a failure in one never
// cancels the others. The store is only touched when all of them decoded.
func (f *fetcher) runCycle(ctx context.Context) cycleResult {
	start := f.now()
	res := cycleResult{
		ID:        uuid.NewString(),
		Succeeded: make(map[resourceName]struct{}, len(allResources)),
		Failed:    make(map[resourceName]error),
	}

	var (
		mu       sync.Mutex
		payloads = make(map[resourceName]resourcePayload, len(allResources))
		lastDone time.Time
	)
	swg := sizedwaitgroup.New(f.concurrency)
	for _, name := range allResources {
		swg.Add()
		go func(name resourceName) {
			defer swg.Done()
			p, err := f.fetchResource(ctx, name)
			done := f.now()

			mu.Lock()
			defer mu.Unlock()
			if done.After(lastDone) {
				lastDone = done
			}
			if err != nil {
				res.Failed[name] = err
				return
			}
			res.Succeeded[name] = struct{}{}
			payloads[name] = p
		}(name)
	}
	swg.Wait()
	res.Duration = f.now().Sub(start)

	if res.partial() {
		for name, err := range res.Failed {
			kind := failureKind(err)
			f.metrics.ObserveResourceFailure(name, kind)
			logger.Warn("resource fetch failed", "cycle", res.ID, "resource", name, "kind", kind, "error", err)
		}
		f.metrics.ObserveCycle("partial", res.Duration)
		logger.Warn("refresh cycle incomplete; keeping previous snapshot",
			"cycle", res.ID, "failed", len(res.Failed), "succeeded", len(res.Succeeded), "took", humanDuration(res.Duration))
		return res
	}

	snap := newCacheSnapshot(
		payloads[resourceScores].scores,
		payloads[resourceMessages].messages,
		payloads[resourceTotal].count,
		lastDone,
	)
	committed := f.store.replace(snap)
	res.Committed = true
	res.RefreshedAt = committed.refreshedAt
	f.metrics.ObserveCycle("committed", res.Duration)
	f.metrics.SetRefreshedAt(committed.refreshedAt)
	logger.Info("refresh cycle committed",
		"cycle", res.ID, "users", committed.userCount(), "messages", committed.totalCount, "took", humanDuration(res.Duration))

	f.persist(ctx, res.ID, payloads, committed.refreshedAt)
	return res
}

func (f *fetcher) fetchResource(ctx context.Context, name resourceName) (resourcePayload, error) {
	url := f.urls[name]
	if url == "" {
		return resourcePayload{}, &fetchError{Resource: name, Err: errors.New("no url configured")}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	raw, err := f.getter.Get(fetchCtx, url)
	if err != nil {
		fe := &fetchError{Resource: name, Err: err}
		var se *httpStatusError
		if errors.As(err, &se) {
			fe.Status = se.Code
		}
		return resourcePayload{}, fe
	}

	p, err := decodeResource(name, raw)
	if err != nil {
		return resourcePayload{}, &parseError{Resource: name, Err: err}
	}
	logger.Debug("resource fetched", "resource", name, "bytes", len(raw), "digest", p.digest[:12])
	return p, nil
}

// persist writes the committed payloads; failure only costs warm restarts.
func (f *fetcher) persist(ctx context.Context, cycleID string, payloads map[resourceName]resourcePayload, refreshedAt time.Time) {
	if f.persister == nil || ctx.Err() != nil {
		return
	}
	ordered := make([]resourcePayload, 0, len(allResources))
	for _, name := range allResources {
		ordered = append(ordered, payloads[name])
	}
	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	written, err := f.persister.saveSnapshot(pctx, ordered, refreshedAt)
	if err != nil {
		logger.Warn("persist snapshot failed", "cycle", cycleID, "error", err)
		return
	}
	logger.Debug("snapshot persisted", "cycle", cycleID, "blobs_written", written)
}
