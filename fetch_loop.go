package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultRefreshInterval = 2 * time.Minute

// fetchLoop drives the fetcher on a fixed period. Cycles never overlap: a
// tick that lands while a cycle is still running is dropped.
type fetchLoop struct {
	f        *fetcher
	interval time.Duration
	metrics  *botMetrics

	startOnce sync.Once
	running   atomic.Bool
	wg        sync.WaitGroup
}

func newFetchLoop(f *fetcher, interval time.Duration, metrics *botMetrics) *fetchLoop {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &fetchLoop{f: f, interval: interval, metrics: metrics}
}

// start begins the loop; later calls are no-ops so it can be hooked to a
// readiness event that fires more than once.
func (l *fetchLoop) start(ctx context.Context) {
	l.startOnce.Do(func() {
		logger.Info("refresh loop started", "interval", humanDuration(l.interval))
		l.wg.Add(1)
		go l.run(ctx)
	})
}

func (l *fetchLoop) run(ctx context.Context) {
	defer l.wg.Done()
	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick launches a cycle unless one is in flight. It reports whether a cycle
// was started.
func (l *fetchLoop) tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if !l.running.CompareAndSwap(false, true) {
		l.metrics.ObserveSkippedTick()
		logger.Debug("refresh tick skipped; previous cycle still running")
		return false
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.running.Store(false)
		l.f.runCycle(ctx)
	}()
	return true
}

// wait blocks until the loop and any in-flight cycle have returned.
func (l *fetchLoop) wait() {
	l.wg.Wait()
}
