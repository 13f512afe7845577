package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var errNoPersistedSnapshot = errors.New("no persisted snapshot")

// cachePersister keeps the last committed payloads in the state DB so a
// restart can answer queries before the first refresh finishes.
type cachePersister struct {
	db  *sql.DB
	now func() time.Time
}

func newCachePersister(db *sql.DB) *cachePersister {
	return &cachePersister{db: db, now: time.Now}
}

// saveSnapshot writes the three blobs and the refresh time in one
// transaction. Blobs whose digest is unchanged are left alone; the count of
// rewritten blobs is returned.
func (p *cachePersister) saveSnapshot(ctx context.Context, payloads []resourcePayload, refreshedAt time.Time) (int, error) {
	if p == nil || p.db == nil {
		return 0, nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	updatedAt := p.now().Unix()
	for _, payload := range payloads {
		var stored string
		err := tx.QueryRowContext(ctx, "SELECT digest FROM cache_blobs WHERE resource = ?", string(payload.name)).Scan(&stored)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("read digest %s: %w", payload.name, err)
		}
		if err == nil && stored == payload.digest {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cache_blobs (resource, payload, digest, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(resource) DO UPDATE SET payload = excluded.payload, digest = excluded.digest, updated_at = excluded.updated_at
		`, string(payload.name), payload.raw, payload.digest, updatedAt); err != nil {
			return 0, fmt.Errorf("write %s: %w", payload.name, err)
		}
		written++
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_state (id, refreshed_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET refreshed_at = excluded.refreshed_at
	`, refreshedAt.UnixMilli()); err != nil {
		return 0, fmt.Errorf("write refresh time: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

// loadSnapshot rebuilds the last persisted snapshot. Any missing or
// undecodable blob fails the whole load.
func (p *cachePersister) loadSnapshot(ctx context.Context) (*cacheSnapshot, error) {
	if p == nil || p.db == nil {
		return nil, errNoPersistedSnapshot
	}

	var refreshedMs int64
	err := p.db.QueryRowContext(ctx, "SELECT refreshed_at FROM cache_state WHERE id = 1").Scan(&refreshedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNoPersistedSnapshot
	}
	if err != nil {
		return nil, err
	}

	decoded := make(map[resourceName]resourcePayload, len(allResources))
	for _, name := range allResources {
		var raw []byte
		err := p.db.QueryRowContext(ctx, "SELECT payload FROM cache_blobs WHERE resource = ?", string(name)).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s blob missing", errNoPersistedSnapshot, name)
		}
		if err != nil {
			return nil, err
		}
		payload, err := decodeResource(name, raw)
		if err != nil {
			return nil, &parseError{Resource: name, Err: err}
		}
		decoded[name] = payload
	}

	return newCacheSnapshot(
		decoded[resourceScores].scores,
		decoded[resourceMessages].messages,
		decoded[resourceTotal].count,
		time.UnixMilli(refreshedMs),
	), nil
}

// restoreSnapshot loads the persisted snapshot into store, best-effort.
func restoreSnapshot(ctx context.Context, p *cachePersister, store *cacheStore) bool {
	snap, err := p.loadSnapshot(ctx)
	if err != nil {
		if errors.Is(err, errNoPersistedSnapshot) {
			logger.Info("no persisted cache; starting empty", "reason", err)
		} else {
			logger.Warn("persisted cache unreadable; starting empty", "error", err)
		}
		return false
	}
	committed := store.replace(snap)
	logger.Info("restored persisted cache",
		"users", committed.userCount(),
		"messages", committed.totalCount,
		"age", humanDuration(store.now().Sub(committed.refreshedAt)))
	return true
}
