package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Backblaze/blazer/b2"
	"modernc.org/sqlite"
)

const defaultBackblazeBackupInterval = time.Hour

type dbBackuper interface {
	NewBackup(string) (*sqlite.Backup, error)
}

// objectUploader is the slice of a B2 bucket the backup needs.
type objectUploader interface {
	upload(ctx context.Context, object string, r io.Reader) error
}

type b2Uploader struct {
	bucket *b2.Bucket
}

func (u b2Uploader) upload(ctx context.Context, object string, r io.Reader) error {
	w := u.bucket.Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// backblazeBackupService periodically copies the cache database offsite.
type backblazeBackupService struct {
	uploader     objectUploader
	dbPath       string
	interval     time.Duration
	objectPrefix string
}

// newBackblazeBackupService returns nil, nil when backups are not configured.
func newBackblazeBackupService(ctx context.Context, cfg Config, dbPath string) (*backblazeBackupService, error) {
	if !backblazeConfigured(cfg) {
		return nil, nil
	}
	if dbPath == "" {
		return nil, fmt.Errorf("cache database path is empty")
	}

	client, err := b2.NewClient(ctx, cfg.BackblazeAccountID, cfg.BackblazeApplicationKey)
	if err != nil {
		return nil, fmt.Errorf("create backblaze client: %w", err)
	}
	bucket, err := client.Bucket(ctx, cfg.BackblazeBucket)
	if err != nil {
		return nil, fmt.Errorf("access backblaze bucket: %w", err)
	}
	if _, err := bucket.Attrs(ctx); err != nil {
		return nil, fmt.Errorf("access backblaze bucket: %w", err)
	}
	return newBackupService(b2Uploader{bucket: bucket}, dbPath, cfg.BackblazeBackupInterval, cfg.BackblazePrefix), nil
}

func newBackupService(uploader objectUploader, dbPath string, interval time.Duration, prefix string) *backblazeBackupService {
	if interval <= 0 {
		interval = defaultBackblazeBackupInterval
	}
	return &backblazeBackupService{
		uploader:     uploader,
		dbPath:       dbPath,
		interval:     interval,
		objectPrefix: sanitizeObjectPrefix(prefix),
	}
}

func (s *backblazeBackupService) start(ctx context.Context) {
	if s == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.run(ctx)
			}
		}
	}()
	logger.Info("backblaze backup scheduled", "every", humanDuration(s.interval), "object", s.objectName())
}

func (s *backblazeBackupService) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	snapshot, err := snapshotStateDB(ctx, s.dbPath)
	if err != nil {
		logger.Warn("backblaze backup snapshot failed", "error", err)
		return
	}
	defer os.Remove(snapshot)

	object := s.objectName()
	f, err := os.Open(snapshot)
	if err != nil {
		logger.Warn("backblaze backup open snapshot failed", "error", err)
		return
	}
	defer f.Close()
	if err := s.uploader.upload(ctx, object, f); err != nil {
		logger.Warn("backblaze backup upload failed", "error", err, "object", object)
		return
	}
	logger.Info("backblaze backup uploaded", "object", object)
}

func (s *backblazeBackupService) objectName() string {
	return s.objectPrefix + filepath.Base(s.dbPath)
}

// snapshotStateDB copies the live database with sqlite's online backup API
// into a temp file and returns its path. The caller removes it.
func snapshotStateDB(ctx context.Context, srcPath string) (string, error) {
	if _, err := os.Stat(srcPath); err != nil {
		return "", err
	}
	tmpFile, err := os.CreateTemp("", "nuhbot-cache-db-*.db")
	if err != nil {
		return "", err
	}
	tmpPath := tmpFile.Name()
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	// The backup API wants to create the destination itself.
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	db, err := sql.Open("sqlite", srcPath+"?mode=ro")
	if err != nil {
		return "", err
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.Raw(func(driverConn any) error {
		backuper, ok := driverConn.(dbBackuper)
		if !ok {
			return fmt.Errorf("sqlite driver does not support backups")
		}
		bck, err := backuper.NewBackup(tmpPath)
		if err != nil {
			return err
		}
		for more := true; more; {
			more, err = bck.Step(-1)
			if err != nil {
				return err
			}
		}
		return bck.Finish()
	}); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

func sanitizeObjectPrefix(raw string) string {
	prefix := strings.Trim(strings.TrimSpace(raw), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
