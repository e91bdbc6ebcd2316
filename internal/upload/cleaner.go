package upload

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultFileTTL         = 24 * time.Hour
	DefaultCleanupInterval = time.Hour
)

// StartCleaner removes files older than ttl every interval until ctx ends.
func (d *Disk) StartCleaner(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		ttl = DefaultFileTTL
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go d.cleanupLoop(ctx, ttl, interval)
}

func (d *Disk) cleanupLoop(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.CleanupExpired(time.Now().Add(-ttl)); err != nil {
				log.Printf("cleanup attachments error: %v", err)
			}
		}
	}
}

// CleanupExpired deletes files modified before cutoff and prunes emptied owner directories.
func (d *Disk) CleanupExpired(cutoff time.Time) (int, error) {
	owners, err := os.ReadDir(d.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		dir := filepath.Join(d.baseDir, owner.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			log.Printf("read attachment dir %s failed: %v", dir, err)
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil || f.IsDir() || info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, f.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Printf("remove attachment %s failed: %v", path, err)
				continue
			}
			removed++
		}
		// only succeeds when empty
		_ = os.Remove(dir)
	}
	return removed, nil
}
