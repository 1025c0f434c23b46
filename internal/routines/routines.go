// Package routines schedules background maintenance jobs.
package routines

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/viniciusxv27/enviomkt/pkg/log"
)

const (
	CleanupSpec       = "0 */10 * * * *"
	StatusRefreshSpec = "0 * * * * *"
)

// StatusRefresher re-reads account statuses and broadcasts them.
type StatusRefresher interface {
	RefreshStatuses(ctx context.Context) error
}

// NewCron returns a scheduler with a seconds field that recovers panicking jobs.
func NewCron() *cron.Cron {
	return cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())
}

// Register adds the scratch cleanup and, when refresher is set, the status refresh job, then starts c.
func Register(c *cron.Cron, uploadDir string, maxAge time.Duration, refresher StatusRefresher) error {
	log.Print(nil).Info("Running Routine Tasks")

	_, err := c.AddFunc(CleanupSpec, func() {
		removed, err := CleanupUploads(uploadDir, maxAge, time.Now())
		if err != nil {
			log.Component("routines").WithField("dir", uploadDir).Errorf("upload cleanup failed: %v", err)
			return
		}
		if removed > 0 {
			log.Component("routines").WithField("removed", removed).Info("stale uploads removed")
		}
	})
	if err != nil {
		return err
	}

	if refresher != nil {
		_, err = c.AddFunc(StatusRefreshSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
			defer cancel()
			if err := refresher.RefreshStatuses(ctx); err != nil {
				log.Component("routines").Warnf("status refresh failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}

	c.Start()
	return nil
}

// CleanupUploads deletes regular files in dir last modified more than maxAge before now.
// A missing directory is not an error.
func CleanupUploads(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Component("routines").Warnf("failed to remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}
