package cron

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/HKUDS/graffitibot-go/pkg/metrics"
	"go.uber.org/zap"
)

// SweepCache removes regular files in dir that were last modified before
// now minus maxAge. Subdirectories are left alone. A missing dir is not an
// error.
func SweepCache(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	metrics.CacheSwept.Add(float64(removed))
	return removed, errors.Join(errs...)
}

// SweepJob returns a job that runs SweepCache on dir.
func SweepJob(dir string, maxAge time.Duration, logger *zap.Logger) JobFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func() error {
		removed, err := SweepCache(dir, maxAge, time.Now())
		if removed > 0 {
			logger.Info("cache swept", zap.String("dir", dir), zap.Int("removed", removed))
		}
		return err
	}
}
