package metrics

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PurgeCaptures deletes the recorded .wav captures in dir whose modification
// time is older than maxAge. It returns the number of files removed; the
// metrics log and anything else in the directory is left alone.
func PurgeCaptures(dir string, maxAge time.Duration) (int, error) {
	if dir == "" || maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-maxAge)
	var stale []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".wav") {
			return nil
		}
		if info, err := d.Info(); err == nil && info.ModTime().Before(cutoff) {
			stale = append(stale, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var failed error
	removed := 0
	for _, path := range stale {
		if rmErr := os.Remove(path); rmErr != nil {
			failed = errors.Join(failed, rmErr)
			continue
		}
		removed++
	}
	return removed, failed
}
