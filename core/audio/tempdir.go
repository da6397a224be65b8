package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// TempDir owns the directory that captured and synthesized audio files are
// written to.
type TempDir struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

type TempDirOption func(*TempDir)

func WithTempDirLogger(logger *slog.Logger) TempDirOption {
	return func(t *TempDir) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTempDir(dir string, opts ...TempDirOption) (*TempDir, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "astrape")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp audio dir: %w", err)
	}
	t := &TempDir{dir: dir, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *TempDir) Dir() string { return t.dir }

// NewPath returns a fresh, unused file path with the given extension.
func (t *TempDir) NewPath(ext string) string {
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return filepath.Join(t.dir, uuid.NewString()+ext)
}

// Remove deletes path. Files that are already gone are not an error.
func (t *TempDir) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.logger.Warn("failed to remove temp audio", "path", path, "error", err)
		return err
	}
	return nil
}

// Sweep removes files older than maxAge and reports how many were removed.
// A non-positive maxAge disables sweeping.
func (t *TempDir) Sweep(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list temp audio dir: %w", err)
	}

	cutoff := t.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(t.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		t.logger.Debug("swept temp audio", "dir", t.dir, "removed", removed)
	}
	return removed, errors.Join(errs...)
}
