// Package staging copies a purple agent's output files into the directory the
// judge reads from, one task at a time.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/sethvargo/go-retry"
)

// Files are copied when present. The first three form the output contract;
// manifest.json is optional.
var Files = []string{"data.jsonl", "metadata.json", "run.log", "manifest.json"}

// Config holds the stager settings.
type Config struct {
	// Root is the staging root; task outputs land in <Root>/<task_id>.
	Root string
	// RetryBase is the first backoff delay for transient copy failures.
	RetryBase time.Duration
	// MaxRetries bounds transient copy retries per file.
	MaxRetries uint64
	Logger     *slog.Logger
}

// Stager copies output directories under a per-task file lock.
type Stager struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Stager.
func New(cfg Config) *Stager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = 50 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	return &Stager{cfg: cfg, logger: cfg.Logger}
}

// Dir returns where the task's staged output lives.
func (s *Stager) Dir(taskID string) string {
	return filepath.Join(s.cfg.Root, taskID)
}

// Stage replaces <Root>/<taskID> with the contract files found in src and
// returns the staged directory. A missing src is not an error: nothing is
// staged and the judge reports the missing output.
func (s *Stager) Stage(ctx context.Context, taskID, src string) (string, error) {
	dst := s.Dir(taskID)
	if err := os.MkdirAll(s.cfg.Root, 0o755); err != nil {
		return "", fmt.Errorf("creating staging root: %w", err)
	}

	lock := flock.New(filepath.Join(s.cfg.Root, "."+taskID+".lock"))
	locked, err := lock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("locking staging dir for %s: %w", taskID, err)
	}
	if !locked {
		return "", fmt.Errorf("locking staging dir for %s: lock not acquired", taskID)
	}
	defer lock.Unlock() //nolint:errcheck

	if same, err := samePath(src, dst); err == nil && same {
		s.logger.Debug("output already in staging dir", "task_id", taskID, "dir", dst)
		return dst, nil
	}

	if err := os.RemoveAll(dst); err != nil {
		return "", fmt.Errorf("clearing %s: %w", dst, err)
	}
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		s.logger.Warn("purple output directory not found", "task_id", taskID, "src", src)
		return dst, nil
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dst, err)
	}

	staged := 0
	for _, name := range Files {
		from := filepath.Join(src, name)
		if _, err := os.Stat(from); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := s.copyWithRetry(ctx, from, filepath.Join(dst, name)); err != nil {
			return "", fmt.Errorf("staging %s: %w", name, err)
		}
		staged++
	}
	s.logger.Info("staged purple output", "task_id", taskID, "files", staged, "dir", dst)
	return dst, nil
}

func (s *Stager) copyWithRetry(ctx context.Context, from, to string) error {
	b := retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewExponential(s.cfg.RetryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := copyFile(from, to)
		if err != nil && isTransient(err) {
			s.logger.Debug("transient copy failure, retrying", "file", from, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// isTransient reports errors that some mounted filesystems return while
// another process still holds the file.
func isTransient(err error) bool {
	return errors.Is(err, syscall.EDEADLK) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EBUSY)
}

// copyFile writes to a temp file beside the target and renames it into place
// so the judge never reads a partial file.
func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(to), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, to)
}

func samePath(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
