package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestStage_CopiesContractFiles(t *testing.T) {
	src := filepath.Join(t.TempDir(), "out")
	writeFiles(t, src, map[string]string{
		"data.jsonl":    "{}\n",
		"metadata.json": "{}",
		"run.log":       "task_id=T1 complete",
		"scratch.txt":   "ignored",
	})

	s := New(Config{Root: t.TempDir()})
	dst, err := s.Stage(context.Background(), "T1_single_page", src)
	require.NoError(t, err)
	assert.Equal(t, s.Dir("T1_single_page"), dst)

	for _, name := range []string{"data.jsonl", "metadata.json", "run.log"} {
		assert.FileExists(t, filepath.Join(dst, name))
	}
	assert.NoFileExists(t, filepath.Join(dst, "scratch.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "manifest.json"))
}

func TestStage_ReplacesStaleOutput(t *testing.T) {
	root := t.TempDir()
	s := New(Config{Root: root})
	writeFiles(t, s.Dir("T2_multi_page"), map[string]string{"stale.jsonl": "old", "run.log": "old"})

	src := filepath.Join(t.TempDir(), "out")
	writeFiles(t, src, map[string]string{"run.log": "new log contents"})

	dst, err := s.Stage(context.Background(), "T2_multi_page", src)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dst, "stale.jsonl"))
	got, err := os.ReadFile(filepath.Join(dst, "run.log"))
	require.NoError(t, err)
	assert.Equal(t, "new log contents", string(got))
}

func TestStage_MissingSource(t *testing.T) {
	s := New(Config{Root: t.TempDir()})
	dst, err := s.Stage(context.Background(), "T3_duplicates", filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.NoDirExists(t, dst)
}

func TestStage_SourceIsStagingDir(t *testing.T) {
	s := New(Config{Root: t.TempDir()})
	writeFiles(t, s.Dir("T4_rate_limit_429"), map[string]string{"run.log": "in place"})

	dst, err := s.Stage(context.Background(), "T4_rate_limit_429", s.Dir("T4_rate_limit_429"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dst, "run.log"))
}

func TestStage_LockHeld(t *testing.T) {
	root := t.TempDir()
	held := flock.New(filepath.Join(root, ".T5_server_error_500.lock"))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = New(Config{Root: root}).Stage(ctx, "T5_server_error_500", t.TempDir())
	require.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(fmt.Errorf("copy: %w", syscall.EDEADLK)))
	assert.True(t, isTransient(&os.PathError{Op: "open", Path: "x", Err: syscall.EBUSY}))
	assert.False(t, isTransient(os.ErrNotExist))
}
