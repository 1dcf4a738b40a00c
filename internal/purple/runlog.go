package purple

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/comtradebench/greenbench/internal/validation"
)

// runLog accumulates run.log lines and mirrors them to the process logger.
type runLog struct {
	taskID string
	logger *slog.Logger

	mu    sync.Mutex
	lines []string
}

func newRunLog(taskID string, logger *slog.Logger) *runLog {
	return &runLog{taskID: taskID, logger: logger}
}

func (l *runLog) Infof(format string, args ...any)  { l.add(slog.LevelInfo, format, args...) }
func (l *runLog) Warnf(format string, args ...any)  { l.add(slog.LevelWarn, format, args...) }
func (l *runLog) Errorf(format string, args ...any) { l.add(slog.LevelError, format, args...) }

func (l *runLog) add(level slog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	l.lines = append(l.lines, fmt.Sprintf("%s %-5s %s", time.Now().UTC().Format(time.RFC3339), level, msg))
	l.mu.Unlock()
	l.logger.Debug(msg, "task_id", l.taskID)
}

// String returns the log as written to run.log.
func (l *runLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n") + "\n"
}

// WriteFile writes run.log into dir.
func (l *runLog) WriteFile(dir string) error {
	return os.WriteFile(filepath.Join(dir, validation.LogFile), []byte(l.String()), 0o644)
}
