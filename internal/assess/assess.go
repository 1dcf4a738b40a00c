// Package assess runs one assessment: configure the mock API, stage the
// purple output and score it within a deadline.
package assess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/comtradebench/greenbench/internal/scoring"
	"github.com/comtradebench/greenbench/internal/staging"
	"github.com/comtradebench/greenbench/internal/tasks"
)

var (
	// ErrConfigureFailed wraps mock API configure failures.
	ErrConfigureFailed = errors.New("configure failed")
	// ErrStageFailed wraps staging failures.
	ErrStageFailed = errors.New("stage failed")
	// ErrScoreTimeout is returned when scoring exceeds the score timeout.
	ErrScoreTimeout = errors.New("scoring timed out")
)

// Request asks for one task to be assessed.
type Request struct {
	TaskID string `json:"task_id"`
	// PurpleOutputSubdir overrides the output directory name under the
	// output root; it defaults to the task id.
	PurpleOutputSubdir string `json:"purple_output_subdir,omitempty"`
}

// Assessment is a completed assessment as recorded by a Store.
type Assessment struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id"`
	OutputDir  string          `json:"output_dir"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Result     *scoring.Result `json:"result"`
}

// Store persists completed assessments.
type Store interface {
	Save(a *Assessment) error
}

// Config holds the service settings.
type Config struct {
	// OutputRoot is where purple agents write <task_id>/ directories.
	OutputRoot   string
	StageTimeout time.Duration
	ScoreTimeout time.Duration
	Logger       *slog.Logger
}

// Service wires the configurer, stager, judge and optional store.
type Service struct {
	cfg        Config
	configurer Configurer
	stager     *staging.Stager
	judge      *scoring.Judge
	store      Store
	logger     *slog.Logger
}

// NewService creates a Service. store may be nil.
func NewService(cfg Config, configurer Configurer, stager *staging.Stager, judge *scoring.Judge, store Store) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StageTimeout == 0 {
		cfg.StageTimeout = 8 * time.Second
	}
	if cfg.ScoreTimeout == 0 {
		cfg.ScoreTimeout = 8 * time.Second
	}
	return &Service{
		cfg:        cfg,
		configurer: configurer,
		stager:     stager,
		judge:      judge,
		store:      store,
		logger:     cfg.Logger,
	}
}

// Assess runs the full pipeline for req. Unknown tasks return an error
// wrapping tasks.ErrUnknownTask.
func (s *Service) Assess(ctx context.Context, req Request) (*Assessment, error) {
	def, err := tasks.Get(req.TaskID)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	s.logger.Info("assess start", "task_id", def.ID)

	if err := s.configurer.Configure(ctx, def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigureFailed, err)
	}

	sub := req.PurpleOutputSubdir
	if sub == "" {
		sub = def.ID
	}
	src := filepath.Join(s.cfg.OutputRoot, filepath.Clean("/"+sub))

	stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	staged, err := s.stager.Stage(stageCtx, def.ID, src)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStageFailed, err)
	}

	res, err := s.score(ctx, def, staged)
	if err != nil {
		return nil, err
	}

	a := &Assessment{
		ID:         uuid.NewString(),
		TaskID:     def.ID,
		OutputDir:  src,
		StartedAt:  started.UTC(),
		DurationMS: time.Since(started).Milliseconds(),
		Result:     res,
	}
	if s.store != nil {
		if err := s.store.Save(a); err != nil {
			s.logger.Warn("failed to record assessment", "task_id", def.ID, "error", err)
		}
	}
	s.logger.Info("assess done", "task_id", def.ID, "total", res.Total)
	return a, nil
}

type scoreOutcome struct {
	res *scoring.Result
	err error
}

// score runs the judge in a goroutine bounded by the score timeout. The judge
// itself is not interruptible; a late result is discarded.
func (s *Service) score(ctx context.Context, def tasks.Definition, dir string) (*scoring.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScoreTimeout)
	defer cancel()

	done := make(chan scoreOutcome, 1)
	go func() {
		res, err := s.judge.Score(def, dir)
		done <- scoreOutcome{res, err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s", ErrScoreTimeout, s.cfg.ScoreTimeout)
	}
}
