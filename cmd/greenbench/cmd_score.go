package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/comtradebench/greenbench/internal/reporting"
	"github.com/comtradebench/greenbench/internal/scoring"
	"github.com/comtradebench/greenbench/internal/tasks"
)

type scoreOptions struct {
	taskID  string
	all     bool
	jsonOut bool
	junit   string
	verbose bool
}

func newScoreCommand(a *app) *cobra.Command {
	var opts scoreOptions

	cmd := &cobra.Command{
		Use:   "score <dir|root>",
		Short: "Score purple output directories offline",
		Long: `Score one output directory, or with --all every task under a root that
holds one <task_id>/ directory per task. Missing directories score 0.

Exit code 1 means at least one task scored below the pass score.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			judge := scoring.NewJudge(a.fixtureSource(), a.logger)

			var targets []scoreTarget
			if opts.all {
				for _, def := range tasks.All() {
					targets = append(targets, scoreTarget{def: def, dir: filepath.Join(args[0], def.ID)})
				}
			} else {
				id := opts.taskID
				if id == "" {
					id = filepath.Base(filepath.Clean(args[0]))
				}
				def, err := tasks.Get(id)
				if err != nil {
					return fmt.Errorf("%w (use --task-id)", err)
				}
				targets = []scoreTarget{{def: def, dir: args[0]}}
			}

			started := time.Now()
			entries, err := scoreAll(cmd.Context(), judge, targets, a.cfg.Scoring.Workers)
			if err != nil {
				return err
			}
			summary := reporting.Summarize("greenbench", started, entries)

			if err := writeSummary(cmd.OutOrStdout(), summary, opts); err != nil {
				return err
			}
			if opts.junit != "" {
				if err := reporting.WriteJUnitXML(summary, opts.junit); err != nil {
					return err
				}
			}
			if !summary.OK() {
				return &ValidationFailedError{Message: fmt.Sprintf("%d of %d task(s) below %.0f", summary.Failed+summary.Errors, len(entries), reporting.PassScore)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.taskID, "task-id", "", "Task id (default: directory name)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Treat the argument as a root of <task_id>/ directories and score every task")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print results as JSON")
	cmd.Flags().StringVar(&opts.junit, "junit", "", "Also write JUnit XML to this file")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print scoring errors under each task")
	return cmd
}

type scoreTarget struct {
	def tasks.Definition
	dir string
}

// scoreAll scores targets with at most workers in flight. Entries keep the
// order of targets; a judge error is recorded on its entry.
func scoreAll(ctx context.Context, judge *scoring.Judge, targets []scoreTarget, workers int) ([]reporting.Entry, error) {
	entries := make([]reporting.Entry, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for i, t := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			res, err := judge.Score(t.def, t.dir)
			entries[i] = reporting.Entry{TaskID: t.def.ID, Result: res, Err: err, Duration: time.Since(start)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeSummary(w io.Writer, s reporting.Summary, opts scoreOptions) error {
	if opts.jsonOut {
		results := make([]any, 0, len(s.Entries))
		for _, e := range s.Entries {
			if e.Err != nil {
				results = append(results, map[string]any{"task_id": e.TaskID, "error": e.Err.Error()})
				continue
			}
			results = append(results, e.Result)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"mean_score": s.Mean,
			"passed":     s.Passed,
			"failed":     s.Failed,
			"errors":     s.Errors,
			"results":    results,
		})
	}
	return reporting.WriteTable(w, s, reporting.TableOptions{Color: isTerminal(w), Errors: opts.verbose})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
