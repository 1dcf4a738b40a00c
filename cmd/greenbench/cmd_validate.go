package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/comtradebench/greenbench/internal/tasks"
	"github.com/comtradebench/greenbench/internal/validation"
)

type validateOptions struct {
	taskID    string
	taskQuery string
	faultMode string
	jsonOut   bool
}

func newValidateCommand(_ *app) *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check a purple output directory against the file contract",
		Long: `Check data.jsonl, metadata.json and run.log in <dir>.

The expectation comes from the registered task named by --task-id, or by the
directory name. --task-query and --fault-mode override it, which also allows
validating output of unregistered tasks.

Exit code 0 means no violations, 1 means violations were found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := buildExpectation(args[0], opts)
			if err != nil {
				return err
			}
			issues := validation.Validate(args[0], exp)
			if err := printIssues(cmd.OutOrStdout(), args[0], issues, opts.jsonOut); err != nil {
				return err
			}
			if len(issues) > 0 {
				return &ValidationFailedError{Message: fmt.Sprintf("%d contract violation(s) in %s", len(issues), args[0])}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.taskID, "task-id", "", "Task id (default: directory name)")
	cmd.Flags().StringVar(&opts.taskQuery, "task-query", "", "Expected query as a JSON object")
	cmd.Flags().StringVar(&opts.faultMode, "fault-mode", "", "Fault mode whose log evidence is required")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print issues as JSON")
	return cmd
}

// buildExpectation resolves the task expectation for dir. A registered task
// supplies defaults; explicit flags win.
func buildExpectation(dir string, opts validateOptions) (validation.Expectation, error) {
	id := opts.taskID
	if id == "" {
		id = filepath.Base(filepath.Clean(dir))
	}

	exp := validation.Expectation{TaskID: id, Mode: tasks.ModeNone}
	def, err := tasks.Get(id)
	switch {
	case err == nil:
		exp = validation.ExpectTask(def)
	case !errors.Is(err, tasks.ErrUnknownTask):
		return exp, err
	}

	if opts.taskQuery != "" {
		var q map[string]any
		dec := json.NewDecoder(strings.NewReader(opts.taskQuery))
		dec.UseNumber()
		if err := dec.Decode(&q); err != nil {
			return exp, fmt.Errorf("invalid --task-query: %w", err)
		}
		exp.Query = q
	}
	if opts.faultMode != "" {
		mode, err := tasks.ParseFaultMode(opts.faultMode)
		if err != nil {
			return exp, err
		}
		exp.Mode = mode
	}
	return exp, nil
}

func printIssues(w io.Writer, dir string, issues []validation.Issue, asJSON bool) error {
	if asJSON {
		if issues == nil {
			issues = []validation.Issue{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"dir": dir, "ok": len(issues) == 0, "issues": issues})
	}
	if len(issues) == 0 {
		_, err := fmt.Fprintf(w, "OK: %s satisfies the output contract\n", dir)
		return err
	}
	for _, is := range issues {
		if _, err := fmt.Fprintf(w, "%s\n", is); err != nil {
			return err
		}
	}
	return nil
}
