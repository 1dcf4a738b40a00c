package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comtradebench/greenbench/internal/purple"
	"github.com/comtradebench/greenbench/internal/spinner"
	"github.com/comtradebench/greenbench/internal/tasks"
)

func newBaselineCommand(a *app) *cobra.Command {
	var taskID, mockURL, outputDir string
	var all, wait bool

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Run the baseline purple agent against the mock API",
		Long: `Run the reference purple agent: configure the task on the mock API, drain
every page with retry and backoff, drop totals rows, deduplicate, sort and
write data.jsonl, metadata.json and run.log to <output-dir>/<task_id>/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mockURL == "" {
				mockURL = a.cfg.Mock.URL
			}
			if outputDir == "" {
				outputDir = a.cfg.Paths.PurpleOutputRoot
			}

			var defs []tasks.Definition
			switch {
			case all:
				defs = tasks.All()
			case taskID != "":
				def, err := tasks.Get(taskID)
				if err != nil {
					return err
				}
				defs = []tasks.Definition{def}
			default:
				return fmt.Errorf("--task-id or --all is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			agent := purple.New(purple.Config{MockURL: mockURL, OutputRoot: outputDir, Logger: a.logger})
			if wait {
				if err := agent.WaitReady(ctx); err != nil {
					return fmt.Errorf("mock API at %s not ready: %w", mockURL, err)
				}
			}

			var progress *spinner.Spinner
			if isTerminal(cmd.ErrOrStderr()) {
				progress = spinner.Start(cmd.ErrOrStderr(), "starting")
				defer progress.Stop()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for i, def := range defs {
				if progress != nil {
					progress.Set(fmt.Sprintf("[%d/%d] %s", i+1, len(defs), def.ID))
				}
				rep, err := agent.Run(ctx, def)
				if err != nil {
					return fmt.Errorf("%s: %w", def.ID, err)
				}
				if err := enc.Encode(rep); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task-id", "", "Task to run")
	cmd.Flags().BoolVar(&all, "all", false, "Run every task in order")
	cmd.Flags().StringVar(&mockURL, "mock-url", "", "Mock API base URL (default from config)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Output root (default: paths.purple_output_root)")
	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for the mock API to become healthy first")
	return cmd
}
