package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comtradebench/greenbench/internal/fixtures"
	"github.com/comtradebench/greenbench/internal/tasks"
)

func newFixturesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Manage ground-truth fixture files",
	}
	cmd.AddCommand(newFixturesExportCommand(a))
	return cmd
}

func newFixturesExportCommand(a *app) *cobra.Command {
	var dir, compress, taskID string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the generated fixtures as <task_id>.jsonl[.gz|.zst] files",
		Long: `Write the deterministic fixtures to --dir. Point paths.fixtures_dir (or
FIXTURES_DIR) at the directory to serve and judge from files instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := fixtures.ParseCompression(compress)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.Paths.FixturesDir
			}
			if dir == "" {
				return fmt.Errorf("--dir is required when paths.fixtures_dir is not configured")
			}

			defs := tasks.All()
			if taskID != "" {
				def, err := tasks.Get(taskID)
				if err != nil {
					return err
				}
				defs = []tasks.Definition{def}
			}
			for _, def := range defs {
				path, err := fixtures.Export(dir, fixtures.Generate(def), c)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path) //nolint:errcheck
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Destination directory (default: paths.fixtures_dir)")
	cmd.Flags().StringVar(&compress, "compress", "none", "Compression: none, gzip or zstd")
	cmd.Flags().StringVar(&taskID, "task-id", "", "Export only this task")
	return cmd
}
