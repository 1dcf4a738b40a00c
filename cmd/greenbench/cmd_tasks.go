package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/comtradebench/greenbench/internal/reporting"
	"github.com/comtradebench/greenbench/internal/tasks"
)

func newTasksCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the benchmark tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeTasks(cmd.OutOrStdout(), tasks.All(), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, yaml or json")
	return cmd
}

func writeTasks(w io.Writer, defs []tasks.Definition, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(defs); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		return writeTaskTable(w, defs)
	default:
		return fmt.Errorf("invalid format %q: must be table, yaml or json", format)
	}
}

func writeTaskTable(w io.Writer, defs []tasks.Definition) error {
	rows := [][]string{{"TASK", "MODE", "ROWS", "PAGE", "PAGING", "BASELINE", "DESCRIPTION"}}
	for _, d := range defs {
		c := d.Constraints
		rows = append(rows, []string{
			d.ID,
			string(d.Fault.Mode),
			strconv.Itoa(c.TotalRows),
			strconv.Itoa(c.PageSize),
			string(c.PagingMode),
			strconv.Itoa(c.BaselineRequests),
			d.Description,
		})
	}

	widths := make([]int, len(rows[0]))
	for _, r := range rows {
		for i, cell := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, cell := range r {
			cells[i] = reporting.PadRight(cell, widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " ")); err != nil {
			return err
		}
	}
	return nil
}
