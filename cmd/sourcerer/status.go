package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/shanehull/phonesourcer/internal/config"
	"github.com/shanehull/phonesourcer/internal/merge"
	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show unique phone counts of the output files against their targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderStatus(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// countUnique returns the number of distinct identities in a phone file.
func countUnique(path string) (int, error) {
	raw, err := storage.ReadPhones(path)
	if err != nil {
		return 0, err
	}
	seen := make(map[model.Phone]struct{}, len(raw))
	for _, r := range raw {
		if p, ok := model.NormalizePhone(r); ok {
			seen[p] = struct{}{}
		}
	}
	return len(seen), nil
}

func renderStatus(w io.Writer, cfg *config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"File", "Phones", "Target", "Progress", "Status"})

	for _, f := range []struct {
		path   string
		target int
	}{
		{cfg.OutPath(cfg.Agents.Output), cfg.Agents.TargetCount},
		{cfg.OutPath(cfg.Owners.Output), cfg.Owners.TargetCount},
		{cfg.OutPath(cfg.Merge.Output), cfg.Merge.Target},
	} {
		n, err := countUnique(f.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			t.AppendRow(table.Row{f.path, "-", f.target, "-", "missing"})
			continue
		case err != nil:
			t.AppendRow(table.Row{f.path, "-", f.target, "-", "unreadable"})
			continue
		}

		a := merge.Assess(n, f.target)
		status := fmt.Sprintf("need %d", a.Remaining)
		if a.Met {
			status = "done"
		}
		t.AppendRow(table.Row{f.path, n, f.target, fmt.Sprintf("%.1f%%", a.Percent), status})
	}
	t.Render()
}
