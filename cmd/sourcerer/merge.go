package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/shanehull/phonesourcer/internal/config"
	"github.com/shanehull/phonesourcer/internal/export"
	"github.com/shanehull/phonesourcer/internal/merge"
)

var (
	mergeInputs []string
	mergeTarget int
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge collector outputs into the master phone list",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(mergeInputs) > 0 {
			inputs, err := parseInputs(mergeInputs)
			if err != nil {
				return err
			}
			cfg.Merge.Inputs = inputs
		}
		if mergeTarget > 0 {
			cfg.Merge.Target = mergeTarget
		}
		return runMerge(cmd.Context(), cfg, logger, cmd.OutOrStdout())
	},
}

func init() {
	mergeCmd.Flags().StringSliceVar(&mergeInputs, "input", nil, "Input as path=Source (repeatable; replaces configured inputs)")
	mergeCmd.Flags().IntVar(&mergeTarget, "target", 0, "Override the configured master target")
	rootCmd.AddCommand(mergeCmd)
}

// parseInputs reads path=Source pairs. A bare path is labelled with its
// file name without extension.
func parseInputs(raw []string) ([]config.MergeInput, error) {
	out := make([]config.MergeInput, 0, len(raw))
	for _, r := range raw {
		path, src, found := strings.Cut(r, "=")
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, eris.Errorf("invalid merge input %q", r)
		}
		if !found || strings.TrimSpace(src) == "" {
			src = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		out = append(out, config.MergeInput{Path: path, Source: strings.TrimSpace(src)})
	}
	return out, nil
}

func runMerge(ctx context.Context, cfg *config.Config, logger *slog.Logger, w io.Writer) error {
	inputs := make([]merge.Input, 0, len(cfg.Merge.Inputs))
	for _, in := range cfg.Merge.Inputs {
		inputs = append(inputs, merge.Input{Path: cfg.OutPath(in.Path), Source: in.Source})
	}

	report := merge.Merge(inputs, logger)

	outputs := export.Multi{&export.CSVExporter{Path: cfg.OutPath(cfg.Merge.Output), Layout: export.Annotated}}
	if cfg.Merge.PhoneOnly != "" {
		outputs = append(outputs, &export.CSVExporter{Path: cfg.OutPath(cfg.Merge.PhoneOnly), Layout: export.Spaced})
	}
	if cfg.Merge.XLSX != "" {
		outputs = append(outputs, &export.XLSXExporter{Path: cfg.OutPath(cfg.Merge.XLSX), Sheet: "Phones", WithSource: true})
	}
	if err := outputs.Snapshot(ctx, report.Set); err != nil {
		return err
	}

	for _, in := range report.Inputs {
		switch {
		case in.Missing:
			fmt.Fprintf(w, "%-30s missing\n", in.Path)
		case in.Err != nil:
			fmt.Fprintf(w, "%-30s error: %v\n", in.Path, in.Err)
		default:
			fmt.Fprintf(w, "%-30s +%d\n", in.Path, in.Added)
		}
	}

	a := merge.Assess(report.Set.Len(), cfg.Merge.Target)
	fmt.Fprintf(w, "Unique phones: %d / %d (%.1f%%)\n", a.Total, a.Target, a.Percent)
	if a.Met {
		fmt.Fprintln(w, "Target reached")
	} else {
		fmt.Fprintf(w, "Need %d more\n", a.Remaining)
	}
	return nil
}
