package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/shanehull/phonesourcer/internal/storage"
)

var (
	searchFilter storage.Filter
	searchOut    string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query stored phones in the DuckDB store",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepo(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Close()
		return runSearch(cmd.Context(), repo, searchFilter, searchOut, cmd.OutOrStdout())
	},
}

func init() {
	addFilterFlags(searchCmd, &searchFilter)
	searchCmd.Flags().IntVar(&searchFilter.Limit, "limit", 0, "Maximum rows to print (0 for all)")
	searchCmd.Flags().StringVar(&searchOut, "out", "", "Write matches to this CSV instead of printing")
	rootCmd.AddCommand(searchCmd)
}

func addFilterFlags(cmd *cobra.Command, f *storage.Filter) {
	cmd.Flags().StringVar(&f.PhonePrefix, "prefix", "", "Phone prefix, e.g. +99557")
	cmd.Flags().StringSliceVar(&f.Sources, "source", nil, "Source labels (comma-separated)")
	cmd.Flags().StringVar(&f.Scope, "scope", "", "Collector scope (agents or owners)")
}

func openRepo(ctx context.Context) (*storage.DuckDBRepo, error) {
	repo, err := storage.NewDuckDBRepo(cfg.Store.DuckDBPath, logger)
	if err != nil {
		return nil, err
	}
	if err := repo.Init(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

func runSearch(ctx context.Context, repo *storage.DuckDBRepo, f storage.Filter, out string, w io.Writer) error {
	if out != "" {
		if err := repo.ExportCSV(ctx, out, f); err != nil {
			return err
		}
		fmt.Fprintf(w, "Wrote %s\n", out)
		return nil
	}

	entries, err := repo.Search(ctx, f)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Phone", "Source"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Phone.Spaced(), e.Source})
	}
	t.AppendFooter(table.Row{"Total", len(entries)})
	t.Render()
	return nil
}
