package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/shanehull/phonesourcer/internal/config"
	"github.com/shanehull/phonesourcer/internal/storage"
)

var importCmd = &cobra.Command{
	Use:   "import <agents|owners> [files...]",
	Short: "Load a file checkpoint and phone files into the DuckDB store",
	Long: "Reads <out_dir>/<scope>_checkpoint.csv with its processed-entity sidecar, plus any extra " +
		"CSV or XLSX phone files, and records them under the scope in the DuckDB store.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepo(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Close()
		return runImport(cmd.Context(), repo, cfg, logger, args[0], args[1:], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

// scopeLabel is the source label phones of a collector scope carry.
func scopeLabel(scope string) (string, error) {
	switch scope {
	case "agents":
		return "Agents", nil
	case "owners":
		return "Owners", nil
	}
	return "", eris.Errorf("unknown collector %q", scope)
}

// checkpointPath is where the file driver keeps a scope's checkpoint.
func checkpointPath(cfg *config.Config, scope string) string {
	return cfg.OutPath(scope + "_checkpoint.csv")
}

func runImport(ctx context.Context, repo *storage.DuckDBRepo, cfg *config.Config, logger *slog.Logger, scope string, files []string, w io.Writer) error {
	label, err := scopeLabel(scope)
	if err != nil {
		return err
	}

	fc := storage.NewFileCheckpoint(checkpointPath(cfg, scope), label, files, logger)
	set, processed, err := fc.Load(ctx)
	if err != nil {
		return err
	}

	added := 0
	for _, e := range set.Sorted() {
		isNew, err := repo.SavePhone(ctx, scope, e)
		if err != nil {
			return err
		}
		if isNew {
			added++
		}
	}
	if err := repo.MarkProcessed(ctx, scope, storage.SortedIDs(processed)...); err != nil {
		return err
	}

	fmt.Fprintf(w, "Imported %d new phones (%d read) and %d processed entities into %s\n",
		added, set.Len(), len(processed), scope)
	return nil
}
