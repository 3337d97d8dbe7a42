package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/shanehull/phonesourcer/internal/storage"
)

var (
	deleteFilter storage.Filter
	deleteYes    bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete stored phones matching filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepo(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.Close()
		return runDelete(cmd.Context(), repo, deleteFilter, deleteYes, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	addFilterFlags(deleteCmd, &deleteFilter)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(ctx context.Context, repo *storage.DuckDBRepo, f storage.Filter, yes bool, in io.Reader, w io.Writer) error {
	if f.PhonePrefix == "" && len(f.Sources) == 0 && f.Scope == "" {
		return eris.New("at least one filter is required (--prefix, --source or --scope)")
	}

	fmt.Fprintln(w, "Delete with filters:")
	if f.PhonePrefix != "" {
		fmt.Fprintf(w, "  prefix: %s\n", f.PhonePrefix)
	}
	if len(f.Sources) > 0 {
		fmt.Fprintf(w, "  source: %s\n", strings.Join(f.Sources, ","))
	}
	if f.Scope != "" {
		fmt.Fprintf(w, "  scope: %s\n", f.Scope)
	}

	if !yes {
		fmt.Fprint(w, "Are you sure? (yes/no): ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "yes" && response != "y" {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}

	n, err := repo.DeleteByFilters(ctx, f)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(w, "No phones matched the filters.")
	} else {
		fmt.Fprintf(w, "Deleted %d rows.\n", n)
	}
	return nil
}
