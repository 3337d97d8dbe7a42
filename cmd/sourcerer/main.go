package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/shanehull/phonesourcer/internal/config"
)

var (
	cfg        *config.Config
	logger     *slog.Logger
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "sourcerer",
	Short: "Collect unique Georgian phone numbers from myhome.ge",
	Long: "Pages through myhome.ge agents and owner listings, extracts and normalizes phone numbers, " +
		"and keeps a deduplicated, resumable set per collector plus a merged master list.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		l, err := config.NewLogger(cfg.Log, os.Stderr)
		if err != nil {
			return eris.Wrap(err, "init logger")
		}
		logger = l
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./config.yaml)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
