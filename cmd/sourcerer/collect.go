package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shanehull/phonesourcer/internal/collector"
	"github.com/shanehull/phonesourcer/internal/config"
	"github.com/shanehull/phonesourcer/internal/enrich"
	"github.com/shanehull/phonesourcer/internal/export"
	"github.com/shanehull/phonesourcer/internal/source"
	"github.com/shanehull/phonesourcer/internal/storage"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a phone collector",
}

var collectAgentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Collect agent and agency phones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollect(cmd.Context(), "agents")
	},
}

var collectOwnersCmd = &cobra.Command{
	Use:   "owners",
	Short: "Collect private owner phones from listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollect(cmd.Context(), "owners")
	},
}

var collectBothCmd = &cobra.Command{
	Use:   "both",
	Short: "Run the agents and owners collectors side by side",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollect(cmd.Context(), "agents", "owners")
	},
}

var (
	targetOverride   int
	maxPagesOverride int
)

func init() {
	collectCmd.PersistentFlags().IntVar(&targetOverride, "target", 0, "Override the configured target count")
	collectCmd.PersistentFlags().IntVar(&maxPagesOverride, "max-pages", 0, "Override the configured page cap")
	collectCmd.AddCommand(collectAgentsCmd, collectOwnersCmd, collectBothCmd)
	rootCmd.AddCommand(collectCmd)
}

// deps holds what collectors share within one invocation: the API client
// and its rate limiter, the DuckDB store and the browser.
type deps struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *source.APIClient
	repo    *storage.DuckDBRepo
	browser *enrich.BrowserExtractor
}

func newDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{
		cfg:    cfg,
		logger: logger,
		client: source.NewAPIClient(cfg.API.Options(), logger.With("component", "api")),
	}

	if cfg.Store.Driver == "duckdb" {
		repo, err := storage.NewDuckDBRepo(cfg.Store.DuckDBPath, logger)
		if err != nil {
			return nil, err
		}
		if err := repo.Init(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		d.repo = repo
	}

	if cfg.Browser.Enabled {
		d.browser = enrich.NewBrowserExtractor(enrich.BrowserOptions{
			Bin:         cfg.Browser.Bin,
			Headless:    cfg.Browser.Headless,
			PageTimeout: time.Duration(cfg.Browser.PageTimeoutSecs) * time.Second,
			RevealWait:  time.Duration(cfg.Browser.RevealWaitMs) * time.Millisecond,
			SiteURL:     cfg.API.SiteURL,
		}, logger.With("component", "browser"))
	}
	return d, nil
}

func (d *deps) Close() {
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			d.logger.Warn("Browser close failed", "err", err)
		}
	}
	if d.repo != nil {
		if err := d.repo.Close(); err != nil {
			d.logger.Warn("DB close failed", "err", err)
		}
	}
}

// build wires the source, extractor chain, checkpoint and exporters for
// the named collector.
func (d *deps) build(kind string) (*collector.Collector, error) {
	label, err := scopeLabel(kind)
	if err != nil {
		return nil, err
	}

	var (
		cc  config.CollectorConfig
		src source.RecordSource
		ex  enrich.Extractor
	)

	switch kind {
	case "agents":
		cc = d.cfg.Agents.CollectorConfig
		switch d.cfg.Agents.Discovery {
		case "maklers":
			delay := time.Duration(d.cfg.Agents.ScrapeDelayMs) * time.Millisecond
			src = source.NewMaklersScraper(d.logger.With("source", "Maklers"), d.cfg.API.SiteURL, delay)
		case "csv":
			src = source.NewCSVSource(cc.ImportFile, 0)
		default:
			src = source.NewBrokersSource(d.client, d.logger.With("source", "Brokers"))
		}
		ex = enrich.NewChain(d.logger,
			enrich.RecordExtractor{},
			enrich.NewBrokerExtractor(d.client, d.logger, d.cfg.Agents.MaxSubPages, d.cfg.Agents.CompanyAgents),
		)
	case "owners":
		cc = d.cfg.Owners.CollectorConfig
		if d.cfg.Owners.Discovery == "csv" {
			src = source.NewCSVSource(cc.ImportFile, d.cfg.Owners.PageSize)
		} else {
			src = source.NewStatementsSource(d.client, d.logger.With("source", "Statements"), d.cfg.Owners.OperationType, d.cfg.Owners.PageSize)
		}
		extractors := []enrich.Extractor{enrich.NewStatementExtractor(d.client, d.logger)}
		if d.browser != nil {
			extractors = append(extractors, d.browser)
		}
		ex = enrich.NewChain(d.logger, extractors...)
	}

	outPath := d.cfg.OutPath(cc.Output)

	var store storage.CheckpointStore
	if d.repo != nil {
		store = d.repo.Checkpoint(kind)
	} else {
		seeds := append([]string{outPath}, cc.SeedFiles...)
		store = storage.NewFileCheckpoint(checkpointPath(d.cfg, kind), label, seeds, d.logger)
	}

	exporters := export.Multi{&export.CSVExporter{Path: outPath, Layout: export.ParseLayout(cc.Layout), BOM: cc.BOM}}
	if cc.XLSX != "" {
		exporters = append(exporters, &export.XLSXExporter{Path: d.cfg.OutPath(cc.XLSX), Sheet: label})
	}

	return collector.New(cc.Collector(label), src, ex, store, exporters, d.logger)
}

// applyOverrides copies non-zero flag values onto the collector sections.
func applyOverrides(c *config.Config, target, maxPages int) {
	for _, cc := range []*config.CollectorConfig{&c.Agents.CollectorConfig, &c.Owners.CollectorConfig} {
		if target > 0 {
			cc.TargetCount = target
		}
		if maxPages > 0 {
			cc.MaxPages = maxPages
		}
	}
}

func runCollect(ctx context.Context, kinds ...string) error {
	applyOverrides(cfg, targetOverride, maxPagesOverride)

	d, err := newDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	collectors := make([]*collector.Collector, 0, len(kinds))
	for _, kind := range kinds {
		c, err := d.build(kind)
		if err != nil {
			return err
		}
		collectors = append(collectors, c)
	}

	// Collectors run independently; one failing does not cancel the other.
	var g errgroup.Group
	for i, c := range collectors {
		kind := kinds[i]
		g.Go(func() error {
			res, err := c.Run(ctx)
			report(logger.With("collector", kind), res, err)
			return err
		})
	}
	return g.Wait()
}

// report flags runs that need attention; the collector logs its own summary.
func report(l *slog.Logger, res collector.Result, err error) {
	switch {
	case err != nil:
		l.Error("Collection failed", "reason", res.Reason, "accepted", res.Accepted, "err", err)
	case res.Outcome == collector.Partial:
		l.Warn("Target not reached", "reason", res.Reason, "accepted", res.Accepted)
	}
}
