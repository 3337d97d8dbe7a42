package config

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/shanehull/phonesourcer/internal/collector"
	"github.com/shanehull/phonesourcer/internal/resilience"
	"github.com/shanehull/phonesourcer/internal/source"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Agents  AgentsConfig  `yaml:"agents" mapstructure:"agents"`
	Owners  OwnersConfig  `yaml:"owners" mapstructure:"owners"`
	Merge   MergeConfig   `yaml:"merge" mapstructure:"merge"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// APIConfig configures the statements API client.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	SiteURL     string  `yaml:"site_url" mapstructure:"site_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Options converts the section into client options.
func (c APIConfig) Options() source.APIOptions {
	retry := resilience.DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		retry.MaxAttempts = c.MaxAttempts
	}
	return source.APIOptions{
		BaseURL:    c.BaseURL,
		SiteURL:    c.SiteURL,
		UserAgent:  c.UserAgent,
		Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
		RatePerSec: c.RatePerSec,
		Burst:      c.Burst,
		Retry:      retry,
	}
}

// BrowserConfig configures the headless Chrome fallback.
type BrowserConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Bin             string `yaml:"bin" mapstructure:"bin"`
	Headless        bool   `yaml:"headless" mapstructure:"headless"`
	PageTimeoutSecs int    `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	RevealWaitMs    int    `yaml:"reveal_wait_ms" mapstructure:"reveal_wait_ms"`
}

// StoreConfig selects where checkpoints live.
type StoreConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	DuckDBPath string `yaml:"duckdb_path" mapstructure:"duckdb_path"`
	OutDir     string `yaml:"out_dir" mapstructure:"out_dir"`
}

// CollectorConfig bounds one collector run and names its outputs.
type CollectorConfig struct {
	TargetCount            int      `yaml:"target_count" mapstructure:"target_count"`
	MaxPages               int      `yaml:"max_pages" mapstructure:"max_pages"`
	MaxEntities            int      `yaml:"max_entities" mapstructure:"max_entities"`
	SnapshotEvery          int      `yaml:"snapshot_every" mapstructure:"snapshot_every"`
	MaxConsecutiveFailures int      `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	Output                 string   `yaml:"output" mapstructure:"output"`
	XLSX                   string   `yaml:"xlsx" mapstructure:"xlsx"`
	Layout                 string   `yaml:"layout" mapstructure:"layout"`
	BOM                    bool     `yaml:"bom" mapstructure:"bom"`
	SeedFiles              []string `yaml:"seed_files" mapstructure:"seed_files"`
	ImportFile             string   `yaml:"import_file" mapstructure:"import_file"`
}

func (c CollectorConfig) Validate() error {
	switch {
	case c.TargetCount <= 0:
		return eris.New("target_count must be positive")
	case c.MaxPages <= 0:
		return eris.New("max_pages must be positive")
	case c.MaxEntities <= 0:
		return eris.New("max_entities must be positive")
	case c.Output == "":
		return eris.New("output is required")
	}
	return nil
}

// validateDiscovery checks a discovery mode against the allowed ones. The
// csv mode reads entities from ImportFile.
func (c CollectorConfig) validateDiscovery(mode string, allowed ...string) error {
	for _, a := range allowed {
		if mode != a {
			continue
		}
		if mode == "csv" && c.ImportFile == "" {
			return eris.New("csv discovery needs import_file")
		}
		return nil
	}
	return eris.Errorf("unknown discovery %q", mode)
}

// Collector builds the run bounds for a collector called name.
func (c CollectorConfig) Collector(name string) collector.Config {
	return collector.Config{
		Name:                   name,
		TargetCount:            c.TargetCount,
		MaxPages:               c.MaxPages,
		MaxEntities:            c.MaxEntities,
		SnapshotEvery:          c.SnapshotEvery,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
	}
}

// AgentsConfig configures the agents collector.
type AgentsConfig struct {
	CollectorConfig `yaml:",inline" mapstructure:",squash"`
	Discovery       string `yaml:"discovery" mapstructure:"discovery"`
	MaxSubPages     int    `yaml:"max_sub_pages" mapstructure:"max_sub_pages"`
	CompanyAgents   bool   `yaml:"company_agents" mapstructure:"company_agents"`
	ScrapeDelayMs   int    `yaml:"scrape_delay_ms" mapstructure:"scrape_delay_ms"`
}

// OwnersConfig configures the owners collector.
type OwnersConfig struct {
	CollectorConfig `yaml:",inline" mapstructure:",squash"`
	Discovery       string `yaml:"discovery" mapstructure:"discovery"`
	OperationType   int    `yaml:"operation_type" mapstructure:"operation_type"`
	PageSize        int    `yaml:"page_size" mapstructure:"page_size"`
}

// MergeInput is one file fed to the master merge.
type MergeInput struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Source string `yaml:"source" mapstructure:"source"`
}

// MergeConfig configures the master merge.
type MergeConfig struct {
	Inputs    []MergeInput `yaml:"inputs" mapstructure:"inputs"`
	Output    string       `yaml:"output" mapstructure:"output"`
	PhoneOnly string       `yaml:"phone_only" mapstructure:"phone_only"`
	XLSX      string       `yaml:"xlsx" mapstructure:"xlsx"`
	Target    int          `yaml:"target" mapstructure:"target"`
}

// Validate checks the sections every command relies on.
func (c *Config) Validate() error {
	if err := c.Agents.Validate(); err != nil {
		return eris.Wrap(err, "config: agents")
	}
	if err := c.Owners.Validate(); err != nil {
		return eris.Wrap(err, "config: owners")
	}
	switch c.Store.Driver {
	case "duckdb", "file":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if err := c.Agents.validateDiscovery(c.Agents.Discovery, "api", "maklers", "csv"); err != nil {
		return eris.Wrap(err, "config: agents")
	}
	if err := c.Owners.validateDiscovery(c.Owners.Discovery, "api", "csv"); err != nil {
		return eris.Wrap(err, "config: owners")
	}
	return nil
}

// OutPath resolves a relative output name against the output directory.
func (c *Config) OutPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Store.OutDir, name)
}

// Load reads configuration from an optional YAML file and the environment.
// An empty path looks for config.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SOURCERER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("api.base_url", source.DefaultAPIBaseURL)
	v.SetDefault("api.site_url", source.DefaultSiteURL)
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.rate_per_sec", 2.0)
	v.SetDefault("api.burst", 1)
	v.SetDefault("api.max_attempts", 3)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.page_timeout_secs", 30)
	v.SetDefault("browser.reveal_wait_ms", 2000)
	v.SetDefault("store.driver", "duckdb")
	v.SetDefault("store.duckdb_path", "out/phones.duckdb")
	v.SetDefault("store.out_dir", "out")

	v.SetDefault("agents.target_count", 900)
	v.SetDefault("agents.max_pages", 109)
	v.SetDefault("agents.max_entities", 5000)
	v.SetDefault("agents.snapshot_every", 10)
	v.SetDefault("agents.max_consecutive_failures", 20)
	v.SetDefault("agents.output", "agents.csv")
	v.SetDefault("agents.xlsx", "agents.xlsx")
	v.SetDefault("agents.layout", "spaced")
	v.SetDefault("agents.discovery", "api")
	v.SetDefault("agents.import_file", "")
	v.SetDefault("agents.max_sub_pages", 3)
	v.SetDefault("agents.company_agents", true)
	v.SetDefault("agents.scrape_delay_ms", 1000)

	v.SetDefault("owners.target_count", 900)
	v.SetDefault("owners.max_pages", 200)
	v.SetDefault("owners.max_entities", 10000)
	v.SetDefault("owners.snapshot_every", 10)
	v.SetDefault("owners.max_consecutive_failures", 20)
	v.SetDefault("owners.output", "owners.csv")
	v.SetDefault("owners.xlsx", "owners.xlsx")
	v.SetDefault("owners.layout", "spaced")
	v.SetDefault("owners.discovery", "api")
	v.SetDefault("owners.import_file", "")
	v.SetDefault("owners.operation_type", 0)
	v.SetDefault("owners.page_size", 50)

	v.SetDefault("merge.inputs", []map[string]string{
		{"path": "agents.csv", "source": "Agents"},
		{"path": "owners.csv", "source": "Owners"},
	})
	v.SetDefault("merge.output", "master_phones_unique.csv")
	v.SetDefault("merge.phone_only", "master_phones_only.csv")
	v.SetDefault("merge.xlsx", "master_phones.xlsx")
	v.SetDefault("merge.target", 8000)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// NewLogger builds the application logger. Format "text" selects a text
// handler; anything else is JSON.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" || cfg.Format == "console" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}
