package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://api-statements.tnet.ge/v1", cfg.API.BaseURL)
	assert.Equal(t, "duckdb", cfg.Store.Driver)
	assert.Equal(t, 900, cfg.Agents.TargetCount)
	assert.Equal(t, 109, cfg.Agents.MaxPages)
	assert.Equal(t, "api", cfg.Agents.Discovery)
	assert.Equal(t, "owners.csv", cfg.Owners.Output)
	assert.Equal(t, 50, cfg.Owners.PageSize)
	assert.Equal(t, "api", cfg.Owners.Discovery)
	assert.Equal(t, 8000, cfg.Merge.Target)
	assert.Equal(t, []MergeInput{
		{Path: "agents.csv", Source: "Agents"},
		{Path: "owners.csv", Source: "Owners"},
	}, cfg.Merge.Inputs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: text
store:
  driver: file
agents:
  target_count: 50
  discovery: maklers
  seed_files: [old_agents.csv, old_agents.xlsx]
owners:
  operation_type: 3
merge:
  target: 100
  inputs:
    - path: a.csv
      source: A
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, 50, cfg.Agents.TargetCount)
	assert.Equal(t, "maklers", cfg.Agents.Discovery)
	assert.Equal(t, []string{"old_agents.csv", "old_agents.xlsx"}, cfg.Agents.SeedFiles)
	assert.Equal(t, 3, cfg.Owners.OperationType)
	assert.Equal(t, []MergeInput{{Path: "a.csv", Source: "A"}}, cfg.Merge.Inputs)
	// Defaults still apply for unset values
	assert.Equal(t, 109, cfg.Agents.MaxPages)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("agents:\n  target_count: 50\n"), 0o644))
	t.Setenv("SOURCERER_AGENTS_TARGET_COUNT", "75")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Agents.TargetCount)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load("nope.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Agents.TargetCount = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Owners.MaxEntities = -1
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Store.Driver = "postgres"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Agents.Discovery = "guess"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Owners.Discovery = "maklers"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Owners.Discovery = "csv"
	assert.Error(t, bad.Validate(), "csv discovery without a file")
	bad.Owners.ImportFile = "statements.csv"
	assert.NoError(t, bad.Validate())
}

func TestCollectorConversion(t *testing.T) {
	c := CollectorConfig{TargetCount: 3, MaxPages: 4, MaxEntities: 5, SnapshotEvery: 6, MaxConsecutiveFailures: 7, Output: "x.csv"}
	cc := c.Collector("Agents")
	assert.Equal(t, "Agents", cc.Name)
	assert.Equal(t, 3, cc.TargetCount)
	assert.Equal(t, 7, cc.MaxConsecutiveFailures)
	assert.NoError(t, cc.Validate())
}

func TestOutPath(t *testing.T) {
	cfg := &Config{Store: StoreConfig{OutDir: "out"}}
	assert.Equal(t, filepath.Join("out", "agents.csv"), cfg.OutPath("agents.csv"))
	assert.Equal(t, "/abs/a.csv", cfg.OutPath("/abs/a.csv"))
	assert.Equal(t, "", cfg.OutPath(""))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "phone", "+995599000001")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger, err = NewLogger(LogConfig{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)
	logger.Debug("dbg")
	assert.Contains(t, buf.String(), "msg=dbg")

	_, err = NewLogger(LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}
