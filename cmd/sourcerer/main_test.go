package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanehull/phonesourcer/internal/config"
	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	c, err := config.Load("")
	require.NoError(t, err)
	c.Store.OutDir = dir
	c.Store.Driver = "file"
	return c
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"collect", "merge", "status", "search", "delete", "import"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}

	names = make(map[string]bool)
	for _, c := range collectCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"agents", "owners", "both"} {
		assert.True(t, names[name], "collect should have subcommand %q", name)
	}
}

func TestRootCommand_Flags(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	for _, name := range []string{"prefix", "source", "scope", "limit", "out"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(name), "search should have --%s", name)
	}
	yes := deleteCmd.Flags().Lookup("yes")
	require.NotNil(t, yes)
	assert.Equal(t, "false", yes.DefValue)
}

func TestBuildCollectors(t *testing.T) {
	c := testConfig(t)
	d, err := newDeps(context.Background(), c, testLogger())
	require.NoError(t, err)
	defer d.Close()
	assert.Nil(t, d.repo, "file driver opens no database")

	for _, kind := range []string{"agents", "owners"} {
		col, err := d.build(kind)
		require.NoError(t, err, kind)
		assert.NotNil(t, col)
	}

	c.Agents.Discovery = "maklers"
	_, err = d.build("agents")
	require.NoError(t, err)

	_, err = d.build("sellers")
	assert.Error(t, err)
}

func TestRunMerge(t *testing.T) {
	c := testConfig(t)
	c.Merge.Target = 4
	out := c.Store.OutDir

	require.NoError(t, os.WriteFile(filepath.Join(out, "agents.csv"),
		[]byte("Phone\n+995 571 233 844\n599000001\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(out, "owners.csv"),
		[]byte("Phone\n995571233844\n+995599000002\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, runMerge(context.Background(), c, testLogger(), &buf))
	assert.Contains(t, buf.String(), "Unique phones: 3 / 4")
	assert.Contains(t, buf.String(), "Need 1 more")

	rows, err := storage.ReadRows(filepath.Join(out, "master_phones_unique.csv"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, storage.Row{Phone: "+995571233844", Source: "Agents"}, rows[0])

	phones, err := storage.ReadPhones(filepath.Join(out, "master_phones_only.csv"))
	require.NoError(t, err)
	assert.Contains(t, phones, "+995 599 000 002")

	_, err = os.Stat(filepath.Join(out, "master_phones.xlsx"))
	assert.NoError(t, err)
}

func TestRenderStatus(t *testing.T) {
	c := testConfig(t)
	c.Agents.TargetCount = 2
	require.NoError(t, os.WriteFile(filepath.Join(c.Store.OutDir, "agents.csv"),
		[]byte("Phone\n599000001\n+995599000001\n599000002\n"), 0o644))

	var buf bytes.Buffer
	renderStatus(&buf, c)
	out := buf.String()

	agentsLine := lineContaining(out, "agents.csv")
	assert.Contains(t, agentsLine, "done")
	assert.Contains(t, agentsLine, "100.0%")
	assert.Contains(t, lineContaining(out, "owners.csv"), "missing")
}

func lineContaining(s, substr string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			return line
		}
	}
	return ""
}

func seededRepo(t *testing.T) *storage.DuckDBRepo {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.NewDuckDBRepo("", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Init(ctx))

	for i, e := range []model.Entry{
		{Phone: "+995599000001", Source: "Agents"},
		{Phone: "+995577000002", Source: "Agents"},
	} {
		e.Seq = i + 1
		_, err := repo.SavePhone(ctx, "agents", e)
		require.NoError(t, err)
	}
	_, err = repo.SavePhone(ctx, "owners", model.Entry{Phone: "+995599000003", Source: "Owners", Seq: 1})
	require.NoError(t, err)
	return repo
}

func TestRunSearch(t *testing.T) {
	repo := seededRepo(t)

	var buf bytes.Buffer
	require.NoError(t, runSearch(context.Background(), repo, storage.Filter{PhonePrefix: "+995599"}, "", &buf))
	assert.Contains(t, buf.String(), "+995 599 000 001")
	assert.Contains(t, buf.String(), "+995 599 000 003")
	assert.NotContains(t, buf.String(), "+995 577 000 002")

	out := filepath.Join(t.TempDir(), "search.csv")
	buf.Reset()
	require.NoError(t, runSearch(context.Background(), repo, storage.Filter{Scope: "agents"}, out, &buf))
	phones, err := storage.ReadPhones(out)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"+995599000001", "+995577000002"}, phones)
}

func TestRunDelete(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t)
	var buf bytes.Buffer

	err := runDelete(ctx, repo, storage.Filter{}, true, strings.NewReader(""), &buf)
	assert.Error(t, err, "no filters")

	buf.Reset()
	require.NoError(t, runDelete(ctx, repo, storage.Filter{Scope: "owners"}, false, strings.NewReader("no\n"), &buf))
	assert.Contains(t, buf.String(), "Cancelled.")
	set, err := repo.Phones(ctx, "owners")
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	buf.Reset()
	require.NoError(t, runDelete(ctx, repo, storage.Filter{Scope: "owners"}, false, strings.NewReader("y\n"), &buf))
	assert.Contains(t, buf.String(), "Deleted 1 rows.")
	set, err = repo.Phones(ctx, "owners")
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())

	buf.Reset()
	require.NoError(t, runDelete(ctx, repo, storage.Filter{PhonePrefix: "+99550"}, true, nil, &buf))
	assert.Contains(t, buf.String(), "No phones matched")
}

func TestParseInputs(t *testing.T) {
	got, err := parseInputs([]string{"out/agents.csv=Agents", " old/owners_v1.xlsx "})
	require.NoError(t, err)
	assert.Equal(t, []config.MergeInput{
		{Path: "out/agents.csv", Source: "Agents"},
		{Path: "old/owners_v1.xlsx", Source: "owners_v1"},
	}, got)

	_, err = parseInputs([]string{"=Agents"})
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	c := &config.Config{}
	c.Agents.TargetCount, c.Owners.TargetCount = 900, 900
	c.Agents.MaxPages = 109

	applyOverrides(c, 5, 0)
	assert.Equal(t, 5, c.Agents.TargetCount)
	assert.Equal(t, 5, c.Owners.TargetCount)
	assert.Equal(t, 109, c.Agents.MaxPages)
}

func TestCollectFromCSVImport(t *testing.T) {
	c := testConfig(t)
	dir := c.Store.OutDir
	in := filepath.Join(dir, "brokers_export.csv")
	require.NoError(t, os.WriteFile(in,
		[]byte("id,name,phone\n1,A,599000001\n2,B,+995599000001\n3,C,577 000 003\n"), 0o644))
	c.Agents.Discovery = "csv"
	c.Agents.ImportFile = in
	c.Agents.TargetCount = 10
	require.NoError(t, c.Validate())

	var logs bytes.Buffer
	l, err := config.NewLogger(config.LogConfig{Level: "debug", Format: "json"}, &logs)
	require.NoError(t, err)

	d, err := newDeps(context.Background(), c, l)
	require.NoError(t, err)
	defer d.Close()

	col, err := d.build("agents")
	require.NoError(t, err)
	res, err := col.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 3, res.Processed)

	phones, err := storage.ReadPhones(filepath.Join(dir, "agents.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"+995 577 000 003", "+995 599 000 001"}, phones)

	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		if strings.Contains(line, `"collector"`) {
			assert.Equal(t, 1, strings.Count(line, `"collector"`), line)
		}
	}
	assert.Contains(t, logs.String(), `"collector":"Agents"`)
}

func TestRunImport(t *testing.T) {
	c := testConfig(t)
	dir := c.Store.OutDir
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents_checkpoint.csv"),
		[]byte("Phone,Source\n+995599000001,Agents\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents_checkpoint.csv.entities"),
		[]byte("7\n8\n"), 0o644))
	old := filepath.Join(dir, "old.csv")
	require.NoError(t, os.WriteFile(old, []byte("Phone\n577000002\n599000001\n"), 0o644))

	ctx := context.Background()
	repo, err := storage.NewDuckDBRepo("", testLogger())
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.Init(ctx))

	var buf bytes.Buffer
	require.NoError(t, runImport(ctx, repo, c, testLogger(), "agents", []string{old}, &buf))
	assert.Contains(t, buf.String(), "Imported 2 new phones (2 read) and 2 processed entities into agents")

	set, err := repo.Phones(ctx, "agents")
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	e, ok := set.Get("+995577000002")
	require.True(t, ok)
	assert.Equal(t, "Agents", e.Source)

	processed, err := repo.ProcessedEntities(ctx, "agents")
	require.NoError(t, err)
	assert.True(t, processed.Has("7"))
	assert.True(t, processed.Has("8"))

	buf.Reset()
	require.NoError(t, runImport(ctx, repo, c, testLogger(), "agents", []string{old}, &buf))
	assert.Contains(t, buf.String(), "Imported 0 new phones")

	assert.Error(t, runImport(ctx, repo, c, testLogger(), "sellers", nil, &buf))
}
