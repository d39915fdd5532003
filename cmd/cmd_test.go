package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/app"
	"github.com/JakeFAU/attraction-crawler/internal/config"
	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/orchestrator"
	"github.com/JakeFAU/attraction-crawler/internal/report"
	"github.com/JakeFAU/attraction-crawler/internal/runs"
)

type fakeServices struct {
	result app.Result
	err    error
	opts   app.Options
	closed bool
}

func (f *fakeServices) Crawl(context.Context) (app.Result, error) { return f.result, f.err }
func (f *fakeServices) Checkpoints() app.CheckpointStore          { return nil }
func (f *fakeServices) Records() app.RecordStore                  { return nil }
func (f *fakeServices) Runs() runs.Repository                     { return nil }
func (f *fakeServices) Close()                                    { f.closed = true }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// The tests below replace package-level factories and therefore do not run
// in parallel.

func TestCrawlCommand(t *testing.T) {
	fake := &fakeServices{result: app.Result{RunID: "run-7", Summary: orchestrator.Summary{Extracted: 3, Skipped: 1}, ExportURI: "gs://b/o.json"}}
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(_ context.Context, _ config.Config, opts app.Options, _ *zap.Logger) (Services, error) {
		fake.opts = opts
		return fake, nil
	}

	cfgPath := writeFile(t, t.TempDir(), "config.yaml", "browser:\n  driver: static\nlogging:\n  development: false\n  level: error\n")
	out, err := execute(t, "--config", cfgPath, "crawl", "--dry-run")
	require.NoError(t, err)
	assert.True(t, fake.opts.DryRun)
	assert.True(t, fake.closed)
	assert.Contains(t, out, "run run-7: extracted=3 skipped=1")
	assert.Contains(t, out, "exported to gs://b/o.json")
}

func TestCrawlCommandInterrupted(t *testing.T) {
	fake := &fakeServices{err: context.Canceled}
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, config.Config, app.Options, *zap.Logger) (Services, error) {
		return fake, nil
	}

	cfgPath := writeFile(t, t.TempDir(), "config.yaml", "logging:\n  level: error\n")
	_, err := execute(t, "--config", cfgPath, "crawl")
	assert.NoError(t, err)
}

func TestCrawlCommandBadConfig(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", "profile: hotels\n")
	_, err := execute(t, "--config", cfgPath, "crawl")
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()
	checkpoint := filepath.Join(dir, "processed.json")
	records := filepath.Join(dir, "records.json")
	writeFile(t, dir, "processed.json", `["Berlin|Museums|Pergamon Museum","Berlin|Museums|Neues Museum"]`)
	body, err := json.Marshal([]crawler.Record{{Name: "Pergamon Museum", City: "Berlin", Category: "Museums"}})
	require.NoError(t, err)
	writeFile(t, dir, "records.json", string(body))

	cfgPath := writeFile(t, dir, "config.yaml", "checkpoint:\n  path: "+checkpoint+"\nrecords:\n  path: "+records+"\nlogging:\n  level: error\n")
	out, err := execute(t, "--config", cfgPath, "status")
	require.NoError(t, err)

	var summary report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.CheckpointKeys)
	assert.Equal(t, 1, summary.Records)
	assert.Equal(t, []report.Group{{Source: "Berlin", Category: "Museums", Records: 1, Committed: 2}}, summary.Groups)

	out, err = execute(t, "--config", cfgPath, "status", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Crawl Status")
	assert.Contains(t, out, "Museums")

	_, err = execute(t, "--config", cfgPath, "status", "--format", "csv")
	assert.Error(t, err)
}
