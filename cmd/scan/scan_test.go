package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

const report = `{"findings": [
  {"source": "zap", "category": "xss", "location": "app/t.html:1", "rawSeverity": "medium", "cvssScore": 6.1},
  {"source": "semgrep", "category": "sql injection", "location": "app/db.py:5", "rawSeverity": "error", "cvssScore": 9.8},
  {"source": "bandit", "location": "app/run.py:3", "rawSeverity": "high", "cvssScore": 7.5}
]}`

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Autofix: config.Autofix{HomeFolder: t.TempDir(), TempFolder: t.TempDir()},
		Cache:   config.Cache{Folder: t.TempDir()},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "findings.json")
	require.NoError(t, os.WriteFile(path, []byte(report), 0o644))
	return path
}

func TestExecute(t *testing.T) {
	cfg := newTestConfig(t)
	path := writeReport(t)

	result, err := Execute(context.Background(), cfg, hclog.NewNullLogger(), []string{path}, RunOptionsScan{MinSeverity: "medium"})
	require.NoError(t, err)

	assert.Equal(t, "findings.json", result.ScanID)
	assert.Equal(t, triage.Medium, result.Threshold)
	require.Len(t, result.Queue.Admitted, 2)
	assert.Equal(t, findings.CategorySQLInjection, result.Queue.Admitted[0].Finding.Category)
	assert.Equal(t, findings.CategoryXSS, result.Queue.Admitted[1].Finding.Category)
	assert.Empty(t, result.Queue.Skipped)
	require.Len(t, result.Malformed, 1)
	assert.Contains(t, result.Malformed[0], "category")
	assert.FileExists(t, result.CachePath)
}

func TestExecuteFromCache(t *testing.T) {
	cfg := newTestConfig(t)
	path := writeReport(t)

	first, err := Execute(context.Background(), cfg, hclog.NewNullLogger(), []string{path}, RunOptionsScan{})
	require.NoError(t, err)
	require.Len(t, first.Queue.Admitted, 1)
	require.NoError(t, os.Remove(path))

	replay, err := Execute(context.Background(), cfg, hclog.NewNullLogger(), []string{path}, RunOptionsScan{FromCache: true, MinSeverity: "low"})
	require.NoError(t, err)
	require.NotNil(t, replay.Cached)
	assert.Len(t, replay.Queue.Admitted, 2)
	assert.Equal(t, first.Malformed, replay.Malformed)
	assert.Equal(t, first.Queue.Admitted[0].Finding.ID, replay.Queue.Admitted[0].Finding.ID)
}

func TestExecuteNoCache(t *testing.T) {
	cfg := newTestConfig(t)

	result, err := Execute(context.Background(), cfg, hclog.NewNullLogger(), []string{writeReport(t)}, RunOptionsScan{NoCache: true})
	require.NoError(t, err)
	assert.Empty(t, result.CachePath)

	_, err = Execute(context.Background(), cfg, hclog.NewNullLogger(), nil, RunOptionsScan{FromCache: true})
	assert.Equal(t, errors.ExitConfig, errors.ExitCodeFor(err))
}

func TestExecuteRejectsUnknownSeverity(t *testing.T) {
	_, err := Execute(context.Background(), newTestConfig(t), hclog.NewNullLogger(), []string{writeReport(t)}, RunOptionsScan{MinSeverity: "severe"})
	assert.Equal(t, errors.ExitConfig, errors.ExitCodeFor(err))
}
