package cmd

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Autofix: config.Autofix{TempFolder: t.TempDir()}}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name        string
		minSeverity string
		maxRounds   int
		wantBand    string
		wantRounds  int
		wantErr     bool
	}{
		{name: "no flags keep the config", wantBand: "critical", wantRounds: 3},
		{name: "severity and rounds", minSeverity: "HIGH", maxRounds: 5, wantBand: "high", wantRounds: 5},
		{name: "unknown severity", minSeverity: "urgent", wantErr: true},
		{name: "negative rounds", maxRounds: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			err := ApplyOverrides(cfg, tt.minSeverity, tt.maxRounds)
			if tt.wantErr {
				var cfgErr *errors.ConfigError
				require.True(t, stderrors.As(err, &cfgErr), "want a config error, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBand, cfg.Remediation.SeverityThreshold)
			assert.Equal(t, tt.wantRounds, cfg.Remediation.MaxRounds)
		})
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"https://github.com/acme/app.git": true,
		"git@github.com:acme/app.git":     true,
		"ssh://git@host:7999/acme/app":    true,
		"./app":                           false,
		"/src/app":                        false,
	}
	for target, want := range tests {
		assert.Equal(t, want, IsRemote(target), target)
	}
}

func TestScanID(t *testing.T) {
	assert.Equal(t, "app", ScanID("https://github.com/acme/app.git", nil))
	assert.Equal(t, "zap.json", ScanID("", []string{"/reports/zap.json"}))
	assert.Equal(t, "reports", ScanID("", []string{"a", "b"}))
}

func TestCollectInputsFromPaths(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "zap.json")
	require.NoError(t, os.WriteFile(report, []byte(`{"findings": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	inputs, launches, err := CollectInputs(context.Background(), defaultConfig(t), hclog.NewNullLogger(), []string{dir}, ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, launches.Launches)
	require.Len(t, inputs, 1)
	assert.Equal(t, report, inputs[0].Name)
}

func TestCollectInputsWithoutReports(t *testing.T) {
	_, _, err := CollectInputs(context.Background(), defaultConfig(t), hclog.NewNullLogger(), nil, ScanOptions{})
	var cfgErr *errors.ConfigError
	assert.True(t, stderrors.As(err, &cfgErr))
	assert.Equal(t, errors.ExitConfig, errors.ExitCodeFor(err))
}

func TestPrepareTargetMissingPath(t *testing.T) {
	_, err := PrepareTarget(context.Background(), defaultConfig(t), hclog.NewNullLogger(), filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, errors.ExitConfig, errors.ExitCodeFor(err))
}
