package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/autofix/pkg/shared"
)

func TestValidateScanArgs(t *testing.T) {
	target := t.TempDir()
	rules := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(rules, []byte("rules: []\n"), 0o644))

	tests := []struct {
		name    string
		args    shared.ScannerScanRequest
		wantErr string
	}{
		{
			name: "Valid request",
			args: shared.ScannerScanRequest{TargetPath: target, ResultsPath: filepath.Join(t.TempDir(), "out", "semgrep.sarif"), ReportFormat: "sarif"},
		},
		{
			name: "Registry rule pack",
			args: shared.ScannerScanRequest{TargetPath: target, ResultsPath: filepath.Join(t.TempDir(), "r.json"), ConfigPath: "p/sql-injection"},
		},
		{
			name: "Local rules",
			args: shared.ScannerScanRequest{TargetPath: target, ResultsPath: filepath.Join(t.TempDir(), "r.json"), ConfigPath: rules},
		},
		{
			name:    "Missing target",
			args:    shared.ScannerScanRequest{ResultsPath: "r.json"},
			wantErr: "target path is required",
		},
		{
			name:    "Missing results",
			args:    shared.ScannerScanRequest{TargetPath: target},
			wantErr: "results path is required",
		},
		{
			name:    "Unknown format",
			args:    shared.ScannerScanRequest{TargetPath: target, ResultsPath: "r.xml", ReportFormat: "xml"},
			wantErr: `unsupported report format "xml"`,
		},
		{
			name:    "Target does not exist",
			args:    shared.ScannerScanRequest{TargetPath: filepath.Join(target, "missing"), ResultsPath: "r.json"},
			wantErr: "target path does not exist",
		},
		{
			name:    "Rules do not exist",
			args:    shared.ScannerScanRequest{TargetPath: target, ResultsPath: filepath.Join(t.TempDir(), "r.json"), ConfigPath: filepath.Join(target, "none.yml")},
			wantErr: "config path does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			err := ValidateScanArgs(&args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.DirExists(t, filepath.Dir(args.ResultsPath))
		})
	}
}
