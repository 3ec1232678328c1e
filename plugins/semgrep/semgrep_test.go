package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scan-io-git/autofix/pkg/shared"
)

func TestBuildCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		args shared.ScannerScanRequest
		want []string
	}{
		{
			name: "Full scan",
			args: shared.ScannerScanRequest{TargetPath: "/src", ResultsPath: "/out/semgrep.sarif"},
			want: []string{"scan", "--config", "auto", "--metrics", "off", "--sarif", "--output", "/out/semgrep.sarif", "/src"},
		},
		{
			name: "Rescan narrowed to a category",
			args: shared.ScannerScanRequest{TargetPath: "/ws", ResultsPath: "/ws/r.json", ReportFormat: "json", Category: "sql_injection"},
			want: []string{"scan", "--config", "p/sql-injection", "--metrics", "off", "--json", "--output", "/ws/r.json", "/ws"},
		},
		{
			name: "Explicit rules win over category",
			args: shared.ScannerScanRequest{TargetPath: "/src", ResultsPath: "r.sarif", ConfigPath: "rules.yml", Category: "xss", AdditionalArgs: []string{"--severity", "ERROR"}},
			want: []string{"scan", "--config", "rules.yml", "--metrics", "off", "--severity", "ERROR", "--sarif", "--output", "r.sarif", "/src"},
		},
		{
			name: "Unknown category",
			args: shared.ScannerScanRequest{TargetPath: "/src", ResultsPath: "r.sarif", Category: "general"},
			want: []string{"scan", "--config", "auto", "--metrics", "off", "--sarif", "--output", "r.sarif", "/src"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildCommandArgs(tt.args))
		})
	}
}
