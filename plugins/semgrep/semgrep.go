package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/scan-io-git/autofix/pkg/shared"
	"github.com/scan-io-git/autofix/pkg/shared/validation"
)

// Metadata of the plugin
var (
	Version       = "unknown"
	GolangVersion = "unknown"
	BuildTime     = "unknown"
)

// categoryRules maps finding categories to the registry rule packs narrowing a rescan.
var categoryRules = map[string]string{
	"sql_injection":     "p/sql-injection",
	"command_injection": "p/command-injection",
	"xss":               "p/xss",
	"hardcoded_secret":  "p/secrets",
}

// ScannerSemgrep runs semgrep for autofix scans and rescans.
type ScannerSemgrep struct {
	logger hclog.Logger
	binary string
}

func newScannerSemgrep(logger hclog.Logger) *ScannerSemgrep {
	binary := os.Getenv("SEMGREP_BIN")
	if binary == "" {
		binary = "semgrep"
	}
	return &ScannerSemgrep{logger: logger, binary: binary}
}

// rules picks the rule set: an explicit config, the pack of the category, or auto.
func rules(args shared.ScannerScanRequest) string {
	if args.ConfigPath != "" {
		return args.ConfigPath
	}
	if pack, ok := categoryRules[args.Category]; ok {
		return pack
	}
	return "auto"
}

// buildCommandArgs constructs the command-line arguments for semgrep.
func buildCommandArgs(args shared.ScannerScanRequest) []string {
	commandArgs := []string{"scan", "--config", rules(args), "--metrics", "off"}
	commandArgs = append(commandArgs, args.AdditionalArgs...)

	switch strings.ToLower(args.ReportFormat) {
	case "json":
		commandArgs = append(commandArgs, "--json")
	default:
		commandArgs = append(commandArgs, "--sarif")
	}
	return append(commandArgs, "--output", args.ResultsPath, args.TargetPath)
}

// Scan runs semgrep on args.TargetPath and writes the report to args.ResultsPath.
func (g *ScannerSemgrep) Scan(args shared.ScannerScanRequest) (shared.ScannerScanResponse, error) {
	var result shared.ScannerScanResponse
	g.logger.Info("scan is starting", "target", args.TargetPath, "category", args.Category)

	if err := validation.ValidateScanArgs(&args); err != nil {
		g.logger.Error("validation failed for scan operation", "error", err)
		return result, err
	}

	cmd := exec.Command(g.binary, buildCommandArgs(args)...)
	g.logger.Debug("debug info", "cmd", cmd.Args)

	var stdBuffer bytes.Buffer
	mw := io.MultiWriter(g.logger.StandardWriter(&hclog.StandardLoggerOptions{
		InferLevels: true,
	}), &stdBuffer)
	cmd.Stdout = mw
	cmd.Stderr = mw

	// semgrep exits 1 when findings are reported
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			g.logger.Error("semgrep execution error", "error", err)
			return result, fmt.Errorf("semgrep execution error: %w. Output: %s", err, stdBuffer.String())
		}
	}

	result.ResultsPath = args.ResultsPath
	g.logger.Info("scan finished", "target", args.TargetPath, "results", args.ResultsPath)
	return result, nil
}

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Level:      hclog.Trace,
		Output:     os.Stderr,
		JSONFormat: true,
	})

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: shared.HandshakeConfig,
		Plugins: map[string]plugin.Plugin{
			shared.PluginTypeScanner: &shared.ScannerPlugin{Impl: newScannerSemgrep(logger)},
		},
		Logger: logger,
	})
}
