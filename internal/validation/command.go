package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/execx"
	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/normalizer"
)

// reportScan reads a report produced for workspace and returns the findings
// that still correlate with f.
type reportScan struct {
	logger     hclog.Logger
	sourceRoot string
	format     string
}

func (r reportScan) evaluate(workspace, reportPath string, f findings.Finding) (RescanResult, error) {
	data, err := os.ReadFile(reportPath)
	if err != nil {
		return RescanResult{}, fmt.Errorf("failed to read rescan report: %w", err)
	}

	res := normalizer.New(r.logger, workspace).Normalize(normalizer.Input{
		Name:   filepath.Base(reportPath),
		Format: r.format,
		Data:   data,
	})
	if len(res.Findings) == 0 && len(res.Malformed) > 0 && res.Malformed[0].Index < 0 {
		return RescanResult{}, fmt.Errorf("rescan report is unusable: %w", res.Malformed[0])
	}

	var result RescanResult
	for _, m := range Correlate(f, r.sourceRoot, res.Findings, workspace) {
		result.Vulnerable = true
		result.Matches = append(result.Matches, fmt.Sprintf("%s %s at %s", m.Source, m.Category, m.Location))
	}
	return result, nil
}

// CommandRescanner runs an external scanner on the workspace and correlates its
// report with the original finding.
type CommandRescanner struct {
	reportScan
	runner  execx.Runner
	command []string
	report  string
}

// NewCommandRescanner creates a CommandRescanner. command and report may use
// the {workspace} and {report} placeholders.
func NewCommandRescanner(logger hclog.Logger, runner execx.Runner, sourceRoot string, command []string, report, format string) (*CommandRescanner, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("rescan command is empty")
	}
	if report == "" {
		report = "{workspace}/.autofix-rescan.json"
	}
	return &CommandRescanner{
		reportScan: reportScan{logger: logger, sourceRoot: sourceRoot, format: format},
		runner:     runner,
		command:    command,
		report:     report,
	}, nil
}

func (c *CommandRescanner) Rescan(ctx context.Context, workspace string, f findings.Finding) (RescanResult, error) {
	report := execx.Expand([]string{c.report}, map[string]string{"workspace": workspace})[0]
	args := execx.Expand(c.command, map[string]string{"workspace": workspace, "report": report})

	res, err := c.runner.Run(ctx, execx.Command{Name: args[0], Args: args[1:], Dir: workspace})
	if err != nil {
		return RescanResult{}, err
	}
	// Scanners commonly exit non-zero when they report findings.
	if _, statErr := os.Stat(report); statErr != nil {
		return RescanResult{}, fmt.Errorf("scanner exited with %d without writing %s: %s", res.ExitCode, report, tail(res.Output))
	}
	return c.evaluate(workspace, report, f)
}
