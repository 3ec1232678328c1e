package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/normalizer"
	"github.com/scan-io-git/autofix/pkg/shared"
	"github.com/scan-io-git/autofix/pkg/shared/config"
)

// PluginRescanner delegates the rescan to a scanner plugin that writes a SARIF report.
type PluginRescanner struct {
	reportScan
	cfg    *config.Config
	plugin string
}

// NewPluginRescanner creates a rescanner backed by the named scanner plugin.
func NewPluginRescanner(cfg *config.Config, logger hclog.Logger, sourceRoot, pluginName string) (*PluginRescanner, error) {
	if pluginName == "" {
		return nil, fmt.Errorf("rescan plugin is not set")
	}
	return &PluginRescanner{
		reportScan: reportScan{logger: logger, sourceRoot: sourceRoot, format: normalizer.FormatSARIF},
		cfg:        cfg,
		plugin:     pluginName,
	}, nil
}

func (p *PluginRescanner) Rescan(ctx context.Context, workspace string, f findings.Finding) (RescanResult, error) {
	if err := ctx.Err(); err != nil {
		return RescanResult{}, err
	}

	reportDir, err := os.MkdirTemp(config.GetTempFolder(p.cfg), "rescan-")
	if err != nil {
		return RescanResult{}, fmt.Errorf("failed to create report folder: %w", err)
	}
	defer os.RemoveAll(reportDir)

	req := shared.ScannerScanRequest{
		TargetPath:   workspace,
		ResultsPath:  filepath.Join(reportDir, "results.sarif"),
		ReportFormat: "sarif",
		Category:     f.Category,
	}

	var resultsPath string
	err = shared.WithPlugin(p.cfg, "plugin-rescan", shared.PluginTypeScanner, p.plugin, func(raw interface{}) error {
		scanner, ok := raw.(shared.Scanner)
		if !ok {
			return fmt.Errorf("plugin %q is not a scanner", p.plugin)
		}
		resp, err := scanContext(ctx, scanner, req)
		if err != nil {
			return err
		}
		resultsPath = resp.ResultsPath
		return nil
	})
	if err != nil {
		return RescanResult{}, fmt.Errorf("plugin %q failed: %w", p.plugin, err)
	}
	if resultsPath == "" {
		resultsPath = req.ResultsPath
	}
	return p.evaluate(workspace, resultsPath, f)
}

// scanContext runs the blocking plugin call until it returns or ctx is done.
// Returning early lets WithPlugin kill the plugin process, which unblocks the call.
func scanContext(ctx context.Context, scanner shared.Scanner, req shared.ScannerScanRequest) (shared.ScannerScanResponse, error) {
	type result struct {
		resp shared.ScannerScanResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := scanner.Scan(req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return shared.ScannerScanResponse{}, ctx.Err()
	}
}
