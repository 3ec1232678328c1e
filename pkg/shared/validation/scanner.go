package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scan-io-git/autofix/pkg/shared"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

var reportFormats = map[string]bool{"": true, "sarif": true, "json": true}

// ValidateScanArgs checks the fields of a scan request and creates the folder
// of its results path. Paths in args are replaced by their expanded form.
func ValidateScanArgs(args *shared.ScannerScanRequest) error {
	if args.TargetPath == "" {
		return fmt.Errorf("target path is required")
	}
	if args.ResultsPath == "" {
		return fmt.Errorf("results path is required")
	}
	if !reportFormats[strings.ToLower(args.ReportFormat)] {
		return fmt.Errorf("unsupported report format %q", args.ReportFormat)
	}

	target, err := files.ExpandPath(args.TargetPath)
	if err != nil {
		return fmt.Errorf("failed to expand path '%s': %w", args.TargetPath, err)
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("target path does not exist: %s", target)
	}

	results, err := files.ExpandPath(args.ResultsPath)
	if err != nil {
		return fmt.Errorf("failed to expand path '%s': %w", args.ResultsPath, err)
	}
	if err := files.CreateFolderIfNotExists(filepath.Dir(results)); err != nil {
		return fmt.Errorf("failed to create results folder '%s': %w", filepath.Dir(results), err)
	}

	if args.ConfigPath != "" && !strings.HasPrefix(args.ConfigPath, "p/") && args.ConfigPath != "auto" {
		cfgPath, err := files.ExpandPath(args.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to expand path '%s': %w", args.ConfigPath, err)
		}
		if _, err := os.Stat(cfgPath); err != nil {
			return fmt.Errorf("config path does not exist: %s", cfgPath)
		}
		args.ConfigPath = cfgPath
	}

	args.TargetPath = target
	args.ResultsPath = results
	return nil
}
