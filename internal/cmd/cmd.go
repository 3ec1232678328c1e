package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/execx"
	"github.com/scan-io-git/autofix/internal/git"
	"github.com/scan-io-git/autofix/internal/normalizer"
	"github.com/scan-io-git/autofix/internal/report"
	"github.com/scan-io-git/autofix/internal/scanner"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/pkg/shared"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

// GlobalOptions holds the persistent flags of the root command.
type GlobalOptions struct {
	ConfigPath string
	Paths      []string
	AutoFix    bool
	Output     string
}

// ScanOptions selects what the scan stage reads.
type ScanOptions struct {
	Target string
	Jobs   int
}

// ApplyOverrides writes command flag values over the loaded configuration
// and validates the result.
func ApplyOverrides(cfg *config.Config, minSeverity string, maxRounds int) error {
	if minSeverity != "" {
		if _, err := triage.ParseBand(minSeverity); err != nil {
			return errors.NewConfigError(fmt.Errorf("--min-severity: %w", err))
		}
		cfg.Remediation.SeverityThreshold = strings.ToLower(minSeverity)
	}
	if maxRounds < 0 {
		return errors.NewConfigError(fmt.Errorf("--max-rounds must be positive"))
	}
	if maxRounds > 0 {
		cfg.Remediation.MaxRounds = maxRounds
	}
	if err := config.ValidateRemediationConfig(&cfg.Remediation); err != nil {
		return errors.NewConfigError(err)
	}
	return nil
}

// IsRemote reports whether target is a repository URL rather than a path.
func IsRemote(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "ssh://") || strings.HasPrefix(target, "git@")
}

// PrepareTarget returns a local folder for target, cloning it first when it
// is a repository URL.
func PrepareTarget(ctx context.Context, cfg *config.Config, logger hclog.Logger, target string) (string, error) {
	if !IsRemote(target) {
		expanded, err := files.ExpandPath(target)
		if err != nil {
			return "", errors.NewConfigError(fmt.Errorf("--target: %w", err))
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", errors.NewConfigError(fmt.Errorf("--target: %w", err))
		}
		return expanded, nil
	}
	folder, err := git.CloneFolder(cfg, target)
	if err != nil {
		return "", errors.NewConfigError(err)
	}
	return git.Clone(ctx, cfg, logger, target, folder, "")
}

// CollectInputs runs the configured scanners over opts.Target, when set, and
// loads every report file found under paths.
func CollectInputs(ctx context.Context, cfg *config.Config, logger hclog.Logger, paths []string, opts ScanOptions) ([]normalizer.Input, shared.GenericLaunchesResult, error) {
	var launches shared.GenericLaunchesResult
	var inputs []normalizer.Input

	if opts.Target != "" && len(cfg.Scanners) > 0 {
		target, err := PrepareTarget(ctx, cfg, logger, opts.Target)
		if err != nil {
			return nil, launches, err
		}
		s := scanner.New(cfg, logger.Named("scanner"), execx.OSRunner{}, SetJobs(opts.Jobs))
		reqs, err := s.PrepareScanArgs(target, filepath.Join(config.GetTempFolder(cfg), "reports"))
		if err != nil {
			return nil, launches, err
		}
		launches, inputs = s.ScanRepos(ctx, reqs)
	}

	if len(paths) > 0 {
		loaded, err := normalizer.LoadInputs(paths)
		if err != nil {
			return nil, launches, errors.NewConfigError(err)
		}
		inputs = append(inputs, loaded...)
	}

	if len(inputs) == 0 {
		return nil, launches, errors.NewConfigError(fmt.Errorf("no scanner reports: pass --path or configure scanners and --target"))
	}
	logger.Debug("scanner reports collected", "reports", len(inputs))
	return inputs, launches, nil
}

// SetJobs defaults the number of concurrent scanners to one.
func SetJobs(jobs int) int {
	if jobs <= 0 {
		return 1
	}
	return jobs
}

// ScanID names the cache entry of a scan of target, or of the given report paths.
func ScanID(target string, paths []string) string {
	if target != "" {
		return filepath.Base(strings.TrimSuffix(target, ".git"))
	}
	if len(paths) == 1 {
		return filepath.Base(paths[0])
	}
	return "reports"
}

// WriteResult writes v as indented JSON to dest: stdout when empty, a file,
// a folder receiving name, or an s3:// location.
func WriteResult(ctx context.Context, logger hclog.Logger, dest, name string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	resolved, err := report.Resolve(dest, name)
	if err != nil {
		return "", errors.NewConfigError(fmt.Errorf("--output: %w", err))
	}
	return report.NewOutput(logger).Write(ctx, resolved, append(data, '\n'))
}
