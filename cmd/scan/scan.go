package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/autofix/internal/cache"
	internalcmd "github.com/scan-io-git/autofix/internal/cmd"
	"github.com/scan-io-git/autofix/internal/normalizer"
	"github.com/scan-io-git/autofix/internal/pipeline"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/pkg/shared"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
	"github.com/scan-io-git/autofix/pkg/shared/logger"
)

// RunOptionsScan holds the arguments for the scan command.
type RunOptionsScan struct {
	Target      string
	MinSeverity string
	NoCache     bool
	FromCache   bool
	Threads     int
}

// Result is the ranked queue of a scan.
type Result struct {
	ScanID     string                 `json:"scan_id"`
	Threshold  triage.Band            `json:"threshold"`
	Queue      triage.Queue           `json:"queue"`
	Malformed  []string               `json:"malformed,omitempty"`
	Launches   []shared.GenericResult `json:"launches,omitempty"`
	CachePath  string                 `json:"cache_path,omitempty"`
	Cached     *time.Time             `json:"cached_at,omitempty"`
	Normalized normalizer.Result      `json:"-"`
	Options    pipeline.Options       `json:"-"`
}

// Global variables for configuration and command arguments
var (
	AppConfig        *config.Config
	globalOptions    *internalcmd.GlobalOptions
	scanOptions      RunOptionsScan
	exampleScanUsage = `  # Normalize and rank existing scanner reports
  autofix scan -p reports/zap.json -p reports/nuclei.jsonl

  # Run the configured scanners over a local checkout and keep high findings
  autofix scan --target ./app --min-severity high

  # Scan a remote repository and store the queue in S3
  autofix scan --target https://github.com/acme/app.git -o s3://security-bucket/queues/

  # Rank the last cached scan of a target again
  autofix scan --target ./app --from-cache`
)

// ScanCmd represents the scan command.
var ScanCmd = &cobra.Command{
	Use:                   "scan [--target PATH|URL] [--path/-p REPORT]... [--min-severity BAND] [--no-cache] [--output/-o PATH]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleScanUsage,
	Short:                 "Runs scanners, normalizes their reports and prints the ranked finding queue",
	RunE:                  runScanCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config, global *internalcmd.GlobalOptions) {
	AppConfig = cfg
	globalOptions = global
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.NewConfigError(fmt.Errorf("unexpected arguments %v", args))
	}
	logger := logger.NewLogger(AppConfig, "core-scan")

	result, err := Execute(cmd.Context(), AppConfig, logger, globalOptions.Paths, scanOptions)
	if err != nil {
		logger.Error("scan command failed", "error", err)
		return err
	}

	name := fmt.Sprintf("scan_%s.json", time.Now().UTC().Format("20060102_150405"))
	where, err := internalcmd.WriteResult(cmd.Context(), logger, globalOptions.Output, name, result)
	if err != nil {
		logger.Error("failed to write result", "error", err)
		return err
	}
	logger.Info("scan command completed successfully", "admitted", len(result.Queue.Admitted), "skipped", len(result.Queue.Skipped), "output", where)
	return nil
}

// Execute collects the reports, normalizes and triages them. The scan is
// cached unless opts.NoCache is set; opts.FromCache replays the latest one.
func Execute(ctx context.Context, cfg *config.Config, logger hclog.Logger, paths []string, opts RunOptionsScan) (*Result, error) {
	if err := internalcmd.ApplyOverrides(cfg, opts.MinSeverity, 0); err != nil {
		return nil, err
	}
	runOpts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	store := cache.New(cfg, logger.Named("cache"))
	result := &Result{
		ScanID:    internalcmd.ScanID(opts.Target, paths),
		Threshold: runOpts.Triage.Threshold,
		Options:   runOpts,
	}

	if opts.FromCache {
		entry, ok, err := store.Latest(result.ScanID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.NewConfigError(fmt.Errorf("no cached scan of %q", result.ScanID))
		}
		logger.Info("using cached scan", "scan_id", entry.ScanID, "timestamp", entry.Timestamp)
		result.Normalized.Findings = entry.Findings
		result.Malformed = entry.Malformed
		result.Cached = &entry.Timestamp
	} else {
		inputs, launches, err := internalcmd.CollectInputs(ctx, cfg, logger, paths, internalcmd.ScanOptions{Target: opts.Target, Jobs: opts.Threads})
		result.Launches = launches.Launches
		if err != nil {
			return nil, err
		}
		result.Normalized = normalizer.New(logger.Named("normalizer"), cfg.Validation.SourceRoot).Normalize(inputs...)
		for _, m := range result.Normalized.Malformed {
			result.Malformed = append(result.Malformed, m.Error())
		}

		if !opts.NoCache {
			path, err := store.Save(result.ScanID, result.Normalized.Findings, result.Malformed)
			if err != nil {
				logger.Warn("failed to cache scan results", "error", err)
			}
			result.CachePath = path
			if removed, err := store.Prune(); err != nil {
				logger.Warn("failed to prune scan cache", "error", err)
			} else if removed > 0 {
				logger.Debug("expired scans removed from cache", "removed", removed)
			}
		}
	}

	result.Queue, err = triage.Triage(result.Normalized.Findings, runOpts.Triage)
	if err != nil {
		return nil, fmt.Errorf("triage failed: %w", err)
	}
	return result, nil
}

// AddFlags registers the scan flags on cmd.
func AddFlags(cmd *cobra.Command, opts *RunOptionsScan) {
	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "Local path or repository URL the configured scanners run on.")
	cmd.Flags().StringVar(&opts.MinSeverity, "min-severity", "", "Lowest severity band admitted for fixing (low, medium, high, critical).")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "Do not store the scan in the cache.")
	cmd.Flags().BoolVar(&opts.FromCache, "from-cache", false, "Use the latest cached scan of the target instead of scanning.")
	cmd.Flags().IntVarP(&opts.Threads, "threads", "j", 1, "Number of scanners to run concurrently.")
}

// Initialize flags for the scan command.
func init() {
	AddFlags(ScanCmd, &scanOptions)
	ScanCmd.Flags().BoolP("help", "h", false, "Show help for the scan command.")
}
