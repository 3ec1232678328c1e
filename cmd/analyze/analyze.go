package analyze

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/autofix/cmd/scan"
	internalcmd "github.com/scan-io-git/autofix/internal/cmd"
	"github.com/scan-io-git/autofix/internal/provider"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/pkg/shared"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
	"github.com/scan-io-git/autofix/pkg/shared/logger"
)

// PlannedFinding is an admitted finding with the Architect's plan for it.
type PlannedFinding struct {
	triage.Ranked
	Plan  *provider.Plan `json:"plan,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Result is the output of the analyze command.
type Result struct {
	*scan.Result
	Plans []PlannedFinding `json:"plans"`
}

// Global variables for configuration and command arguments
var (
	AppConfig           *config.Config
	globalOptions       *internalcmd.GlobalOptions
	analyzeOptions      scan.RunOptionsScan
	exampleAnalyzeUsage = `  # Plan fixes for the critical findings of a report
  autofix analyze -p reports/semgrep.sarif

  # Plan fixes for high and critical findings of a fresh scan
  autofix analyze --target ./app --min-severity high -o plans.json`
)

// AnalyzeCmd represents the analyze command.
var AnalyzeCmd = &cobra.Command{
	Use:                   "analyze [--target PATH|URL] [--path/-p REPORT]... [--min-severity BAND] [--output/-o PATH]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleAnalyzeUsage,
	Short:                 "Scans and asks the Architect for a fix plan of every admitted finding without changing code",
	RunE:                  runAnalyzeCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config, global *internalcmd.GlobalOptions) {
	AppConfig = cfg
	globalOptions = global
}

func runAnalyzeCommand(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.NewConfigError(fmt.Errorf("unexpected arguments %v", args))
	}
	ctx := cmd.Context()
	logger := logger.NewLogger(AppConfig, "core-analyze")

	scanned, err := scan.Execute(ctx, AppConfig, logger, globalOptions.Paths, analyzeOptions)
	if err != nil {
		logger.Error("scan stage failed", "error", err)
		return err
	}

	providers, err := provider.Build(ctx, AppConfig, logger.Named("provider"))
	if err != nil {
		logger.Error("failed to configure providers", "error", err)
		return errors.NewConfigError(err)
	}
	defer providers.Close()

	result := &Result{Result: scanned}
	result.Plans = Plan(ctx, logger, providers.Architect, scanned.Queue.Admitted, AppConfig.Remediation.Concurrency)

	name := fmt.Sprintf("analyze_%s.json", time.Now().UTC().Format("20060102_150405"))
	where, err := internalcmd.WriteResult(ctx, logger, globalOptions.Output, name, result)
	if err != nil {
		logger.Error("failed to write result", "error", err)
		return err
	}

	failed := 0
	for _, p := range result.Plans {
		if p.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return errors.NewCommandError(analyzeOptions, where, fmt.Errorf("%d of %d findings could not be analyzed", failed, len(result.Plans)), errors.ExitPartial)
	}
	logger.Info("analyze command completed successfully", "planned", len(result.Plans), "output", where)
	return nil
}

// Plan asks architect for the plan of every finding with at most concurrency
// calls in flight. Plans are returned in triage order.
func Plan(ctx context.Context, logger hclog.Logger, architect provider.Architect, admitted []triage.Ranked, concurrency int) []PlannedFinding {
	plans := make([]PlannedFinding, len(admitted))
	var mu sync.Mutex

	skipped := shared.ForEachWithBoundedGoroutines(ctx, concurrency, admitted, func(ctx context.Context, i int, r triage.Ranked) {
		planned := PlannedFinding{Ranked: r}
		plan, err := architect.Analyze(ctx, r.Finding, nil)
		if err != nil {
			logger.Warn("analysis failed", "finding", r.Finding.ID, "error", err)
			planned.Error = err.Error()
		} else {
			planned.Plan = &plan
		}
		mu.Lock()
		plans[i] = planned
		mu.Unlock()
	})
	for _, i := range skipped {
		plans[i] = PlannedFinding{Ranked: admitted[i], Error: context.Cause(ctx).Error()}
	}
	return plans
}

// Initialize flags for the analyze command.
func init() {
	scan.AddFlags(AnalyzeCmd, &analyzeOptions)
	AnalyzeCmd.Flags().BoolP("help", "h", false, "Show help for the analyze command.")
}
