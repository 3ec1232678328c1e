package run

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/autofix/cmd/scan"
	"github.com/scan-io-git/autofix/cmd/version"
	"github.com/scan-io-git/autofix/internal/changeset"
	internalcmd "github.com/scan-io-git/autofix/internal/cmd"
	"github.com/scan-io-git/autofix/internal/execx"
	"github.com/scan-io-git/autofix/internal/git"
	"github.com/scan-io-git/autofix/internal/notify"
	"github.com/scan-io-git/autofix/internal/orchestrator"
	"github.com/scan-io-git/autofix/internal/pipeline"
	"github.com/scan-io-git/autofix/internal/provider"
	"github.com/scan-io-git/autofix/internal/report"
	"github.com/scan-io-git/autofix/internal/validation"
	"github.com/scan-io-git/autofix/internal/vcs"
	"github.com/scan-io-git/autofix/pkg/shared/artifacts"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
	"github.com/scan-io-git/autofix/pkg/shared/logger"
)

// RunOptionsRun holds the arguments for the run command.
type RunOptionsRun struct {
	scan.RunOptionsScan
	MaxRounds  int
	Reports    []string
	PRTemplate string
}

// Result is the output of the run command.
type Result struct {
	*pipeline.RunReport
	Reports   []string `json:"reports,omitempty"`
	Changelog string   `json:"changelog,omitempty"`
	Artifact  string   `json:"artifact,omitempty"`
}

// Global variables for configuration and command arguments
var (
	AppConfig       *config.Config
	globalOptions   *internalcmd.GlobalOptions
	runOptions      RunOptionsRun
	exampleRunUsage = `  # Try to fix the critical findings of existing reports without touching the repository
  autofix run -p reports/semgrep.sarif -p reports/zap.json

  # Scan, fix high and critical findings and open a pull request
  autofix run --target . --min-severity high --auto-fix

  # Allow five rounds per finding and publish a SARIF report next to the markdown one
  autofix run -p reports --max-rounds 5 --report markdown --report sarif:out/autofix.sarif

  # Keep the run report in S3
  autofix run -p reports --auto-fix -o s3://security-bucket/autofix/`
)

// RunCmd represents the run command.
var RunCmd = &cobra.Command{
	Use:                   "run [--target PATH|URL] [--path/-p REPORT]... [--auto-fix] [--min-severity BAND] [--max-rounds N] [--report FORMAT[:PATH]]... [--output/-o PATH]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleRunUsage,
	Short:                 "Runs the full pipeline: scan, triage, fix, validate and, with --auto-fix, commit and open a review request",
	RunE:                  runRunCommand,
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config, global *internalcmd.GlobalOptions) {
	AppConfig = cfg
	globalOptions = global
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.NewConfigError(fmt.Errorf("unexpected arguments %v", args))
	}
	ctx := cmd.Context()
	logger := logger.NewLogger(AppConfig, "core-run")

	if err := validateRunArgs(&runOptions, globalOptions.Paths); err != nil {
		logger.Error("invalid run arguments", "error", err)
		return errors.NewConfigError(err)
	}
	if err := internalcmd.ApplyOverrides(AppConfig, runOptions.MinSeverity, runOptions.MaxRounds); err != nil {
		logger.Error("invalid run arguments", "error", err)
		return err
	}

	result, err := Execute(ctx, AppConfig, logger, globalOptions, runOptions)
	if result == nil {
		logger.Error("run failed", "error", err)
		return err
	}

	name := fmt.Sprintf("run_%s.json", time.Now().UTC().Format("20060102_150405"))
	where, werr := internalcmd.WriteResult(context.WithoutCancel(ctx), logger, globalOptions.Output, name, result)
	if werr != nil {
		logger.Error("failed to write result", "error", werr)
	}
	return ExitError(runOptions, where, result.RunReport, stderrors.Join(err, werr))
}

// Execute runs the whole pipeline and publishes its outputs. A non-nil
// Result is returned whenever the fix phase started.
func Execute(ctx context.Context, cfg *config.Config, logger hclog.Logger, global *internalcmd.GlobalOptions, opts RunOptionsRun) (*Result, error) {
	reportFolder := report.Folder(cfg.Validation.SourceRoot, cfg.Reports.Folder)
	targets, err := report.ParseTargets(ReportSpecs(opts.Reports, cfg.Reports.Formats), reportFolder, time.Now())
	if err != nil {
		return nil, err
	}
	prTemplate, err := readTemplate(opts.PRTemplate)
	if err != nil {
		return nil, errors.NewConfigError(err)
	}

	scanned, err := scan.Execute(ctx, cfg, logger, global.Paths, opts.RunOptionsScan)
	if err != nil {
		return nil, err
	}

	rc := pipeline.NewRunContext(cfg, logger)
	rc.Logger.Info("run started", "scan_id", scanned.ScanID, "threshold", scanned.Threshold, "auto_fix", global.AutoFix)

	providers, err := provider.Build(ctx, cfg, rc.Logger.Named("provider"))
	if err != nil {
		return nil, errors.NewConfigError(err)
	}
	defer providers.Close()

	host, changes, err := newChangeSet(cfg, rc.Logger, global.AutoFix, prTemplate)
	if err != nil {
		return nil, err
	}

	fixer, err := newFixer(rc, providers, host)
	if err != nil {
		return nil, err
	}

	runReport, runErr := pipeline.New(rc, fixer, changes, scanned.Options).Remediate(ctx, scanned.Normalized)
	if scanned.Cached != nil {
		runReport.Malformed = scanned.Malformed
	}

	result := &Result{RunReport: runReport}
	publish(context.WithoutCancel(ctx), cfg, rc, host, result, targets)
	return result, runErr
}

// newFixer builds the orchestrator. With a host, validation copies of the
// source tree wait for commits on the fix branch.
func newFixer(rc *pipeline.RunContext, providers *provider.Set, host *git.Host) (*orchestrator.Orchestrator, error) {
	runner := execx.OSRunner{}
	rescanner, err := validation.NewRescanner(rc.Config, rc.Logger.Named("rescan"), runner)
	if err != nil {
		return nil, errors.NewConfigError(err)
	}
	gate, err := validation.NewGate(rc.Config, rc.Logger.Named("gate"), runner, rescanner)
	if err != nil {
		return nil, errors.NewConfigError(err)
	}
	if host != nil {
		gate.SetSourceGuard(host)
	}
	orchOpts := orchestrator.OptionsFromConfig(rc.Config)
	orchOpts.OnTransition = rc.TransitionHook()
	return orchestrator.New(rc.Logger.Named("orchestrator"), providers.Architect, providers.Implementer, gate, orchOpts), nil
}

// newChangeSet opens the repository when fixes are to be committed. Without
// autoFix the manager only records entries and no repository is needed.
func newChangeSet(cfg *config.Config, logger hclog.Logger, autoFix bool, tmpl string) (*git.Host, *changeset.Manager, error) {
	opts := changeset.Options{DryRun: !autoFix, Title: cfg.VCS.PRTitle, Template: tmpl}
	if !autoFix {
		return nil, changeset.New(logger.Named("changeset"), nil, opts), nil
	}

	host, err := git.Open(cfg, logger.Named("git"), nil)
	if err != nil {
		return nil, nil, errors.NewConfigError(fmt.Errorf("--auto-fix needs a git repository: %w", err))
	}
	requester, err := vcs.New(cfg, logger.Named("vcs"), host.RemoteURL())
	if err != nil {
		return nil, nil, errors.NewConfigError(err)
	}
	host.SetRequester(requester)
	return host, changeset.New(logger.Named("changeset"), host, opts), nil
}

// publish writes the reports, changelog, artifact, metrics and chat summary
// of a finished run. Failures are logged and never change the run outcome.
func publish(ctx context.Context, cfg *config.Config, rc *pipeline.RunContext, host *git.Host, result *Result, targets []report.Target) {
	logger := rc.Logger
	r := result.RunReport

	repoOpts := RepositoryContext(cfg, host)
	writer := report.NewWriter(logger.Named("report"), report.NewOutput(logger.Named("output")), repoOpts)
	written, err := writer.Write(ctx, r, targets)
	if err != nil {
		logger.Warn("some reports could not be written", "error", err)
	}
	result.Reports = written

	path := ChangelogPath(cfg)
	changes := report.ChangesFromEntries(r.Entries)
	if host != nil && r.Branch != nil {
		if branchChanges, err := host.BranchChanges(*r.Branch); err != nil {
			logger.Warn("failed to diff the fix branch, using recorded entries", "error", err)
		} else {
			changes = branchChanges
		}
	}
	if updated, err := report.UpdateChangelog(path, r, changes); err != nil {
		logger.Warn("failed to update changelog", "path", path, "error", err)
	} else if updated {
		result.Changelog = path
	}

	if artifact, err := artifacts.SaveArtifactJSON(cfg, logger, "run", r.RunID, r); err != nil {
		logger.Warn("failed to save run artifact", "error", err)
	} else {
		result.Artifact = artifact
	}

	if cfg.Metrics.Textfile != "" {
		if err := rc.Metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	if err := notify.New(cfg, logger.Named("notify")).Notify(ctx, NotifySummary(r, repoOpts.Repository)); err != nil {
		logger.Warn("failed to send run summary", "error", err)
	}
}

// RepositoryContext collects what reports need to link findings to the
// hosted repository. Missing pieces are left empty.
func RepositoryContext(cfg *config.Config, host *git.Host) report.Options {
	opts := report.Options{Version: version.CoreVersion}
	md, err := git.CollectRepositoryMetadata(cfg.Validation.SourceRoot)
	if err != nil {
		return opts
	}
	if md.CommitHash != nil {
		opts.Commit = *md.CommitHash
	}
	remoteURL := ""
	if md.RepositoryFullName != nil {
		remoteURL = *md.RepositoryFullName
	}
	if host != nil {
		remoteURL = host.RemoteURL()
	}
	remote, err := vcs.Repository(cfg, remoteURL)
	if err != nil {
		opts.Repository = remoteURL
		return opts
	}
	opts.Repository = remote.FullName()
	if opts.Commit != "" {
		opts.Links = report.NewLinks(remote, opts.Commit, md.Subfolder)
	}
	return opts
}

// ReportSpecs merges the --report flags with the configured formats.
// Markdown and JSON are written when neither names one.
func ReportSpecs(flags, configured []string) []string {
	specs := append(append([]string{}, configured...), flags...)
	if len(specs) == 0 {
		return []string{string(report.FormatMarkdown), string(report.FormatJSON)}
	}
	return specs
}

// ChangelogPath is where the changelog of the source root lives. It sits in
// the reports folder unless that folder is remote.
func ChangelogPath(cfg *config.Config) string {
	folder := report.Folder(cfg.Validation.SourceRoot, cfg.Reports.Folder)
	if folder == "" || report.IsS3(folder) {
		folder = cfg.Validation.SourceRoot
	}
	return report.Folder(folder, cfg.Reports.Changelog)
}

// NotifySummary reduces a run report to the chat summary.
func NotifySummary(r *pipeline.RunReport, repository string) notify.Summary {
	s := notify.Summary{
		RunID:       r.RunID,
		Repository:  repository,
		DryRun:      r.DryRun,
		Aborted:     r.Aborted,
		AbortReason: r.AbortReason,
		Duration:    r.Duration(),
		Outcomes:    make(map[string]int),
		Malformed:   len(r.Malformed),
	}
	for kind, n := range r.Counts() {
		s.Outcomes[string(kind)] = n
	}
	if r.Branch != nil {
		s.Branch = r.Branch.Name
	}
	if r.ReviewRequest != nil {
		s.ReviewURL = r.ReviewRequest.URL
	}
	return s
}

// ExitError maps the run outcome to the error the command returns: the run
// error or an abort exit 1, unfixed admitted findings exit 3.
func ExitError(opts RunOptionsRun, where string, r *pipeline.RunReport, err error) error {
	if err != nil {
		return errors.NewCommandError(opts, where, err, errors.ExitCodeFor(err))
	}
	if r.Aborted {
		return errors.NewCommandError(opts, where, fmt.Errorf("run aborted: %s", r.AbortReason), errors.ExitRuntime)
	}
	if r.Partial() {
		unfixed := len(r.Admitted()) - r.Counts()[orchestrator.Accepted]
		return errors.NewCommandError(opts, where, fmt.Errorf("%d of %d admitted findings were not fixed", unfixed, len(r.Admitted())), errors.ExitPartial)
	}
	return nil
}

// validateRunArgs validates the arguments provided to the run command.
func validateRunArgs(opts *RunOptionsRun, paths []string) error {
	if opts.MaxRounds < 0 {
		return fmt.Errorf("the 'max-rounds' flag must be positive")
	}
	if opts.FromCache && opts.Target == "" && len(paths) == 0 {
		return fmt.Errorf("the 'from-cache' flag needs --target or --path to find the cached scan")
	}
	return nil
}

func readTemplate(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read pull request template: %w", err)
	}
	return string(data), nil
}

// Initialize flags for the run command.
func init() {
	scan.AddFlags(RunCmd, &runOptions.RunOptionsScan)
	RunCmd.Flags().IntVar(&runOptions.MaxRounds, "max-rounds", 0, "Maximum fix rounds per finding. Overrides remediation.max_rounds.")
	RunCmd.Flags().StringArrayVar(&runOptions.Reports, "report", nil, "Report to write as FORMAT[:PATH] (markdown, json, sarif). Can be repeated.")
	RunCmd.Flags().StringVar(&runOptions.PRTemplate, "pr-template", "", "Go template file for the pull request description.")
	RunCmd.Flags().BoolP("help", "h", false, "Show help for the run command.")
}
