package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/scan-io-git/autofix/internal/changeset"
	"github.com/scan-io-git/autofix/internal/normalizer"
	"github.com/scan-io-git/autofix/internal/orchestrator"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/internal/vcs"
	"github.com/scan-io-git/autofix/pkg/shared"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

// Fixer runs the fix loop of one finding.
type Fixer interface {
	Fix(ctx context.Context, r triage.Ranked) orchestrator.Result
}

// ChangeSet stages accepted fixes. *changeset.Manager implements it.
type ChangeSet interface {
	Begin(ctx context.Context) (vcs.BranchRef, error)
	Accept(ctx context.Context, e changeset.Entry) error
	Abort(ctx context.Context, reason string) error
	Finalize(ctx context.Context, s changeset.Summary) (*changeset.Result, error)
	DryRun() bool
}

// Options bound a run.
type Options struct {
	Triage      triage.Options
	Concurrency int
	// RunTimeout is the wall-clock budget of the fix phase; zero disables it.
	RunTimeout time.Duration
	// FatalErrorThreshold aborts the run after that many errored findings; zero disables it.
	FatalErrorThreshold int
}

// OptionsFromConfig reads the run settings of cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	band, err := triage.ParseBand(cfg.Remediation.SeverityThreshold)
	if err != nil {
		return Options{}, errors.NewConfigError(err)
	}
	opts := Options{
		Triage:              triage.Options{Threshold: band},
		Concurrency:         cfg.Remediation.Concurrency,
		RunTimeout:          cfg.Remediation.RunTimeout,
		FatalErrorThreshold: cfg.Remediation.FatalErrorThreshold,
	}
	if cfg.Remediation.Rule != "" {
		rule, err := triage.CompileRule(cfg.Remediation.Rule)
		if err != nil {
			return Options{}, errors.NewConfigError(err)
		}
		opts.Triage.Rule = rule
	}
	return opts, nil
}

// Controller runs the whole remediation of one run.
type Controller struct {
	rc         *RunContext
	normalizer *normalizer.Normalizer
	fixer      Fixer
	changes    ChangeSet
	opts       Options
}

// New creates a Controller for the run rc.
func New(rc *RunContext, fixer Fixer, changes ChangeSet, opts Options) *Controller {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Controller{
		rc:         rc,
		normalizer: normalizer.New(rc.Logger.Named("normalizer"), rc.Config.Validation.SourceRoot),
		fixer:      fixer,
		changes:    changes,
		opts:       opts,
	}
}

// Run normalizes the reports and remediates the findings they contain.
func (c *Controller) Run(ctx context.Context, inputs []normalizer.Input) (*RunReport, error) {
	return c.Remediate(ctx, c.normalizer.Normalize(inputs...))
}

// Remediate triages already normalized findings and drives every admitted
// one through the fix loop. The report is returned even when the run aborts;
// the error then is the abort cause.
func (c *Controller) Remediate(ctx context.Context, norm normalizer.Result) (*RunReport, error) {
	rc := c.rc
	report := newRunReport(rc, c.opts.Triage.Threshold, c.changes.DryRun())
	defer func() {
		report.FinishedAt = time.Now().UTC()
		rc.Metrics.Finish(report.Duration())
	}()

	for _, m := range norm.Malformed {
		report.Malformed = append(report.Malformed, m.Error())
	}

	queue, err := triage.Triage(norm.Findings, c.opts.Triage)
	if err != nil {
		return report, fmt.Errorf("triage failed: %w", err)
	}
	report.Findings = queue.All()
	for _, r := range queue.Skipped {
		c.record(report, orchestrator.Result{
			FindingID: r.Finding.ID,
			Outcome:   orchestrator.Outcome{Kind: orchestrator.SkippedBySeverity, Reason: r.SkipReason},
		})
		report.Skipped = append(report.Skipped, r.Finding.ID)
	}
	rc.Logger.Info("triage complete",
		"findings", len(norm.Findings), "admitted", len(queue.Admitted), "skipped", len(queue.Skipped),
		"malformed", len(norm.Malformed), "threshold", c.opts.Triage.Threshold)

	if len(queue.Admitted) == 0 {
		rc.Logger.Info("no finding reaches the severity threshold")
		return report, nil
	}

	if _, err := c.changes.Begin(ctx); err != nil {
		rc.Logger.Error("failed to start change set", "error", err)
		for _, r := range queue.Admitted {
			c.record(report, orchestrator.Result{
				FindingID: r.Finding.ID,
				Outcome:   orchestrator.Outcome{Kind: orchestrator.Errored, Reason: err.Error()},
			})
		}
		return report, err
	}

	results, cause := c.fix(ctx, queue.Admitted)
	for _, res := range results {
		c.record(report, res)
	}

	if cause != nil {
		report.Aborted = true
		report.AbortReason = cause.Error()
		rc.Logger.Error("run aborted", "reason", cause)
		if err := c.changes.Abort(ctx, cause.Error()); err != nil {
			rc.Logger.Error("failed to abort change set", "error", err)
			return report, fmt.Errorf("%w (abort failed: %v)", cause, err)
		}
		return report, cause
	}

	summary := changeset.Summary{
		RunID:     rc.ID,
		StartedAt: rc.StartedAt,
		Threshold: c.opts.Triage.Threshold,
		Skipped:   queue.Skipped,
	}
	for _, r := range queue.Admitted {
		if o := report.Outcomes[r.Finding.ID]; o.Kind != orchestrator.Accepted {
			summary.Unfixed = append(summary.Unfixed, changeset.Unfixed{
				Finding: r.Finding, Score: r.Score, Rank: r.Rank, Outcome: o,
			})
		}
	}

	res, err := c.changes.Finalize(ctx, summary)
	if res != nil {
		report.Branch = res.Branch
		report.ReviewRequest = res.ReviewRequest
		report.PRTitle = res.Title
		report.PRDescription = res.Description
		report.Entries = res.Entries
	}
	if err != nil {
		rc.Logger.Error("failed to finalize change set", "error", err)
		return report, err
	}
	return report, nil
}

// fix dispatches the admitted findings in triage order to a bounded pool of
// workers. It returns one result per admitted finding and the cause of an
// abort, if the run was cut short.
func (c *Controller) fix(ctx context.Context, admitted []triage.Ranked) ([]orchestrator.Result, error) {
	rc := c.rc

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if c.opts.RunTimeout > 0 {
		var cancelBudget context.CancelFunc
		runCtx, cancelBudget = context.WithTimeoutCause(runCtx, c.opts.RunTimeout, &errors.RunBudgetExceeded{Budget: c.opts.RunTimeout})
		defer cancelBudget()
	}

	results := make([]orchestrator.Result, len(admitted))
	undispatched := shared.ForEachWithBoundedGoroutines(runCtx, c.opts.Concurrency, admitted, func(ctx context.Context, i int, r triage.Ranked) {
		logger := rc.Logger.With("finding", r.Finding.ShortID(), "rank", r.Rank)
		logger.Debug("fixing finding", "band", r.Score.Band, "cvss", r.Score.CVSSScore)

		res := c.fixer.Fix(ctx, r)
		if attempt, ok := res.Accepted(); ok {
			if err := c.changes.Accept(ctx, changeset.EntryFor(r, attempt)); err != nil {
				res.Outcome = changeset.OutcomeForError(err)
				logger.Warn("accepted fix could not be staged", "outcome", res.Outcome, "error", err)
				rc.Metrics.Commit(commitResult(err))
			} else {
				rc.Metrics.Commit("committed")
			}
		}
		results[i] = res
		logger.Info("finding done", "outcome", res.Outcome, "attempts", len(res.Attempts))

		if res.Outcome.Failed() && res.Outcome.Reason != orchestrator.ReasonCancelled {
			n := rc.RecordFatal()
			if t := c.opts.FatalErrorThreshold; t > 0 && n >= t {
				cancel(&errors.FatalErrorThresholdReached{Count: n, Threshold: t})
			}
		}
	})

	for _, i := range undispatched {
		results[i] = orchestrator.Result{
			FindingID: admitted[i].Finding.ID,
			Outcome:   orchestrator.Outcome{Kind: orchestrator.Errored, Reason: orchestrator.ReasonCancelled},
		}
	}
	if len(undispatched) > 0 {
		rc.Logger.Warn("findings were not dispatched", "count", len(undispatched))
	}

	if runCtx.Err() == nil {
		return results, nil
	}
	return results, context.Cause(runCtx)
}

func (c *Controller) record(report *RunReport, res orchestrator.Result) {
	report.Outcomes[res.FindingID] = res.Outcome
	if len(res.Attempts) > 0 {
		report.Attempts[res.FindingID] = res.Attempts
	}
	retries := 0
	for _, n := range res.ProviderRetries {
		retries += n
	}
	if retries > 0 {
		report.ProviderRetries[res.FindingID] = retries
	}
	c.rc.Metrics.Finding(string(res.Outcome.Kind), len(res.Attempts), retries)
}

func commitResult(err error) string {
	var conflict *errors.ConflictError
	if stderrors.As(err, &conflict) {
		return "conflict"
	}
	return "error"
}
