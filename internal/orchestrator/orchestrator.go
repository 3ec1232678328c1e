package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/provider"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/internal/validation"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

// TransitionFunc observes state changes of a finding.
type TransitionFunc func(findingID string, from, to State)

// Options bound the fix loop.
type Options struct {
	MaxRounds   int
	RetryBudget int
	Backoff     Backoff
	// OnTransition is called synchronously from the goroutine running Fix.
	OnTransition TransitionFunc
}

// OptionsFromConfig reads the fix loop settings of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxRounds:   cfg.Remediation.MaxRounds,
		RetryBudget: cfg.Remediation.RetryBudget(),
		Backoff:     BackoffFromConfig(cfg.Remediation.Backoff),
	}
}

// Orchestrator drives the analyze, implement and validate loop for single findings.
// One Orchestrator can serve many findings concurrently; it holds no per-finding state.
type Orchestrator struct {
	logger      hclog.Logger
	architect   provider.Architect
	implementer provider.Implementer
	validator   validation.Validator
	opts        Options
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator.
func New(logger hclog.Logger, architect provider.Architect, implementer provider.Implementer, validator validation.Validator, opts Options) *Orchestrator {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 1
	}
	if opts.RetryBudget < 0 {
		opts.RetryBudget = 0
	}
	return &Orchestrator{
		logger:      logger,
		architect:   architect,
		implementer: implementer,
		validator:   validator,
		opts:        opts,
		sleep:       sleepContext,
	}
}

// run carries the state of one Fix call.
type run struct {
	o       *Orchestrator
	finding findings.Finding
	logger  hclog.Logger
	state   State
	result  Result
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	r.logger.Trace("state changed", "from", from, "to", to, "round", r.result.Round)
	if r.o.opts.OnTransition != nil {
		r.o.opts.OnTransition(r.finding.ID, from, to)
	}
}

func (r *run) finish(to State, outcome Outcome) Result {
	r.transition(to)
	r.result.Outcome = outcome
	r.logger.Info("finding processed", "outcome", outcome.String(), "attempts", len(r.result.Attempts))
	return r.result
}

func (r *run) fail(ctx context.Context, stage string, err error) Result {
	reason := failureReason(ctx, err)
	r.logger.Warn(stage+" failed", "reason", reason, "error", err)
	return r.finish(StateErrored, Outcome{Kind: Errored, Reason: reason})
}

// failureReason names why a finding errored. A cancelled run wins over the
// error the cancellation caused.
func failureReason(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return ReasonCancelled
	}
	if pe, ok := errors.AsProviderError(err); ok {
		return string(pe.Kind)
	}
	return err.Error()
}

// Fix runs the loop for one admitted finding and returns its terminal outcome.
// At most MaxRounds attempts are recorded. Failed validations advance the
// round and feed the next analysis; provider errors are retried within the
// round.
func (o *Orchestrator) Fix(ctx context.Context, ranked triage.Ranked) Result {
	f := ranked.Finding
	r := &run{
		o:       o,
		finding: f,
		logger:  o.logger.With("finding", f.ShortID(), "band", ranked.Score.Band.String()),
		state:   StatePending,
		result:  Result{FindingID: f.ID, ProviderRetries: map[int]int{}},
	}

	var prior []provider.PriorAttempt
	for round := 1; round <= o.opts.MaxRounds; round++ {
		r.result.Round = round
		if ctx.Err() != nil {
			return r.finish(StateErrored, Outcome{Kind: Errored, Reason: ReasonCancelled})
		}

		r.transition(StateAnalyzing)
		plan, err := withRetry(ctx, r, round, func(ctx context.Context) (provider.Plan, error) {
			return o.architect.Analyze(ctx, f, prior)
		})
		if err != nil {
			return r.fail(ctx, "analysis", err)
		}
		if plan.Abandon {
			r.result.Attempts = append(r.result.Attempts, FixAttempt{
				FindingID: f.ID,
				Round:     round,
				Plan:      plan,
				Outcome:   Outcome{Kind: RejectedByArchitect, Reason: plan.Reason},
			})
			return r.finish(StateRejectedByArchitect, Outcome{Kind: RejectedByArchitect, Reason: plan.Reason})
		}

		r.transition(StateImplementing)
		candidate, err := withRetry(ctx, r, round, func(ctx context.Context) (provider.Candidate, error) {
			return o.implementer.Implement(ctx, f, plan)
		})
		if err != nil {
			return r.fail(ctx, "implementation", err)
		}

		r.transition(StateValidating)
		verdict, err := o.validator.Validate(ctx, f, candidate)
		if err != nil {
			return r.fail(ctx, "validation", err)
		}

		attempt := FixAttempt{
			FindingID: f.ID,
			Round:     round,
			Plan:      plan,
			Patch:     candidate.Patch,
			Test:      candidate.Test,
			Verdict:   &verdict,
		}
		if verdict.Passed && !verdict.Rescan.Vulnerable && !verdict.Rescan.Unverified {
			attempt.Outcome = Outcome{Kind: Accepted}
			r.result.Attempts = append(r.result.Attempts, attempt)
			return r.finish(StateAccepted, Outcome{Kind: Accepted})
		}

		attempt.Outcome = Outcome{Kind: RejectedByValidation, Reason: verdict.Reason}
		r.result.Attempts = append(r.result.Attempts, attempt)
		r.logger.Debug("candidate rejected", "round", round, "reason", verdict.Reason)
		prior = append(prior, provider.PriorAttempt{Round: round, Plan: plan, Feedback: verdict.Feedback()})
	}

	reason := fmt.Sprintf("no valid fix after %d rounds", o.opts.MaxRounds)
	return r.finish(StateExhausted, Outcome{Kind: Exhausted, Reason: reason})
}

// withRetry calls f until it succeeds, fails with something other than a
// ProviderError, or the retry budget of the round is spent.
func withRetry[T any](ctx context.Context, r *run, round int, f func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := f(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		pe, ok := errors.AsProviderError(err)
		if !ok || attempt >= r.o.opts.RetryBudget {
			return zero, err
		}

		r.result.ProviderRetries[round]++
		delay := r.o.opts.Backoff.Delay(attempt)
		r.logger.Warn("provider call failed, retrying", "provider", pe.Provider, "kind", pe.Kind, "retry", attempt+1, "delay", delay)
		if err := r.o.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}
