package pipeline

import (
	"time"

	"github.com/scan-io-git/autofix/internal/changeset"
	"github.com/scan-io-git/autofix/internal/orchestrator"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/internal/vcs"
)

// RunReport is the result of one run. It is not modified after Run returns.
type RunReport struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Threshold  triage.Band `json:"threshold"`
	DryRun     bool        `json:"dry_run"`

	// Findings are in triage order: admitted first, then skipped.
	Findings        []triage.Ranked                      `json:"findings"`
	Outcomes        map[string]orchestrator.Outcome      `json:"outcomes"`
	Attempts        map[string][]orchestrator.FixAttempt `json:"attempts"`
	ProviderRetries map[string]int                       `json:"provider_retries,omitempty"`
	Skipped         []string                             `json:"skipped"`
	Malformed       []string                             `json:"malformed,omitempty"`

	Branch        *vcs.BranchRef        `json:"branch,omitempty"`
	ReviewRequest *vcs.ReviewRequestRef `json:"review_request,omitempty"`
	PRTitle       string                `json:"pr_title,omitempty"`
	PRDescription string                `json:"pr_description,omitempty"`
	Entries       []changeset.Entry     `json:"entries,omitempty"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`
}

func newRunReport(rc *RunContext, threshold triage.Band, dryRun bool) *RunReport {
	return &RunReport{
		RunID:           rc.ID,
		StartedAt:       rc.StartedAt,
		Threshold:       threshold,
		DryRun:          dryRun,
		Outcomes:        make(map[string]orchestrator.Outcome),
		Attempts:        make(map[string][]orchestrator.FixAttempt),
		ProviderRetries: make(map[string]int),
	}
}

// Outcome returns the terminal outcome of a finding.
func (r *RunReport) Outcome(findingID string) (orchestrator.Outcome, bool) {
	o, ok := r.Outcomes[findingID]
	return o, ok
}

// Counts returns the number of findings per outcome kind.
func (r *RunReport) Counts() map[orchestrator.OutcomeKind]int {
	counts := make(map[orchestrator.OutcomeKind]int)
	for _, o := range r.Outcomes {
		counts[o.Kind]++
	}
	return counts
}

// Admitted returns the findings that entered the fix loop, in triage order.
func (r *RunReport) Admitted() []triage.Ranked {
	var out []triage.Ranked
	for _, f := range r.Findings {
		if f.SkipReason == "" {
			out = append(out, f)
		}
	}
	return out
}

// Partial reports whether some admitted finding did not end Accepted.
func (r *RunReport) Partial() bool {
	for _, f := range r.Admitted() {
		if o := r.Outcomes[f.Finding.ID]; o.Kind != orchestrator.Accepted {
			return true
		}
	}
	return false
}

// Duration is the wall-clock time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
