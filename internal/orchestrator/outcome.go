package orchestrator

import (
	"github.com/scan-io-git/autofix/internal/provider"
	"github.com/scan-io-git/autofix/internal/validation"
)

// State is a step of the fix loop of one finding.
type State string

const (
	StatePending             State = "Pending"
	StateAnalyzing           State = "Analyzing"
	StateImplementing        State = "Implementing"
	StateValidating          State = "Validating"
	StateAccepted            State = "Accepted"
	StateExhausted           State = "Exhausted"
	StateErrored             State = "Errored"
	StateRejectedByArchitect State = "RejectedByArchitect"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateExhausted, StateErrored, StateRejectedByArchitect:
		return true
	}
	return false
}

// OutcomeKind is the tag of an Outcome.
type OutcomeKind string

const (
	Accepted             OutcomeKind = "Accepted"
	RejectedByValidation OutcomeKind = "RejectedByValidation"
	RejectedByArchitect  OutcomeKind = "RejectedByArchitect"
	Exhausted            OutcomeKind = "Exhausted"
	Errored              OutcomeKind = "Errored"
	SkippedBySeverity    OutcomeKind = "SkippedBySeverity"
)

// Errored reasons that are not provider error kinds.
const (
	ReasonCancelled = "cancelled"
	ReasonConflict  = "conflict"
)

// Outcome is the result of one attempt or the terminal result of a finding.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return string(o.Kind)
	}
	return string(o.Kind) + "(" + o.Reason + ")"
}

// Failed reports whether the outcome counts against the fatal error threshold.
func (o Outcome) Failed() bool {
	return o.Kind == Errored
}

// FixAttempt records one round of the fix loop.
type FixAttempt struct {
	FindingID string              `json:"finding_id"`
	Round     int                 `json:"round"`
	Plan      provider.Plan       `json:"plan"`
	Patch     string              `json:"patch,omitempty"`
	Test      provider.TestFile   `json:"test"`
	Verdict   *validation.Verdict `json:"verdict,omitempty"`
	Outcome   Outcome             `json:"outcome"`
}

// Result is everything the orchestrator learned about one finding.
type Result struct {
	FindingID string       `json:"finding_id"`
	Outcome   Outcome      `json:"outcome"`
	Attempts  []FixAttempt `json:"attempts"`
	// ProviderRetries counts provider retries per round.
	ProviderRetries map[int]int `json:"provider_retries,omitempty"`
	// Round is the last round that was started.
	Round int `json:"round"`
}

// Accepted returns the accepted attempt, if any.
func (r Result) Accepted() (FixAttempt, bool) {
	if r.Outcome.Kind != Accepted || len(r.Attempts) == 0 {
		return FixAttempt{}, false
	}
	return r.Attempts[len(r.Attempts)-1], true
}
