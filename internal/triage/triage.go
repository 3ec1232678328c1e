package triage

import (
	"sort"

	"github.com/scan-io-git/autofix/internal/findings"
)

// Skip reasons recorded on findings that are not admitted.
const (
	SkipSeverity = "severity"
	SkipRule     = "rule"
)

// Ranked is a finding with its computed severity and its position in triage order.
type Ranked struct {
	Finding    findings.Finding `json:"finding"`
	Score      SeverityScore    `json:"score"`
	Rank       int              `json:"rank"`
	SkipReason string           `json:"skip_reason,omitempty"`
}

// Queue is the outcome of triage. Admitted findings are worked on in order;
// Skipped ones are reported as skipped by severity.
type Queue struct {
	Admitted []Ranked `json:"admitted"`
	Skipped  []Ranked `json:"skipped"`
}

// Options controls admission.
type Options struct {
	Threshold Band
	Rule      *Rule
}

// DefaultOptions admits only critical findings.
func DefaultOptions() Options {
	return Options{Threshold: Critical}
}

// Order returns the findings in triage order: descending score, ties broken by
// earlier discovery. The input slice is not modified.
func Order(list []findings.Finding) []Ranked {
	ranked := make([]Ranked, len(list))
	for i, f := range list {
		ranked[i] = Ranked{Finding: f, Score: Score(f)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score.CVSSScore != b.Score.CVSSScore {
			return a.Score.CVSSScore > b.Score.CVSSScore
		}
		return a.Finding.Discovery < b.Finding.Discovery
	})
	return ranked
}

// Triage splits findings into admitted and skipped sets. It has no side effects
// and yields the same queue for the same input.
func Triage(list []findings.Finding, opts Options) (Queue, error) {
	var q Queue
	for _, r := range Order(list) {
		if r.Score.Band < opts.Threshold {
			r.SkipReason = SkipSeverity
			q.Skipped = append(q.Skipped, r)
			continue
		}
		if opts.Rule != nil {
			admit, err := opts.Rule.Admit(r.Finding, r.Score)
			if err != nil {
				return Queue{}, err
			}
			if !admit {
				r.SkipReason = SkipRule
				q.Skipped = append(q.Skipped, r)
				continue
			}
		}
		q.Admitted = append(q.Admitted, r)
	}

	rank := 1
	for i := range q.Admitted {
		q.Admitted[i].Rank = rank
		rank++
	}
	for i := range q.Skipped {
		q.Skipped[i].Rank = rank
		rank++
	}
	return q, nil
}

// All returns admitted then skipped findings, which is the order used in reports.
func (q Queue) All() []Ranked {
	all := make([]Ranked, 0, len(q.Admitted)+len(q.Skipped))
	all = append(all, q.Admitted...)
	return append(all, q.Skipped...)
}
