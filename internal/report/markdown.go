package report

import (
	"path"
	"sort"
	"time"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/orchestrator"
	"github.com/scan-io-git/autofix/internal/pipeline"
	"github.com/scan-io-git/autofix/internal/template"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/pkg/shared/vcsurl"
)

// Links builds web links to finding locations at a fixed ref.
type Links struct {
	remote    *vcsurl.Remote
	ref       string
	subfolder string
}

// NewLinks links into remote at ref. subfolder is the source root relative
// to the repository root. It returns nil when remote or ref is missing.
func NewLinks(remote *vcsurl.Remote, ref, subfolder string) *Links {
	if remote == nil || ref == "" {
		return nil
	}
	return &Links{remote: remote, ref: ref, subfolder: subfolder}
}

// For returns the link of loc, or "" when none can be built.
func (l *Links) For(loc findings.Location) string {
	if loc.URL != "" {
		return loc.URL
	}
	if l == nil || loc.Path == "" {
		return ""
	}
	link, err := vcsurl.BuildPermalink(vcsurl.PermalinkParams{
		VCSType:   l.remote.VCSType,
		Host:      l.remote.Host,
		Namespace: l.remote.Namespace,
		Project:   l.remote.Repository,
		Ref:       l.ref,
		File:      path.Join(l.subfolder, loc.Path),
		StartLine: loc.StartLine,
		EndLine:   loc.EndLine,
	})
	if err != nil {
		return ""
	}
	return link
}

type outcomeCount struct {
	Kind  orchestrator.OutcomeKind
	Count int
}

type findingRow struct {
	Rank     int
	Band     triage.Band
	CVSS     float64
	Category string
	Location string
	Link     string
	Source   string
	Outcome  string
	Attempts int
}

type roundLine struct {
	Round   int
	Outcome string
	Plan    string
}

type findingDetail struct {
	Rank        int
	Category    string
	Location    string
	Title       string
	Description string
	Rounds      []roundLine
}

type markdownData struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Repository  string
	Commit      string
	Threshold   triage.Band
	DryRun      bool
	Aborted     bool
	AbortReason string
	Branch      string
	ReviewURL   string
	Counts      []outcomeCount
	Rows        []findingRow
	Details     []findingDetail
	Malformed   []string
}

// outcomeOrder lists outcome kinds from best to worst.
var outcomeOrder = []orchestrator.OutcomeKind{
	orchestrator.Accepted,
	orchestrator.RejectedByArchitect,
	orchestrator.Exhausted,
	orchestrator.Errored,
	orchestrator.SkippedBySeverity,
}

func countOutcomes(r *pipeline.RunReport) []outcomeCount {
	counts := r.Counts()
	var out []outcomeCount
	for _, k := range outcomeOrder {
		if n := counts[k]; n > 0 {
			out = append(out, outcomeCount{Kind: k, Count: n})
			delete(counts, k)
		}
	}
	var rest []orchestrator.OutcomeKind
	for k := range counts {
		rest = append(rest, k)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, k := range rest {
		out = append(out, outcomeCount{Kind: k, Count: counts[k]})
	}
	return out
}

func buildMarkdownData(r *pipeline.RunReport, opts Options) markdownData {
	d := markdownData{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Repository:  opts.Repository,
		Commit:      opts.Commit,
		Threshold:   r.Threshold,
		DryRun:      r.DryRun,
		Aborted:     r.Aborted,
		AbortReason: r.AbortReason,
		Counts:      countOutcomes(r),
		Malformed:   r.Malformed,
	}
	if r.Branch != nil {
		d.Branch = r.Branch.Name
	}
	if r.ReviewRequest != nil {
		d.ReviewURL = r.ReviewRequest.URL
	}

	for _, f := range r.Findings {
		outcome := r.Outcomes[f.Finding.ID]
		attempts := r.Attempts[f.Finding.ID]
		d.Rows = append(d.Rows, findingRow{
			Rank:     f.Rank,
			Band:     f.Score.Band,
			CVSS:     f.Score.CVSSScore,
			Category: f.Finding.Category,
			Location: f.Finding.Location.String(),
			Link:     opts.Links.For(f.Finding.Location),
			Source:   f.Finding.Source,
			Outcome:  outcome.String(),
			Attempts: len(attempts),
		})
		if len(attempts) == 0 {
			continue
		}
		detail := findingDetail{
			Rank:        f.Rank,
			Category:    f.Finding.Category,
			Location:    f.Finding.Location.String(),
			Title:       f.Finding.Title,
			Description: f.Finding.Description,
		}
		for _, a := range attempts {
			detail.Rounds = append(detail.Rounds, roundLine{Round: a.Round, Outcome: a.Outcome.String(), Plan: a.Plan.Summary})
		}
		d.Details = append(d.Details, detail)
	}
	return d
}

func renderMarkdown(r *pipeline.RunReport, opts Options) ([]byte, error) {
	text, err := template.Render(template.Report, buildMarkdownData(r, opts))
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}
