package report

import (
	"bytes"
	"fmt"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/orchestrator"
	"github.com/scan-io-git/autofix/internal/pipeline"
	"github.com/scan-io-git/autofix/internal/triage"
)

const informationURI = "https://github.com/scan-io-git/autofix"

func sarifLevel(b triage.Band) string {
	switch b {
	case triage.Critical, triage.High:
		return "error"
	case triage.Medium:
		return "warning"
	default:
		return "note"
	}
}

func ruleID(f findings.Finding) string {
	if f.RuleID != "" {
		return f.RuleID
	}
	return "autofix/" + f.Category
}

func sarifLocation(loc findings.Location) *sarif.Location {
	if loc.Path == "" {
		uri := loc.URL
		if uri == "" {
			uri = loc.Component
		}
		return sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().WithArtifactLocation(sarif.NewArtifactLocation().WithUri(uri)),
		)
	}
	physical := sarif.NewPhysicalLocation().WithArtifactLocation(sarif.NewArtifactLocation().WithUri(loc.Path))
	if loc.StartLine > 0 {
		region := sarif.NewRegion().WithStartLine(loc.StartLine)
		if loc.EndLine >= loc.StartLine {
			region.WithEndLine(loc.EndLine)
		}
		physical.WithRegion(region)
	}
	return sarif.NewLocation().WithPhysicalLocation(physical)
}

// renderSARIF reports every finding of the run as a result whose properties
// carry the remediation outcome.
func renderSARIF(r *pipeline.RunReport, opts Options) ([]byte, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	driver := opts.ToolName
	run := sarif.NewRunWithInformationURI(driver, informationURI)
	if opts.Version != "" {
		run.Tool.Driver.Version = &opts.Version
	}

	commits := make(map[string]string)
	for _, e := range r.Entries {
		if e.Commit != nil {
			commits[e.Finding.ID] = e.Commit.Hash
		}
	}

	for _, ranked := range r.Findings {
		f := ranked.Finding
		outcome := r.Outcomes[f.ID]

		rule := run.AddRule(ruleID(f)).
			WithDescription(f.Category).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: sarifLevel(ranked.Score.Band)})

		text := f.Title
		if text == "" {
			text = f.Description
		}
		if text == "" {
			text = f.Category
		}
		result := sarif.NewRuleResult(rule.ID).
			WithMessage(sarif.NewTextMessage(text)).
			WithLevel(sarifLevel(ranked.Score.Band)).
			WithLocations([]*sarif.Location{sarifLocation(f.Location)})

		props := map[string]interface{}{
			"finding_id": f.ID,
			"source":     f.Source,
			"rank":       ranked.Rank,
			"band":       ranked.Score.Band.String(),
			"cvss":       ranked.Score.CVSSScore,
			"outcome":    outcome.String(),
			"attempts":   len(r.Attempts[f.ID]),
		}
		if outcome.Kind == orchestrator.Accepted {
			if hash, ok := commits[f.ID]; ok {
				props["fix_commit"] = hash
			}
		}
		if f.CVSSVector != "" {
			props["cvss_vector"] = f.CVSSVector
		}
		result.Properties = props
		run.AddResult(result)
	}
	report.AddRun(run)

	var buf bytes.Buffer
	if err := report.PrettyWrite(&buf); err != nil {
		return nil, fmt.Errorf("failed to write SARIF report: %w", err)
	}
	return buf.Bytes(), nil
}
