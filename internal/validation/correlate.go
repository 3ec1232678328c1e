package validation

import (
	"path/filepath"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/pkg/issuecorrelation"
)

func toMetadata(f findings.Finding, root string) issuecorrelation.IssueMetadata {
	md := issuecorrelation.IssueMetadata{
		IssueID:   f.ID,
		Source:    f.Source,
		Category:  f.Category,
		RuleID:    f.RuleID,
		StartLine: f.Location.StartLine,
		EndLine:   f.Location.EndLine,
	}
	switch {
	case f.Location.Path != "":
		md.Location = filepath.ToSlash(f.Location.Path)
		if root != "" {
			md.SnippetHash = issuecorrelation.ComputeSnippetHash(filepath.Join(root, f.Location.Path), f.Location.StartLine, f.Location.EndLine)
		}
	case f.Location.URL != "":
		md.Location = f.Location.URL
	default:
		md.Location = f.Location.Component
	}
	return md
}

// Correlate returns the rescanned findings that still describe the original one.
// originalRoot is the unpatched tree, workspace the patched copy; both are used
// to fingerprint the code at each location.
func Correlate(original findings.Finding, originalRoot string, rescanned []findings.Finding, workspace string) []findings.Finding {
	known := []issuecorrelation.IssueMetadata{toMetadata(original, originalRoot)}
	byID := make(map[string]findings.Finding, len(rescanned))
	newIssues := make([]issuecorrelation.IssueMetadata, 0, len(rescanned))
	for _, f := range rescanned {
		byID[f.ID] = f
		newIssues = append(newIssues, toMetadata(f, workspace))
	}

	c := issuecorrelation.NewCorrelator(newIssues, known)
	var out []findings.Finding
	for _, m := range c.Matches() {
		for _, n := range m.New {
			out = append(out, byID[n.IssueID])
		}
	}
	return out
}
