package issuecorrelation

import "strings"

// IssueMetadata describes the minimal metadata required to correlate issues.
// Fields:
//   - IssueID: identifier of the issue outside of this package, not used by correlation.
//   - Category, RuleID: what kind of issue it is. Categories are canonical, rule ids scanner specific.
//   - Location: file path, URL or component the issue points at.
//   - StartLine, EndLine: line range inside a file.
//   - SnippetHash: optional fingerprint of the code at the issue.
type IssueMetadata struct {
	IssueID     string
	Source      string
	Category    string
	RuleID      string
	Location    string
	StartLine   int
	EndLine     int
	SnippetHash string
}

// Match groups a single known issue with the list of new issues that were
// correlated to it. A new issue may appear in multiple Match.New slices if it
// correlates to multiple known issues.
type Match struct {
	Known IssueMetadata
	New   []IssueMetadata
}

// Correlator accepts slices of new and known issues and computes correlations
// between them. Use NewCorrelator to create an instance and call Process() to
// compute matches. The correlator preserves many-to-many relationships.
type Correlator struct {
	NewIssues   []IssueMetadata
	KnownIssues []IssueMetadata

	// internal indexes populated by Process()
	knownToNew map[int][]int
	newToKnown map[int][]int

	processed bool
}

// NewCorrelator constructs a Correlator with the provided slices of new and
// known issues. The correlator is inert until Process() is called.
func NewCorrelator(newIssues, knownIssues []IssueMetadata) *Correlator {
	return &Correlator{
		NewIssues:   newIssues,
		KnownIssues: knownIssues,
	}
}

// stages in the order they are tried. Once an issue matched in a stage it is
// excluded from the later ones.
const (
	stageCategoryLine = iota + 1
	stageCategorySnippet
	stageRule
	stageCategory
)

var stages = []int{stageCategoryLine, stageCategorySnippet, stageRule, stageCategory}

// Process computes correlations between every known and every new issue:
// 1) category+location+startline
// 2) category+location+snippethash
// 3) ruleid+location
// 4) category+location
// Process is idempotent.
func (c *Correlator) Process() {
	if c.processed {
		return
	}
	c.knownToNew = make(map[int][]int)
	c.newToKnown = make(map[int][]int)

	matchedKnown := make(map[int]bool)
	matchedNew := make(map[int]bool)

	for _, stage := range stages {
		matchedKnownThis := make(map[int]bool)
		matchedNewThis := make(map[int]bool)

		for ki, k := range c.KnownIssues {
			if matchedKnown[ki] {
				continue
			}
			for ni, n := range c.NewIssues {
				if matchedNew[ni] {
					continue
				}
				if matchStage(k, n, stage) {
					c.knownToNew[ki] = append(c.knownToNew[ki], ni)
					c.newToKnown[ni] = append(c.newToKnown[ni], ki)
					matchedKnownThis[ki] = true
					matchedNewThis[ni] = true
				}
			}
		}

		for ki := range matchedKnownThis {
			matchedKnown[ki] = true
		}
		for ni := range matchedNewThis {
			matchedNew[ni] = true
		}
	}

	c.processed = true
}

// matchStage applies the rules of one stage. A location is required for all stages.
func matchStage(a, b IssueMetadata, stage int) bool {
	if a.Location == "" || !strings.EqualFold(a.Location, b.Location) {
		return false
	}
	sameCategory := a.Category != "" && a.Category == b.Category

	switch stage {
	case stageCategoryLine:
		return sameCategory && a.StartLine > 0 && a.StartLine == b.StartLine
	case stageCategorySnippet:
		return sameCategory && a.SnippetHash != "" && a.SnippetHash == b.SnippetHash
	case stageRule:
		return a.RuleID != "" && a.RuleID == b.RuleID
	case stageCategory:
		return sameCategory
	default:
		return false
	}
}

// UnmatchedNew returns the subset of new issues that were not correlated to
// any known issue. Process() is invoked when it has not run yet.
func (c *Correlator) UnmatchedNew() []IssueMetadata {
	if !c.processed {
		c.Process()
	}

	var out []IssueMetadata
	for ni, n := range c.NewIssues {
		if len(c.newToKnown[ni]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// UnmatchedKnown returns the subset of known issues that were not correlated
// to any new issue.
func (c *Correlator) UnmatchedKnown() []IssueMetadata {
	if !c.processed {
		c.Process()
	}

	var out []IssueMetadata
	for ki, k := range c.KnownIssues {
		if len(c.knownToNew[ki]) == 0 {
			out = append(out, k)
		}
	}
	return out
}

// Matches returns one entry per known issue that had at least one correlated
// new issue, in the order of KnownIssues.
func (c *Correlator) Matches() []Match {
	if !c.processed {
		c.Process()
	}

	var out []Match
	for ki := range c.KnownIssues {
		newIdxs := c.knownToNew[ki]
		if len(newIdxs) == 0 {
			continue
		}
		m := Match{Known: c.KnownIssues[ki], New: make([]IssueMetadata, 0, len(newIdxs))}
		for _, ni := range newIdxs {
			if ni >= 0 && ni < len(c.NewIssues) {
				m.New = append(m.New, c.NewIssues[ni])
			}
		}
		out = append(out, m)
	}
	return out
}
