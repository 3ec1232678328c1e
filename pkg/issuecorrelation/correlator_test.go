package issuecorrelation

import "testing"

func TestCorrelator_CategoryAndLineMatch(t *testing.T) {
	known := []IssueMetadata{{Category: "sql_injection", Location: "app/db.py", StartLine: 10, EndLine: 12}}
	new := []IssueMetadata{
		{Category: "sql_injection", Location: "app/db.py", StartLine: 10, EndLine: 10},
		{Category: "sql_injection", Location: "app/db.py", StartLine: 40},
	}

	c := NewCorrelator(new, known)
	c.Process()

	matches := c.Matches()
	if len(matches) != 1 {
		t.Fatalf("expected 1 match got %d", len(matches))
	}
	if len(matches[0].New) != 1 || matches[0].New[0].StartLine != 10 {
		t.Fatalf("expected the line 10 issue to match in the first stage, got %+v", matches[0].New)
	}
	if got := len(c.UnmatchedNew()); got != 1 {
		t.Fatalf("expected 1 unmatched new, got %d", got)
	}
}

func TestCorrelator_SnippetMatchAfterMove(t *testing.T) {
	known := []IssueMetadata{{Category: "xss", Location: "web/t.html", StartLine: 3, SnippetHash: "h1"}}
	new := []IssueMetadata{{Category: "xss", Location: "web/t.html", StartLine: 9, SnippetHash: "h1"}}

	c := NewCorrelator(new, known)
	if len(c.Matches()) != 1 {
		t.Fatalf("expected a snippet match")
	}
}

func TestCorrelator_RuleMatch(t *testing.T) {
	// another scanner may categorize the same rule differently
	known := []IssueMetadata{{Category: "command_injection", RuleID: "B602", Location: "run.py", StartLine: 4}}
	new := []IssueMetadata{{Category: "general", RuleID: "B602", Location: "run.py", StartLine: 7}}

	c := NewCorrelator(new, known)
	if len(c.Matches()) != 1 {
		t.Fatalf("expected match by rule and location")
	}
}

func TestCorrelator_CategoryFallback(t *testing.T) {
	known := []IssueMetadata{{Category: "weak_crypto", Location: "auth.go", StartLine: 4}}
	new := []IssueMetadata{{Category: "weak_crypto", Location: "AUTH.go", StartLine: 20}}

	c := NewCorrelator(new, known)
	if len(c.Matches()) != 1 {
		t.Fatalf("expected match by category and location")
	}
}

func TestCorrelator_Unmatched(t *testing.T) {
	known := []IssueMetadata{{Category: "xss", RuleID: "R3", Location: "x.go", StartLine: 1}}
	new := []IssueMetadata{
		{Category: "xss", RuleID: "R3", Location: "y.go", StartLine: 1},
		{Category: "sql_injection", RuleID: "R4", Location: "x.go", StartLine: 1},
		{Category: "xss", RuleID: "R3", StartLine: 1},
	}

	c := NewCorrelator(new, known)
	c.Process()

	if len(c.UnmatchedNew()) != 3 {
		t.Fatalf("expected 3 unmatched new")
	}
	if len(c.UnmatchedKnown()) != 1 {
		t.Fatalf("expected 1 unmatched known")
	}
	if len(c.Matches()) != 0 {
		t.Fatalf("expected 0 matches")
	}
}

func TestCorrelator_EarlierStageWins(t *testing.T) {
	known := []IssueMetadata{
		{IssueID: "k1", Category: "xss", Location: "a.js", StartLine: 5},
		{IssueID: "k2", Category: "xss", Location: "a.js", StartLine: 50},
	}
	new := []IssueMetadata{{IssueID: "n1", Category: "xss", Location: "a.js", StartLine: 5}}

	c := NewCorrelator(new, known)
	matches := c.Matches()
	if len(matches) != 1 || matches[0].Known.IssueID != "k1" {
		t.Fatalf("expected only k1 to match, got %+v", matches)
	}
	if got := c.UnmatchedKnown(); len(got) != 1 || got[0].IssueID != "k2" {
		t.Fatalf("expected k2 unmatched, got %+v", got)
	}
}
