package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON returns the first JSON object found in text. Models often wrap
// the object in a fenced code block or add prose around it.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in response")
}

// ParsePlan decodes an Architect response.
func ParsePlan(text string) (Plan, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return Plan{}, err
	}
	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return Plan{}, fmt.Errorf("invalid plan: %w", err)
	}
	if plan.Abandon {
		if plan.Reason == "" {
			plan.Reason = "abandoned without reason"
		}
		return plan, nil
	}
	if strings.TrimSpace(plan.Summary) == "" && len(plan.Steps) == 0 {
		return Plan{}, fmt.Errorf("plan has neither summary nor steps")
	}
	return plan, nil
}

// ParseCandidate decodes an Implementer response.
func ParseCandidate(text string) (Candidate, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return Candidate{}, err
	}
	var c Candidate
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Candidate{}, fmt.Errorf("invalid candidate: %w", err)
	}
	switch {
	case strings.TrimSpace(c.Patch) == "":
		return Candidate{}, fmt.Errorf("candidate has no patch")
	case strings.TrimSpace(c.Test.Path) == "" || strings.TrimSpace(c.Test.Content) == "":
		return Candidate{}, fmt.Errorf("candidate has no test")
	}
	if !strings.HasSuffix(c.Patch, "\n") {
		c.Patch += "\n"
	}
	return c, nil
}
