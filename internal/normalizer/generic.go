package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/scan-io-git/autofix/internal/findings"
)

// genericRecord is the minimal ingestion contract any scanner can emit.
type genericRecord struct {
	Source      string          `json:"source"`
	Category    string          `json:"category"`
	RuleID      string          `json:"ruleId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    json.RawMessage `json:"location"`
	RawSeverity string          `json:"rawSeverity"`
	Severity    string          `json:"severity"`
	CVSSVector  string          `json:"cvssVector"`
	CVSSScore   *float64        `json:"cvssScore"`
	References  []string        `json:"references"`
}

type genericAdapter struct{}

func (a *genericAdapter) Format() string { return FormatGeneric }

func (a *genericAdapter) Detect(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return false
	}
	if trimmed[0] == '[' {
		return true
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return false
	}
	_, ok := probe["findings"]
	return ok
}

func (a *genericAdapter) Parse(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	var raw []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Findings []json.RawMessage `json:"findings"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("invalid findings document: %w", err)
		}
		raw = wrapper.Findings
	} else if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("invalid findings array: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var g genericRecord
		if err := json.Unmarshal(item, &g); err != nil {
			records = append(records, Record{Err: fmt.Errorf("invalid finding record: %w", err)})
			continue
		}
		loc, err := parseGenericLocation(g.Location)
		if err != nil {
			records = append(records, Record{Err: err})
			continue
		}
		severity := g.RawSeverity
		if severity == "" {
			severity = g.Severity
		}
		records = append(records, Record{
			Source:      g.Source,
			Category:    g.Category,
			RuleID:      g.RuleID,
			Title:       g.Title,
			Description: g.Description,
			Location:    loc,
			RawSeverity: severity,
			CVSSVector:  g.CVSSVector,
			CVSSScore:   g.CVSSScore,
			References:  g.References,
		})
	}
	return records, nil
}

// parseGenericLocation accepts either an object or a "path:line" / URL string.
func parseGenericLocation(raw json.RawMessage) (findings.Location, error) {
	var loc findings.Location
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return loc, nil
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &loc); err != nil {
			return loc, fmt.Errorf("invalid location: %w", err)
		}
		return loc, nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return loc, fmt.Errorf("invalid location: %w", err)
	}
	return ParseLocation(s), nil
}

// ParseLocation parses "path", "path:line", "path:start-end", or a URL.
func ParseLocation(s string) findings.Location {
	s = strings.TrimSpace(s)
	if s == "" {
		return findings.Location{}
	}
	if strings.Contains(s, "://") {
		return findings.Location{URL: s}
	}

	idx := strings.LastIndex(s, ":")
	if idx <= 0 {
		return findings.Location{Path: s}
	}
	path, lines := s[:idx], s[idx+1:]
	start, end := lines, lines
	if dash := strings.Index(lines, "-"); dash >= 0 {
		start, end = lines[:dash], lines[dash+1:]
	}
	startLine, err := strconv.Atoi(start)
	if err != nil {
		return findings.Location{Path: s}
	}
	endLine, err := strconv.Atoi(end)
	if err != nil {
		endLine = startLine
	}
	return findings.Location{Path: path, StartLine: startLine, EndLine: endLine}
}
