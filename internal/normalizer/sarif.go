package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/autofix/internal/findings"
)

type sarifAdapter struct{}

func (a *sarifAdapter) Format() string { return FormatSARIF }

func (a *sarifAdapter) Detect(data []byte) bool {
	var probe struct {
		Schema  string            `json:"$schema"`
		Version string            `json:"version"`
		Runs    []json.RawMessage `json:"runs"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(probe.Schema), "sarif") || (probe.Version != "" && probe.Runs != nil)
}

func (a *sarifAdapter) Parse(data []byte) ([]Record, error) {
	var report sarif.Report
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&report); err != nil {
		return nil, fmt.Errorf("invalid SARIF report: %w", err)
	}

	var records []Record
	for _, run := range report.Runs {
		if run == nil {
			continue
		}
		source := ""
		rules := map[string]*sarif.ReportingDescriptor{}
		if run.Tool.Driver != nil {
			source = run.Tool.Driver.Name
			for _, rule := range run.Tool.Driver.Rules {
				if rule != nil {
					rules[rule.ID] = rule
				}
			}
		}

		for _, result := range run.Results {
			if result == nil || len(result.Suppressions) > 0 {
				continue
			}
			records = append(records, sarifRecord(source, rules, result))
		}
	}
	return records, nil
}

func sarifRecord(source string, rules map[string]*sarif.ReportingDescriptor, result *sarif.Result) Record {
	rec := Record{Source: source}
	if result.RuleID != nil {
		rec.RuleID = *result.RuleID
	}
	if result.Message.Text != nil {
		rec.Description = *result.Message.Text
	}

	rule := rules[rec.RuleID]
	rec.Category = sarifCategory(rec.RuleID, rule)
	if rule != nil {
		if rule.ShortDescription != nil && rule.ShortDescription.Text != nil {
			rec.Title = *rule.ShortDescription.Text
		}
		if rule.HelpURI != nil {
			rec.References = append(rec.References, *rule.HelpURI)
		}
		if score, ok := propertyFloat(rule.Properties, "security-severity"); ok {
			rec.CVSSScore = &score
		}
		if vector, ok := rule.Properties["cvssV3_vector"].(string); ok {
			rec.CVSSVector = vector
		}
	}
	if score, ok := propertyFloat(result.Properties, "security-severity"); ok {
		rec.CVSSScore = &score
	}

	rec.RawSeverity = sarifSeverity(result, rule)

	if len(result.Locations) > 0 && result.Locations[0] != nil {
		if pl := result.Locations[0].PhysicalLocation; pl != nil {
			if pl.ArtifactLocation != nil && pl.ArtifactLocation.URI != nil {
				rec.Location.Path = *pl.ArtifactLocation.URI
			}
			if pl.Region != nil {
				if pl.Region.StartLine != nil {
					rec.Location.StartLine = *pl.Region.StartLine
				}
				if pl.Region.EndLine != nil {
					rec.Location.EndLine = *pl.Region.EndLine
				}
			}
		}
	}
	return rec
}

// sarifCategory prefers CWE tags of the rule, then its name, then the rule id.
func sarifCategory(ruleID string, rule *sarif.ReportingDescriptor) string {
	if rule != nil {
		if tags, ok := rule.Properties["tags"].([]interface{}); ok {
			for _, t := range tags {
				s, _ := t.(string)
				if c, ok := findings.KnownCategory(s); ok {
					return c
				}
			}
		}
		if rule.Name != nil && *rule.Name != "" {
			return *rule.Name
		}
	}
	return ruleID
}

var sarifLevels = map[string]string{
	"error":   "high",
	"warning": "medium",
	"note":    "low",
	"none":    "info",
}

func sarifSeverity(result *sarif.Result, rule *sarif.ReportingDescriptor) string {
	level := ""
	if result.Level != nil {
		level = *result.Level
	} else if rule != nil && rule.DefaultConfiguration != nil {
		level = rule.DefaultConfiguration.Level
	}
	if level == "" {
		level = "warning"
	}
	if s, ok := sarifLevels[strings.ToLower(level)]; ok {
		return s
	}
	return level
}

func propertyFloat(props map[string]interface{}, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, findings.IsFiniteScore(v)
	case string:
		return findings.ParseScore(v)
	default:
		return 0, false
	}
}
