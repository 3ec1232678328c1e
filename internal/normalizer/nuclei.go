package normalizer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/scan-io-git/autofix/internal/findings"
)

type nucleiResult struct {
	TemplateID string `json:"template-id"`
	Info       struct {
		Name           string   `json:"name"`
		Severity       string   `json:"severity"`
		Description    string   `json:"description"`
		Tags           []string `json:"tags"`
		Reference      []string `json:"reference"`
		Classification struct {
			CVSSMetrics string      `json:"cvss-metrics"`
			CVSSScore   json.Number `json:"cvss-score"`
			CWEID       []string    `json:"cwe-id"`
			CVEID       []string    `json:"cve-id"`
		} `json:"classification"`
	} `json:"info"`
	Host      string `json:"host"`
	MatchedAt string `json:"matched-at"`
}

type nucleiAdapter struct{}

func (a *nucleiAdapter) Format() string { return FormatNuclei }

// Detect looks at the first non empty line only since nuclei writes JSON lines.
func (a *nucleiAdapter) Detect(data []byte) bool {
	line := firstLine(data)
	if len(line) == 0 {
		return false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(line, &probe); err != nil {
		return false
	}
	_, ok := probe["template-id"]
	return ok
}

func (a *nucleiAdapter) Parse(data []byte) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var res nucleiResult
		if err := json.Unmarshal(line, &res); err != nil {
			records = append(records, Record{Err: fmt.Errorf("invalid nuclei line: %w", err)})
			continue
		}
		records = append(records, nucleiRecord(res))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read nuclei output: %w", err)
	}
	return records, nil
}

func nucleiRecord(res nucleiResult) Record {
	category := res.Info.Name
	for _, candidate := range append(res.Info.Classification.CWEID, res.Info.Tags...) {
		if c, ok := findings.KnownCategory(candidate); ok {
			category = c
			break
		}
	}
	if category == "" {
		category = res.TemplateID
	}

	url := res.MatchedAt
	if url == "" {
		url = res.Host
	}

	rec := Record{
		Source:      "nuclei",
		Category:    category,
		RuleID:      res.TemplateID,
		Title:       res.Info.Name,
		Description: res.Info.Description,
		Location:    findings.Location{URL: url},
		RawSeverity: res.Info.Severity,
		CVSSVector:  res.Info.Classification.CVSSMetrics,
		References:  res.Info.Reference,
	}
	if s := res.Info.Classification.CVSSScore.String(); s != "" {
		if f, ok := findings.ParseScore(s); ok {
			rec.CVSSScore = &f
		}
	}
	return rec
}

func firstLine(data []byte) []byte {
	for _, line := range bytes.Split(data, []byte("\n")) {
		if l := bytes.TrimSpace(line); len(l) > 0 {
			return l
		}
	}
	return nil
}
