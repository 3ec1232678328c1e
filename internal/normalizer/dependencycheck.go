package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scan-io-git/autofix/internal/findings"
)

type dependencyCheckReport struct {
	ReportSchema string `json:"reportSchema"`
	Dependencies []struct {
		FileName string `json:"fileName"`
		FilePath string `json:"filePath"`
		Packages []struct {
			ID string `json:"id"`
		} `json:"packages"`
		Vulnerabilities []struct {
			Name        string   `json:"name"`
			Severity    string   `json:"severity"`
			Description string   `json:"description"`
			CWEs        []string `json:"cwes"`
			CVSSv3      *struct {
				BaseScore    float64 `json:"baseScore"`
				VectorString string  `json:"vectorString"`
			} `json:"cvssv3"`
			CVSSv2 *struct {
				Score float64 `json:"score"`
			} `json:"cvssv2"`
			References []struct {
				URL string `json:"url"`
			} `json:"references"`
		} `json:"vulnerabilities"`
	} `json:"dependencies"`
}

type dependencyCheckAdapter struct{}

func (a *dependencyCheckAdapter) Format() string { return FormatDependencyCheck }

func (a *dependencyCheckAdapter) Detect(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, hasDeps := probe["dependencies"]
	_, hasSchema := probe["reportSchema"]
	_, hasScanInfo := probe["scanInfo"]
	return hasDeps && (hasSchema || hasScanInfo)
}

func (a *dependencyCheckAdapter) Parse(data []byte) ([]Record, error) {
	var report dependencyCheckReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("invalid dependency-check report: %w", err)
	}

	var records []Record
	for _, dep := range report.Dependencies {
		component := dep.FileName
		if len(dep.Packages) > 0 && dep.Packages[0].ID != "" {
			component = dep.Packages[0].ID
		}
		for _, v := range dep.Vulnerabilities {
			rec := Record{
				Source:      "dependency-check",
				Category:    findings.CategoryVulnerableDependency,
				RuleID:      v.Name,
				Title:       fmt.Sprintf("%s in %s", v.Name, component),
				Description: v.Description,
				Location:    findings.Location{Component: component},
				RawSeverity: strings.ToLower(v.Severity),
			}
			switch {
			case v.CVSSv3 != nil:
				score := v.CVSSv3.BaseScore
				rec.CVSSScore = &score
				rec.CVSSVector = v.CVSSv3.VectorString
			case v.CVSSv2 != nil:
				score := v.CVSSv2.Score
				rec.CVSSScore = &score
			}
			for _, ref := range v.References {
				if ref.URL != "" {
					rec.References = append(rec.References, ref.URL)
				}
			}
			records = append(records, rec)
		}
	}
	return records, nil
}
