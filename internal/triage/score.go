package triage

import (
	"math"
	"strings"

	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"

	"github.com/scan-io-git/autofix/internal/findings"
)

// SeverityScore is the computed severity of a finding. It is never stored on the finding.
type SeverityScore struct {
	CVSSScore float64 `json:"cvss_score"`
	Band      Band    `json:"band"`
}

// rawSeverityScores maps scanner severity names onto representative CVSS scores.
var rawSeverityScores = map[string]float64{
	"critical":      9.0,
	"high":          7.0,
	"medium":        5.0,
	"moderate":      5.0,
	"low":           3.0,
	"info":          0.0,
	"informational": 0.0,
	"none":          0.0,
}

// Score computes the severity of f. A parsable CVSS vector wins over an explicit
// score, which wins over the scanner's raw severity.
func Score(f findings.Finding) SeverityScore {
	score := 0.0
	if s, ok := vectorScore(f.CVSSVector); ok {
		score = s
	} else if f.CVSSScore != nil && findings.IsFiniteScore(*f.CVSSScore) {
		score = *f.CVSSScore
	} else {
		score = rawScore(f.RawSeverity)
	}
	score = math.Max(0, math.Min(10, score))
	return SeverityScore{CVSSScore: score, Band: BandFor(score)}
}

func vectorScore(vector string) (float64, bool) {
	vector = strings.TrimSpace(vector)
	switch {
	case vector == "":
		return 0, false
	case strings.HasPrefix(vector, "CVSS:3.1/"):
		cvss, err := gocvss31.ParseVector(vector)
		if err != nil {
			return 0, false
		}
		return cvss.BaseScore(), true
	case strings.HasPrefix(vector, "CVSS:3.0/"):
		cvss, err := gocvss30.ParseVector(vector)
		if err != nil {
			return 0, false
		}
		return cvss.BaseScore(), true
	default:
		cvss, err := gocvss20.ParseVector(strings.TrimPrefix(strings.Trim(vector, "()"), "CVSS:2.0/"))
		if err != nil {
			return 0, false
		}
		return cvss.BaseScore(), true
	}
}

func rawScore(raw string) float64 {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if s, ok := rawSeverityScores[raw]; ok {
		return s
	}
	if s, ok := findings.ParseScore(raw); ok {
		return s
	}
	return 0
}
