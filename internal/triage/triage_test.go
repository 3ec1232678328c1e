package triage

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/autofix/internal/findings"
)

func score(v float64) *float64 { return &v }

func finding(id string, discovery int, cvss *float64, raw string) findings.Finding {
	return findings.Finding{
		ID:          id,
		Source:      "test",
		Category:    findings.CategorySQLInjection,
		Location:    findings.Location{Path: id + ".go", StartLine: 1},
		RawSeverity: raw,
		CVSSScore:   cvss,
		Discovery:   discovery,
	}
}

func ids(list []Ranked) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.Finding.ID)
	}
	return out
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Band
	}{
		{10, Critical},
		{9.0, Critical},
		{8.99, High},
		{7.0, High},
		{6.9, Medium},
		{4.0, Medium},
		{3.9, Low},
		{0, Low},
	}
	for _, tt := range tests {
		if got := BandFor(tt.score); got != tt.want {
			t.Fatalf("BandFor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestParseBand(t *testing.T) {
	b, err := ParseBand(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, High, b)

	_, err = ParseBand("severe")
	assert.Error(t, err)

	assert.True(t, Low < Medium && Medium < High && High < Critical)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		f    findings.Finding
		want float64
		band Band
	}{
		{
			name: "cvss 3.1 vector wins",
			f: findings.Finding{
				CVSSVector:  "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
				CVSSScore:   score(1.0),
				RawSeverity: "low",
			},
			want: 9.8,
			band: Critical,
		},
		{
			name: "cvss 3.0 vector",
			f:    findings.Finding{CVSSVector: "CVSS:3.0/AV:N/AC:L/PR:N/UI:N/S:U/C:L/I:N/A:N"},
			want: 5.3,
			band: Medium,
		},
		{
			name: "invalid vector falls back to score",
			f:    findings.Finding{CVSSVector: "CVSS:3.1/garbage", CVSSScore: score(7.5)},
			want: 7.5,
			band: High,
		},
		{
			name: "raw severity",
			f:    findings.Finding{RawSeverity: "Critical"},
			want: 9.0,
			band: Critical,
		},
		{
			name: "numeric raw severity",
			f:    findings.Finding{RawSeverity: "6.1"},
			want: 6.1,
			band: Medium,
		},
		{
			name: "unknown raw severity",
			f:    findings.Finding{RawSeverity: "whatever"},
			want: 0,
			band: Low,
		},
		{
			name: "score clamped",
			f:    findings.Finding{CVSSScore: score(12)},
			want: 10,
			band: Critical,
		},
		{
			name: "nan raw severity",
			f:    findings.Finding{RawSeverity: "nan"},
			want: 0,
			band: Low,
		},
		{
			name: "infinite raw severity",
			f:    findings.Finding{RawSeverity: "inf"},
			want: 0,
			band: Low,
		},
		{
			name: "non-finite score falls back to raw severity",
			f:    findings.Finding{CVSSScore: score(math.NaN()), RawSeverity: "high"},
			want: 7.0,
			band: High,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Score(tt.f)
			assert.InDelta(t, tt.want, s.CVSSScore, 0.001)
			assert.Equal(t, tt.band, s.Band)
		})
	}
}

func TestTriageNonFiniteSeverities(t *testing.T) {
	list := []findings.Finding{
		finding("nan", 0, nil, "nan"),
		finding("inf", 1, nil, "+Inf"),
		finding("neg", 2, score(math.Inf(-1)), "medium"),
		finding("high", 3, score(7.5), "high"),
	}

	q, err := Triage(list, Options{Threshold: Low})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "neg", "nan", "inf"}, ids(q.Admitted))

	_, err = json.Marshal(q)
	assert.NoError(t, err)
}

func TestTriageScenarioA(t *testing.T) {
	f1 := finding("F1", 0, score(9.8), "critical")
	f2 := finding("F2", 1, score(2.1), "low")

	q, err := Triage([]findings.Finding{f2, f1}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"F1"}, ids(q.Admitted))
	assert.Equal(t, []string{"F2"}, ids(q.Skipped))
	assert.Equal(t, SkipSeverity, q.Skipped[0].SkipReason)
	assert.Equal(t, 1, q.Admitted[0].Rank)
	assert.Equal(t, 2, q.Skipped[0].Rank)
}

func TestTriageScenarioDTieBreak(t *testing.T) {
	list := []findings.Finding{
		finding("late", 5, score(9.1), "critical"),
		finding("early", 2, score(9.1), "critical"),
		finding("top", 9, score(9.9), "critical"),
		finding("middle", 3, score(9.1), "critical"),
	}
	want := []string{"top", "early", "middle", "late"}

	for i := 0; i < 20; i++ {
		q, err := Triage(list, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, want, ids(q.Admitted))
	}
	assert.Equal(t, "late", list[0].ID, "input must not be reordered")
}

func TestTriageThreshold(t *testing.T) {
	list := []findings.Finding{
		finding("crit", 0, nil, "critical"),
		finding("high", 1, nil, "high"),
		finding("med", 2, nil, "medium"),
		finding("low", 3, nil, "low"),
	}
	tests := []struct {
		threshold Band
		admitted  []string
	}{
		{Critical, []string{"crit"}},
		{High, []string{"crit", "high"}},
		{Medium, []string{"crit", "high", "med"}},
		{Low, []string{"crit", "high", "med", "low"}},
	}
	for _, tt := range tests {
		t.Run(tt.threshold.String(), func(t *testing.T) {
			q, err := Triage(list, Options{Threshold: tt.threshold})
			require.NoError(t, err)
			assert.Equal(t, tt.admitted, ids(q.Admitted))
			assert.Len(t, q.All(), len(list))
		})
	}
}

func TestTriageRule(t *testing.T) {
	secret := finding("secret", 0, score(9.5), "critical")
	secret.Category = findings.CategoryHardcodedSecret
	sqli := finding("sqli", 1, score(9.5), "critical")

	rule, err := CompileRule(`finding.category != "hardcoded_secret" && band == "critical"`)
	require.NoError(t, err)

	q, err := Triage([]findings.Finding{secret, sqli}, Options{Threshold: Critical, Rule: rule})
	require.NoError(t, err)
	assert.Equal(t, []string{"sqli"}, ids(q.Admitted))
	require.Len(t, q.Skipped, 1)
	assert.Equal(t, SkipRule, q.Skipped[0].SkipReason)
}

func TestCompileRuleErrors(t *testing.T) {
	_, err := CompileRule(`score +`)
	assert.Error(t, err)

	_, err = CompileRule(`score * 2.0`)
	assert.Error(t, err, "non bool rule is rejected")
}
