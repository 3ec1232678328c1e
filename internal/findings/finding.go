package findings

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Location points at the vulnerable code, URL, or dependency.
type Location struct {
	Path      string `json:"path,omitempty"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
	URL       string `json:"url,omitempty"`
	Component string `json:"component,omitempty"`
}

// IsZero reports whether the location carries no usable reference.
func (l Location) IsZero() bool {
	return l.Path == "" && l.URL == "" && l.Component == ""
}

// String renders the location in the form used for fingerprints.
func (l Location) String() string {
	switch {
	case l.Path != "":
		if l.StartLine <= 0 {
			return l.Path
		}
		end := l.EndLine
		if end < l.StartLine {
			end = l.StartLine
		}
		return fmt.Sprintf("%s:%d-%d", l.Path, l.StartLine, end)
	case l.URL != "":
		return l.URL
	default:
		return l.Component
	}
}

// Finding is a single normalized security issue. It is never modified after
// the normalizer has produced it.
type Finding struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Category    string   `json:"category"`
	RuleID      string   `json:"rule_id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Location    Location `json:"location"`
	RawSeverity string   `json:"raw_severity"`
	CVSSVector  string   `json:"cvss_vector,omitempty"`
	CVSSScore   *float64 `json:"cvss_score,omitempty"`
	Discovery   int      `json:"discovery"`
	References  []string `json:"references,omitempty"`
}

// ShortID is the abbreviated fingerprint used in branch and commit text.
func (f Finding) ShortID() string {
	if len(f.ID) > 12 {
		return f.ID[:12]
	}
	return f.ID
}

// Fingerprint is the stable identity of a finding across scans.
func Fingerprint(source string, loc Location, category string) string {
	key := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(source)),
		loc.String(),
		strings.ToLower(strings.TrimSpace(category)),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum[:])
}

// ParseScore parses a numeric severity score. NaN and infinities are rejected.
func ParseScore(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !IsFiniteScore(f) {
		return 0, false
	}
	return f, true
}

// IsFiniteScore reports whether f can be ordered and serialized as a score.
func IsFiniteScore(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
