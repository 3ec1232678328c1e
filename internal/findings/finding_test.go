package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	loc := Location{Path: "app/db.go", StartLine: 10, EndLine: 12}

	a := Fingerprint("semgrep", loc, "sql_injection")
	b := Fingerprint("Semgrep ", loc, "SQL_Injection")
	assert.Equal(t, a, b, "source and category are case and space insensitive")
	assert.Len(t, a, 64)

	moved := Fingerprint("semgrep", Location{Path: "app/db.go", StartLine: 11, EndLine: 12}, "sql_injection")
	assert.NotEqual(t, a, moved)
}

func TestLocationString(t *testing.T) {
	tests := []struct {
		loc  Location
		want string
	}{
		{Location{Path: "a.go", StartLine: 3}, "a.go:3-3"},
		{Location{Path: "a.go", StartLine: 3, EndLine: 7}, "a.go:3-7"},
		{Location{Path: "a.go"}, "a.go"},
		{Location{URL: "https://app.local/login"}, "https://app.local/login"},
		{Location{Component: "pkg:maven/log4j/log4j-core@2.14.1"}, "pkg:maven/log4j/log4j-core@2.14.1"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.String())
		})
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := map[string]string{
		"SQL Injection":                    CategorySQLInjection,
		"CWE-89":                           CategorySQLInjection,
		"Cross Site Scripting (Reflected)": CategoryXSS,
		"os-command-injection":             CategoryCommandInjection,
		"Insecure Deserialization":         CategoryInsecureDeserialization,
		"Use of weak hash MD5":             CategoryWeakCrypto,
		"CVE-2021-44228":                   CategoryVulnerableDependency,
		"Open Redirect":                    "open_redirect",
		"":                                 "",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, NormalizeCategory(in))
		})
	}
}

func TestShortID(t *testing.T) {
	f := Finding{ID: Fingerprint("zap", Location{URL: "https://x"}, "xss")}
	assert.Len(t, f.ShortID(), 12)
	assert.Equal(t, "abc", Finding{ID: "abc"}.ShortID())
}

func TestKnownCategoryCWEBoundary(t *testing.T) {
	c, ok := KnownCategory("CWE-78")
	assert.True(t, ok)
	assert.Equal(t, CategoryCommandInjection, c)

	_, ok = KnownCategory("CWE-789")
	assert.False(t, ok, "CWE-789 must not match CWE-78")
}
