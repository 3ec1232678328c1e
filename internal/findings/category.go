package findings

import "strings"

// Canonical vulnerability categories.
const (
	CategorySQLInjection            = "sql_injection"
	CategoryCommandInjection        = "command_injection"
	CategoryXSS                     = "xss"
	CategoryWeakCrypto              = "weak_crypto"
	CategoryInsecureDeserialization = "insecure_deserialization"
	CategoryPathTraversal           = "path_traversal"
	CategorySSRF                    = "ssrf"
	CategoryHardcodedSecret         = "hardcoded_secret"
	CategoryVulnerableDependency    = "vulnerable_dependency"
	CategoryGeneral                 = "general"
)

// keywords are matched against lowercased scanner categories, rule ids and CWE tags.
var keywords = []struct {
	category string
	needles  []string
}{
	{CategorySQLInjection, []string{"sql", "cwe-89"}},
	{CategoryCommandInjection, []string{"command", "os-command", "cmd-injection", "cwe-78", "code injection", "cwe-94"}},
	{CategoryXSS, []string{"xss", "cross-site scripting", "cross site scripting", "cwe-79"}},
	{CategoryInsecureDeserialization, []string{"deserializ", "cwe-502", "pickle"}},
	{CategoryWeakCrypto, []string{"crypto", "md5", "sha1", "cipher", "cwe-327", "cwe-328"}},
	{CategoryPathTraversal, []string{"path traversal", "path-traversal", "directory traversal", "cwe-22"}},
	{CategorySSRF, []string{"ssrf", "server-side request", "server side request", "cwe-918"}},
	{CategoryHardcodedSecret, []string{"secret", "password", "credential", "api key", "cwe-798"}},
	{CategoryVulnerableDependency, []string{"cve-", "dependency", "vulnerable component"}},
}

// NormalizeCategory maps scanner specific names onto a canonical category.
// Unknown names are kept in a lowercase, underscore separated form.
func NormalizeCategory(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if c, ok := KnownCategory(s); ok {
		return c
	}
	return strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(s)
}

// KnownCategory reports the canonical category matched by raw, if any.
func KnownCategory(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, k := range keywords {
		for _, n := range k.needles {
			if matchNeedle(s, n) {
				return k.category, true
			}
		}
	}
	return "", false
}

// matchNeedle matches CWE ids on a digit boundary so cwe-78 does not match cwe-789.
func matchNeedle(s, needle string) bool {
	if !strings.HasPrefix(needle, "cwe-") {
		return strings.Contains(s, needle)
	}
	for i := strings.Index(s, needle); i >= 0; {
		end := i + len(needle)
		if end == len(s) || s[end] < '0' || s[end] > '9' {
			return true
		}
		next := strings.Index(s[end:], needle)
		if next < 0 {
			return false
		}
		i = end + next
	}
	return false
}
