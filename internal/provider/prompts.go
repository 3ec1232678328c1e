package provider

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/scan-io-git/autofix/internal/findings"
)

// MaxInputLength caps every finding derived value placed in a prompt.
const MaxInputLength = 8000

var inputReplacer = strings.NewReplacer(`"`, `\"`, `$`, `\$`, "`", "\\`")

// Sanitize escapes quoting characters and truncates s to MaxInputLength.
func Sanitize(s string) string {
	out := inputReplacer.Replace(s)
	if len(out) > MaxInputLength {
		out = out[:MaxInputLength] + "..."
	}
	return out
}

var categoryGuidance = map[string]string{
	findings.CategorySQLInjection:            "Review and fix the SQL injection. Ensure all database queries are properly parameterized.",
	findings.CategoryXSS:                     "Fix the cross-site scripting issue. Ensure all user input is properly escaped before output.",
	findings.CategoryCommandInjection:        "Fix the command injection. Validate and sanitize all inputs used in system commands and avoid shell interpolation.",
	findings.CategoryWeakCrypto:              "Replace the weak cryptographic primitive with a current algorithm from the standard library of the language in use.",
	findings.CategoryInsecureDeserialization: "Stop deserializing untrusted data with unsafe loaders. Use a safe format or an allow list of types.",
}

const generalGuidance = "Review this code for security issues and propose fixes following security best practices."

// Guidance returns the fix guidance for a category.
func Guidance(category string) string {
	if g, ok := categoryGuidance[category]; ok {
		return g
	}
	return generalGuidance
}

const architectSystem = `You are a senior application security engineer. You plan minimal, safe fixes for
reported vulnerabilities. Answer with a single JSON object and nothing else.`

const implementerSystem = `You are a careful software engineer. You implement security fixes as unified diffs
against the repository root and write one focused regression test. Answer with a single JSON object and nothing else.`

var architectTemplate = template.Must(template.New("architect").Parse(`Plan a fix for the following vulnerability.

Finding: {{.ID}}
Category: {{.Category}}
Scanner: {{.Source}}{{if .RuleID}} (rule {{.RuleID}}){{end}}
Location: {{.Location}}
Severity: {{.Severity}}
{{- if .Title}}
Title: "{{.Title}}"{{end}}
{{- if .Description}}
Description: "{{.Description}}"{{end}}

Guidance: {{.Guidance}}
{{range .Prior}}
Round {{.Round}} was rejected.
Previous plan: "{{.Summary}}"
Feedback: "{{.Feedback}}"
{{end}}
Respond with JSON:
{"summary": "...", "steps": ["..."], "files": ["..."], "abandon": false, "reason": ""}
Set "abandon" to true with a "reason" when the finding is a false positive or cannot be fixed safely.
`))

var implementerTemplate = template.Must(template.New("implementer").Parse(`Implement the following plan.

Finding: {{.ID}}
Category: {{.Category}}
Location: {{.Location}}

Plan: "{{.Summary}}"
{{range $i, $s := .Steps}}{{$i}}. "{{$s}}"
{{end}}{{if .Files}}Files: {{range .Files}}"{{.}}" {{end}}
{{end}}
Respond with JSON:
{"patch": "<unified diff with a/ and b/ prefixes>", "test": {"path": "<repository relative path>", "content": "<test source>"}}
The test must fail on the vulnerable code and pass on the fixed code.
`))

type priorView struct {
	Round    int
	Summary  string
	Feedback string
}

// RenderArchitectPrompt renders the analysis prompt. Every finding derived value is sanitized.
func RenderArchitectPrompt(f findings.Finding, prior []PriorAttempt) (string, error) {
	data := struct {
		ID, Category, Source, RuleID, Location, Severity, Title, Description, Guidance string
		Prior                                                                          []priorView
	}{
		ID:          f.ShortID(),
		Category:    Sanitize(f.Category),
		Source:      Sanitize(f.Source),
		RuleID:      Sanitize(f.RuleID),
		Location:    Sanitize(f.Location.String()),
		Severity:    Sanitize(f.RawSeverity),
		Title:       Sanitize(f.Title),
		Description: Sanitize(f.Description),
		Guidance:    Guidance(f.Category),
	}
	for _, p := range prior {
		data.Prior = append(data.Prior, priorView{
			Round:    p.Round,
			Summary:  Sanitize(p.Plan.Summary),
			Feedback: Sanitize(p.Feedback),
		})
	}
	return render(architectTemplate, data)
}

// RenderImplementerPrompt renders the implementation prompt for plan.
func RenderImplementerPrompt(f findings.Finding, plan Plan) (string, error) {
	data := struct {
		ID, Category, Location, Summary string
		Steps, Files                    []string
	}{
		ID:       f.ShortID(),
		Category: Sanitize(f.Category),
		Location: Sanitize(f.Location.String()),
		Summary:  Sanitize(plan.Summary),
	}
	for _, s := range plan.Steps {
		data.Steps = append(data.Steps, Sanitize(s))
	}
	for _, file := range plan.Files {
		data.Files = append(data.Files, Sanitize(file))
	}
	return render(implementerTemplate, data)
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
