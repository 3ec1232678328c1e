package template

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Names of the built-in templates.
const (
	PRDescription = "pr_description.md.tmpl"
	Report        = "report.md.tmpl"
	Changelog     = "changelog.md.tmpl"
)

var titleCaser = cases.Title(language.English)

// add adds two integers and returns the result.
func add(a, b int) int {
	return a + b
}

// ordinalDate returns a string with the ordinal number of the day
func ordinalDate(day int) string {
	suffix := "th"
	switch day {
	case 1, 21, 31:
		suffix = "st"
	case 2, 22:
		suffix = "nd"
	case 3, 23:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", day, suffix)
}

// formatDateTime formats t like "2nd January 2024 3:04:05 am UTC".
func formatDateTime(t time.Time) string {
	t = t.UTC()
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%s %s %d %d:%02d:%02d %s UTC", ordinalDate(t.Day()), t.Month(), t.Year(), hour, t.Minute(), t.Second(), t.Format("pm"))
}

// humanize turns identifiers such as "sql_injection" into "Sql Injection".
func humanize(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(s))
	if s == "" {
		return "Unknown"
	}
	return titleCaser.String(s)
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// short keeps the first n runes of s.
func short(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// oneLine collapses whitespace so text fits in a table cell.
func oneLine(s string) string {
	return strings.ReplaceAll(strings.Join(strings.Fields(s), " "), "|", "\\|")
}

// fence returns a code fence longer than any backtick run inside s.
func fence(s string) string {
	longest, run := 0, 0
	for _, c := range s {
		if c == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"add":            add,
		"formatDateTime": formatDateTime,
		"humanize":       humanize,
		"title":          titleCaser.String,
		"truncate":       truncate,
		"short":          short,
		"oneLine":        oneLine,
		"fence":          fence,
		"join":           strings.Join,
	}
}

// NewTemplate parses a built-in template, or templateFile when it is set.
func NewTemplate(name, templateFile string) (*template.Template, error) {
	t := template.New(name).Funcs(funcs())
	if templateFile != "" {
		return t.ParseFiles(templateFile)
	}
	return t.ParseFS(builtin, "templates/"+name)
}

// Render executes the named built-in template with data.
func Render(name string, data interface{}) (string, error) {
	return RenderFile(name, "", data)
}

// RenderFile executes templateFile, or the named built-in template when
// templateFile is empty.
func RenderFile(name, templateFile string, data interface{}) (string, error) {
	t, err := NewTemplate(name, templateFile)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", name, err)
	}
	var buf bytes.Buffer
	exec := name
	if templateFile != "" {
		exec = filepath.Base(templateFile)
	}
	if err := t.ExecuteTemplate(&buf, exec, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return buf.String(), nil
}
