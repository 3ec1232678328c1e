package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/scan-io-git/autofix/internal/changeset"
	"github.com/scan-io-git/autofix/internal/git"
	"github.com/scan-io-git/autofix/internal/patch"
	"github.com/scan-io-git/autofix/internal/pipeline"
	"github.com/scan-io-git/autofix/internal/template"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

const changelogHeader = "# Changelog\n"

type changelogData struct {
	Date      string
	RunID     string
	Branch    string
	ReviewURL string
	Entries   []changeset.Entry
	Files     []git.FileChange
}

// ChangesFromEntries derives per-file statistics from the accepted patches.
// It serves runs without a branch to diff against.
func ChangesFromEntries(entries []changeset.Entry) []git.FileChange {
	byPath := make(map[string]*git.FileChange)
	get := func(p string) *git.FileChange {
		if c, ok := byPath[p]; ok {
			return c
		}
		c := &git.FileChange{Path: p}
		byPath[p] = c
		return c
	}

	for _, e := range entries {
		stats, err := patch.StatFiles(e.Patch)
		if err != nil {
			continue
		}
		for _, fs := range stats {
			c := get(fs.Path)
			c.Added += fs.Added
			c.Removed += fs.Deleted
			c.Changed += fs.Changed
			c.Created = c.Created || fs.Created
			c.Deleted = fs.Removed
		}
		if e.Test.Path != "" {
			c := get(e.Test.Path)
			c.Created = true
			c.Added += strings.Count(e.Test.Content, "\n")
		}
	}

	out := make([]git.FileChange, 0, len(byPath))
	for _, c := range byPath {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// RenderChangelogEntry renders the changelog section of a run.
func RenderChangelogEntry(r *pipeline.RunReport, changes []git.FileChange) (string, error) {
	d := changelogData{
		Date:    r.FinishedAt.UTC().Format("2006-01-02"),
		RunID:   r.RunID,
		Entries: r.Entries,
		Files:   changes,
	}
	if r.FinishedAt.IsZero() {
		d.Date = time.Now().UTC().Format("2006-01-02")
	}
	if r.Branch != nil {
		d.Branch = r.Branch.Name
	}
	if r.ReviewRequest != nil {
		d.ReviewURL = r.ReviewRequest.URL
	}
	return template.Render(template.Changelog, d)
}

// UpdateChangelog puts the entry of the run at the top of the changelog at
// path, below its title. Runs without accepted fixes leave it untouched.
func UpdateChangelog(path string, r *pipeline.RunReport, changes []git.FileChange) (bool, error) {
	if len(r.Entries) == 0 || r.Aborted {
		return false, nil
	}
	entry, err := RenderChangelogEntry(r, changes)
	if err != nil {
		return false, err
	}

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read changelog %q: %w", path, err)
	}
	body := strings.TrimPrefix(string(existing), changelogHeader)
	body = strings.TrimLeft(body, "\n")

	var b strings.Builder
	b.WriteString(changelogHeader)
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(entry, "\n"))
	b.WriteString("\n")
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}
	if err := files.WriteFile(path, []byte(b.String())); err != nil {
		return false, err
	}
	return true, nil
}
