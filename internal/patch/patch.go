package patch

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/scan-io-git/autofix/pkg/shared/files"
)

const devNull = "/dev/null"

// ApplyError reports a file diff that does not match the tree it is applied to.
type ApplyError struct {
	Path   string
	Hunk   int
	Reason string
}

func (e *ApplyError) Error() string {
	if e.Hunk > 0 {
		return fmt.Sprintf("%s: hunk #%d: %s", e.Path, e.Hunk, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Parse parses a unified multi file diff.
func Parse(patch string) ([]*diff.FileDiff, error) {
	if strings.TrimSpace(patch) == "" {
		return nil, fmt.Errorf("empty patch")
	}
	parsed, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("patch contains no file changes")
	}
	return parsed, nil
}

// cleanName strips the a/ and b/ prefixes git puts in front of paths.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == devNull {
		return devNull
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

type change struct {
	path    string
	content []byte
	remove  bool
	mode    os.FileMode
}

// Apply applies patch to the tree rooted at root and returns the repository
// relative paths it touched. Nothing is written unless every file diff applies.
// When a write fails the paths written so far, including the failed one, are
// returned with the error.
func Apply(root, patch string) ([]string, error) {
	parsed, err := Parse(patch)
	if err != nil {
		return nil, err
	}

	var changes []change
	for _, fd := range parsed {
		cs, err := applyFile(root, fd)
		if err != nil {
			return nil, err
		}
		changes = append(changes, cs...)
	}

	touched := make([]string, 0, len(changes))
	for _, c := range changes {
		full, err := files.EnsureWithinRoot(root, c.path)
		if err != nil {
			sort.Strings(touched)
			return touched, err
		}
		touched = append(touched, c.path)
		if c.remove {
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				sort.Strings(touched)
				return touched, fmt.Errorf("failed to remove %q: %w", c.path, err)
			}
			continue
		}
		if err := files.WriteFile(full, c.content); err != nil {
			sort.Strings(touched)
			return touched, err
		}
		if c.mode != 0 {
			_ = os.Chmod(full, c.mode)
		}
	}
	sort.Strings(touched)
	return touched, nil
}

func applyFile(root string, fd *diff.FileDiff) ([]change, error) {
	orig, newName := cleanName(fd.OrigName), cleanName(fd.NewName)
	if orig == "" && newName == "" {
		return nil, &ApplyError{Path: "?", Reason: "file diff without names"}
	}
	if newName == "" {
		newName = orig
	}
	if orig == "" {
		orig = newName
	}

	var lines []string
	trailingNewline := true
	var mode os.FileMode
	if orig != devNull {
		full, err := files.EnsureWithinRoot(root, orig)
		if err != nil {
			return nil, &ApplyError{Path: orig, Reason: err.Error()}
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, &ApplyError{Path: orig, Reason: "file does not exist in the tree"}
		}
		if info, err := os.Stat(full); err == nil {
			mode = info.Mode().Perm()
		}
		lines, trailingNewline = splitLines(data)
	} else if newName != devNull {
		if full, err := files.EnsureWithinRoot(root, newName); err != nil {
			return nil, &ApplyError{Path: newName, Reason: err.Error()}
		} else if _, err := os.Stat(full); err == nil {
			return nil, &ApplyError{Path: newName, Reason: "file to be created already exists"}
		}
	}

	if newName == devNull {
		return []change{{path: orig, remove: true}}, nil
	}

	result, err := applyHunks(lines, fd.Hunks)
	if err != nil {
		err.Path = newName
		return nil, err
	}

	out := []change{{path: newName, content: joinLines(result, trailingNewline), mode: mode}}
	if orig != devNull && orig != newName {
		out = append(out, change{path: orig, remove: true})
	}
	return out, nil
}

// applyHunks applies hunks in order. Each hunk is expected at its header
// position adjusted by the drift of earlier hunks; when the context does not
// match there, the nearest matching position after the previous hunk is used.
func applyHunks(lines []string, hunks []*diff.Hunk) ([]string, *ApplyError) {
	out := append([]string(nil), lines...)
	offset := 0
	floor := 0

	for i, h := range hunks {
		if h == nil {
			continue
		}
		oldSeg, newSeg := hunkSegments(h.Body)

		want := int(h.OrigStartLine) - 1
		if len(oldSeg) == 0 {
			// pure insertion after line OrigStartLine
			want = int(h.OrigStartLine)
		}
		want += offset

		pos := locate(out, oldSeg, want, floor)
		if pos < 0 {
			return nil, &ApplyError{Hunk: i + 1, Reason: fmt.Sprintf("context does not match at line %d", h.OrigStartLine)}
		}

		tail := append([]string(nil), out[pos+len(oldSeg):]...)
		out = append(append(out[:pos], newSeg...), tail...)
		offset += len(newSeg) - len(oldSeg)
		floor = pos + len(newSeg)
	}
	return out, nil
}

func hunkSegments(body []byte) (oldSeg, newSeg []string) {
	raw := strings.Split(string(body), "\n")
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	for _, line := range raw {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			oldSeg = append(oldSeg, "")
			newSeg = append(newSeg, "")
			continue
		}
		switch line[0] {
		case ' ':
			oldSeg = append(oldSeg, line[1:])
			newSeg = append(newSeg, line[1:])
		case '-':
			oldSeg = append(oldSeg, line[1:])
		case '+':
			newSeg = append(newSeg, line[1:])
		case '\\':
			// "\ No newline at end of file"
		default:
			oldSeg = append(oldSeg, line)
			newSeg = append(newSeg, line)
		}
	}
	return oldSeg, newSeg
}

// locate finds seg in lines, preferring want and searching outward from it.
func locate(lines, seg []string, want, floor int) int {
	if want < floor {
		want = floor
	}
	if want > len(lines) {
		want = len(lines)
	}
	if len(seg) == 0 {
		return want
	}
	for d := 0; ; d++ {
		before, after := want-d, want+d
		if before < floor && after+len(seg) > len(lines) {
			return -1
		}
		if after+len(seg) <= len(lines) && matchAt(lines, seg, after) {
			return after
		}
		if d > 0 && before >= floor && matchAt(lines, seg, before) {
			return before
		}
	}
}

func matchAt(lines, seg []string, pos int) bool {
	if pos < 0 || pos+len(seg) > len(lines) {
		return false
	}
	for i, s := range seg {
		if strings.TrimRight(lines[pos+i], " \t\r") != strings.TrimRight(s, " \t\r") {
			return false
		}
	}
	return true
}

func splitLines(data []byte) ([]string, bool) {
	if len(data) == 0 {
		return nil, true
	}
	trailing := bytes.HasSuffix(data, []byte("\n"))
	text := string(data)
	if trailing {
		text = text[:len(text)-1]
	}
	return strings.Split(text, "\n"), trailing
}

func joinLines(lines []string, trailingNewline bool) []byte {
	if len(lines) == 0 {
		return nil
	}
	text := strings.Join(lines, "\n")
	if trailingNewline {
		text += "\n"
	}
	return []byte(text)
}

// FileStat is the line statistics of one file of a patch.
type FileStat struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Deleted int    `json:"deleted"`
	Changed int    `json:"changed"`
	Created bool   `json:"created,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// StatFiles counts the lines a patch adds, deletes and changes per file.
func StatFiles(patch string) ([]FileStat, error) {
	parsed, err := Parse(patch)
	if err != nil {
		return nil, err
	}
	out := make([]FileStat, 0, len(parsed))
	for _, fd := range parsed {
		orig, name := cleanName(fd.OrigName), cleanName(fd.NewName)
		fs := FileStat{Path: name, Created: orig == devNull, Removed: name == devNull}
		if fs.Removed {
			fs.Path = orig
		}
		st := fd.Stat()
		fs.Added, fs.Deleted, fs.Changed = int(st.Added), int(st.Deleted), int(st.Changed)
		out = append(out, fs)
	}
	return out, nil
}

// Stat summarizes a patch.
type Stat struct {
	Files   []string `json:"files"`
	Added   int      `json:"added"`
	Deleted int      `json:"deleted"`
	Changed int      `json:"changed"`
}

// Summarize totals StatFiles over the whole patch.
func Summarize(patch string) (Stat, error) {
	stats, err := StatFiles(patch)
	if err != nil {
		return Stat{}, err
	}
	var s Stat
	for _, fs := range stats {
		s.Files = append(s.Files, fs.Path)
		s.Added += fs.Added
		s.Deleted += fs.Deleted
		s.Changed += fs.Changed
	}
	return s, nil
}
