package git

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sourcegraph/go-diff/diff"

	"github.com/scan-io-git/autofix/internal/vcs"
)

// FileChange summarizes how one file differs between the base and the fix branch.
type FileChange struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	Changed int    `json:"changed"`
	Deleted bool   `json:"deleted,omitempty"`
	Created bool   `json:"created,omitempty"`
}

// BranchChanges returns per-file line statistics of the fix branch against
// its base, sorted by path. Paths are relative to the repository root.
func (h *Host) BranchChanges(ref vcs.BranchRef) ([]FileChange, error) {
	if ref.BaseHash == "" {
		return nil, fmt.Errorf("base hash is required to compute diff")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	head, err := h.repo.Reference(plumbing.NewBranchReferenceName(ref.Name), true)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve branch %q: %w", ref.Name, err)
	}

	baseCommit, err := h.repo.CommitObject(plumbing.NewHash(ref.BaseHash))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base commit %q: %w", ref.BaseHash, err)
	}
	headCommit, err := h.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve head commit %q: %w", head.Hash(), err)
	}

	baseTree, err := baseCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load base tree: %w", err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load head tree: %w", err)
	}

	p, err := baseTree.Patch(headTree)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}
	return summarizeDiff(p.String())
}

func summarizeDiff(text string) ([]FileChange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parsed, err := diff.ParseMultiFileDiff([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	var out []FileChange
	for _, fd := range parsed {
		if fd == nil {
			continue
		}
		fc := FileChange{Path: strings.TrimPrefix(fd.NewName, "b/")}
		switch {
		case fd.NewName == "/dev/null":
			fc.Path = strings.TrimPrefix(fd.OrigName, "a/")
			fc.Deleted = true
		case fd.OrigName == "/dev/null":
			fc.Created = true
		}
		stat := fd.Stat()
		fc.Added, fc.Removed, fc.Changed = int(stat.Added), int(stat.Deleted), int(stat.Changed)
		out = append(out, fc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
