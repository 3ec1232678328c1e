package git

import "errors"

// Branch errors
var (
	ErrDirtyWorktree = errors.New("worktree has uncommitted changes")
	ErrWrongBranch   = errors.New("HEAD is not on the fix branch")
)

// Repository errors
var (
	ErrNotRepository = errors.New("source folder is not a git repository")
	ErrNoSource      = errors.New("source folder is not set")
)
