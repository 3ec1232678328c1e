package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/patch"
	"github.com/scan-io-git/autofix/internal/vcs"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
	"github.com/scan-io-git/autofix/pkg/shared/files"
	log "github.com/scan-io-git/autofix/pkg/shared/logger"
)

// BranchPrefix starts the name of every fix branch.
const BranchPrefix = "security-fixes-"

// BranchName returns the fix branch name for a run started at t.
func BranchName(t time.Time) string {
	return BranchPrefix + t.UTC().Format("20060102-150405")
}

// Host stages fixes on a branch of a local clone and hands the branch to a
// review requester. Commits are serialized.
type Host struct {
	logger    hclog.Logger
	cfg       *config.Config
	repo      *git.Repository
	root      string
	subfolder string
	requester vcs.ReviewRequester
	now       func() time.Time

	// tree keeps readers of the worktree files out while they are rewritten.
	tree sync.RWMutex

	mu     sync.Mutex
	auth   transport.AuthMethod
	authOK bool
	pushed map[string]bool
}

// Open opens the repository that contains validation.source_root.
func Open(cfg *config.Config, logger hclog.Logger, requester vcs.ReviewRequester) (*Host, error) {
	source := cfg.Validation.SourceRoot
	if source == "" {
		source = "."
	}
	source, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source root: %w", err)
	}

	root, err := findGitRepositoryPath(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, source)
	}
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %q: %w", root, err)
	}

	h := &Host{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		root:      filepath.Clean(root),
		requester: requester,
		now:       time.Now,
		pushed:    make(map[string]bool),
	}
	if rel, err := filepath.Rel(root, source); err == nil && rel != "." {
		h.subfolder = rel
	}
	if h.requester == nil {
		h.requester = vcs.None{}
	}
	return h, nil
}

// Root is the repository root folder.
func (h *Host) Root() string { return h.root }

// RemoteURL returns the first URL of the configured remote, or "".
func (h *Host) RemoteURL() string {
	remote, err := h.repo.Remote(config.SetThen(h.cfg.GitClient.Remote, "origin"))
	if err != nil {
		return ""
	}
	if c := remote.Config(); c != nil && len(c.URLs) > 0 {
		return c.URLs[0]
	}
	return ""
}

// ReadSource runs fn while no commit, reset or checkout rewrites the worktree.
func (h *Host) ReadSource(fn func() error) error {
	h.tree.RLock()
	defer h.tree.RUnlock()
	return fn()
}

// SetRequester replaces the review requester, typically once the remote is known.
func (h *Host) SetRequester(r vcs.ReviewRequester) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requester = r
}

// CreateBranch creates the fix branch from the base branch and checks it out.
// An empty name yields a timestamped branch name.
func (h *Host) CreateBranch(ctx context.Context, name string) (vcs.BranchRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return vcs.BranchRef{}, err
	}
	if name == "" {
		name = BranchName(h.now())
	}

	w, err := h.repo.Worktree()
	if err != nil {
		return vcs.BranchRef{}, fmt.Errorf("error accessing worktree: %w", err)
	}
	if err := h.ensureClean(w); err != nil {
		return vcs.BranchRef{}, err
	}

	base, baseHash, err := h.resolveBase()
	if err != nil {
		return vcs.BranchRef{}, err
	}

	h.logger.Debug("creating fix branch", "branch", name, "base", base, "baseHash", baseHash.String())
	h.tree.Lock()
	err = w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Hash:   baseHash,
		Create: true,
	})
	h.tree.Unlock()
	if err != nil {
		h.logger.Error("failed to create fix branch", "branch", name, "error", err)
		return vcs.BranchRef{}, fmt.Errorf("failed to create branch %q: %w", name, err)
	}

	h.logger.Info("fix branch created", "branch", name, "base", base)
	return vcs.BranchRef{Name: name, Base: base, BaseHash: baseHash.String()}, nil
}

// resolveBase picks vcs.base_branch when it exists locally and HEAD otherwise.
func (h *Host) resolveBase() (string, plumbing.Hash, error) {
	if base := h.cfg.VCS.BaseBranch; base != "" {
		ref, err := h.repo.Reference(determineBranch(base, ""), true)
		if err == nil {
			return base, ref.Hash(), nil
		}
		h.logger.Warn("base branch not found locally, using HEAD", "base", base, "error", err)
	}

	head, err := h.repo.Head()
	if err != nil {
		return "", plumbing.ZeroHash, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), head.Hash(), nil
	}
	return head.Hash().String(), head.Hash(), nil
}

// ensureClean rejects tracked modifications. Untracked files are allowed.
func (h *Host) ensureClean(w *git.Worktree) error {
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to read worktree status: %w", err)
	}
	for path, s := range status {
		if s.Worktree == git.Untracked && s.Staging == git.Untracked {
			continue
		}
		if s.Worktree != git.Unmodified || s.Staging != git.Unmodified {
			h.logger.Error("worktree is not clean", "path", path)
			return fmt.Errorf("%w: %s", ErrDirtyWorktree, path)
		}
	}
	return nil
}

// Commit applies change on top of the branch and commits it. A patch that
// does not apply returns *errors.ConflictError and leaves the branch untouched.
func (h *Host) Commit(ctx context.Context, ref vcs.BranchRef, change vcs.Change, message string) (vcs.CommitRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return vcs.CommitRef{}, err
	}

	head, err := h.repo.Head()
	if err != nil {
		return vcs.CommitRef{}, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if head.Name() != plumbing.NewBranchReferenceName(ref.Name) {
		return vcs.CommitRef{}, fmt.Errorf("%w: on %q, want %q", ErrWrongBranch, head.Name().Short(), ref.Name)
	}

	w, err := h.repo.Worktree()
	if err != nil {
		return vcs.CommitRef{}, fmt.Errorf("error accessing worktree: %w", err)
	}
	workdir := filepath.Join(h.root, h.subfolder)

	h.tree.Lock()
	defer h.tree.Unlock()

	touched, err := patch.Apply(workdir, change.Patch)
	if err != nil {
		conflict := &errors.ConflictError{Branch: ref.Name, Err: err}
		var applyErr *patch.ApplyError
		if stderrors.As(err, &applyErr) {
			conflict.Path = applyErr.Path
		}
		h.logger.Warn("patch conflicts with the fix branch", "branch", ref.Name, "path", conflict.Path, "error", err)
		h.restore(w, head.Hash(), touched)
		return vcs.CommitRef{}, conflict
	}

	for _, f := range change.Files {
		full, err := files.EnsureWithinRoot(workdir, f.Path)
		if err == nil {
			err = files.WriteFile(full, []byte(f.Content))
		}
		if err != nil {
			h.restore(w, head.Hash(), touched)
			return vcs.CommitRef{}, fmt.Errorf("failed to write %q: %w", f.Path, err)
		}
		touched = append(touched, f.Path)
	}
	if len(touched) == 0 {
		return vcs.CommitRef{}, fmt.Errorf("change for branch %q is empty", ref.Name)
	}

	for _, p := range touched {
		if _, err := w.Add(h.repoPath(p)); err != nil {
			h.restore(w, head.Hash(), touched)
			return vcs.CommitRef{}, fmt.Errorf("failed to stage %q: %w", p, err)
		}
	}

	hash, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  h.cfg.GitClient.AuthorName,
			Email: h.cfg.GitClient.AuthorEmail,
			When:  h.now(),
		},
	})
	if err != nil {
		h.restore(w, head.Hash(), touched)
		return vcs.CommitRef{}, fmt.Errorf("failed to commit: %w", err)
	}

	h.logger.Debug("committed fix", "branch", ref.Name, "commit", hash.String(), "files", len(touched))
	return vcs.CommitRef{Hash: hash.String(), Message: message}, nil
}

func (h *Host) repoPath(p string) string {
	return filepath.Join(h.subfolder, filepath.FromSlash(p))
}

// restore brings the worktree back to commit and removes files a failed
// change created.
func (h *Host) restore(w *git.Worktree, commit plumbing.Hash, touched []string) {
	if err := w.Reset(&git.ResetOptions{Commit: commit, Mode: git.HardReset}); err != nil {
		h.logger.Error("failed to reset worktree", "commit", commit.String(), "error", err)
	}

	c, err := h.repo.CommitObject(commit)
	if err != nil {
		return
	}
	tree, err := c.Tree()
	if err != nil {
		return
	}
	for _, p := range touched {
		rel := filepath.ToSlash(h.repoPath(p))
		if _, err := tree.File(rel); err == nil {
			continue
		}
		_ = os.Remove(filepath.Join(h.root, rel))
	}
}

// DiscardBranch checks the base out again and deletes the fix branch, locally
// and on the remote when it was pushed.
func (h *Host) DiscardBranch(ctx context.Context, ref vcs.BranchRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, err := h.repo.Worktree()
	if err != nil {
		return fmt.Errorf("error accessing worktree: %w", err)
	}

	opts := &git.CheckoutOptions{Force: true}
	baseRef := determineBranch(ref.Base, "")
	if _, err := h.repo.Reference(baseRef, true); ref.Base != "" && err == nil {
		opts.Branch = baseRef
	} else {
		opts.Hash = plumbing.NewHash(ref.BaseHash)
	}

	h.logger.Debug("discarding fix branch", "branch", ref.Name, "base", ref.Base)
	h.tree.Lock()
	err = w.Checkout(opts)
	h.tree.Unlock()
	if err != nil {
		h.logger.Error("failed to check out base", "base", ref.Base, "error", err)
		return fmt.Errorf("failed to check out base %q: %w", ref.Base, err)
	}

	branch := plumbing.NewBranchReferenceName(ref.Name)
	if err := h.repo.Storer.RemoveReference(branch); err != nil {
		return fmt.Errorf("failed to delete branch %q: %w", ref.Name, err)
	}

	if ref.Pushed || h.pushed[ref.Name] {
		spec := gitconfig.RefSpec(":" + branch.String())
		if err := h.push(ctx, spec); err != nil {
			h.logger.Error("failed to delete remote branch", "branch", ref.Name, "error", err)
			return fmt.Errorf("failed to delete remote branch %q: %w", ref.Name, err)
		}
		delete(h.pushed, ref.Name)
	}

	h.logger.Info("fix branch discarded", "branch", ref.Name)
	return nil
}

// OpenReviewRequest pushes the branch when vcs.push is enabled and asks the
// review requester to open a pull or merge request for it.
func (h *Host) OpenReviewRequest(ctx context.Context, ref vcs.BranchRef, title, description string) (vcs.ReviewRequestRef, error) {
	h.mu.Lock()
	requester := h.requester
	push := config.GetBoolValue(h.cfg.VCS, "Push", requester.Name() != vcs.ProviderNone)
	if push {
		branch := plumbing.NewBranchReferenceName(ref.Name)
		spec := gitconfig.RefSpec(branch.String() + ":" + branch.String())
		if err := h.push(ctx, spec); err != nil {
			h.mu.Unlock()
			h.logger.Error("failed to push fix branch", "branch", ref.Name, "error", err)
			return vcs.ReviewRequestRef{}, fmt.Errorf("failed to push branch %q: %w", ref.Name, err)
		}
		h.pushed[ref.Name] = true
	}
	h.mu.Unlock()

	return requester.OpenReviewRequest(ctx, vcs.ReviewRequest{
		Head:        ref.Name,
		Base:        ref.Base,
		Title:       title,
		Description: description,
		Labels:      h.cfg.VCS.Labels,
	})
}

// Pushed reports whether the branch was pushed by this host.
func (h *Host) Pushed(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pushed[name]
}

func (h *Host) push(ctx context.Context, spec gitconfig.RefSpec) error {
	if !h.authOK {
		auth, err := NewAuth(h.cfg.GitClient, h.logger)
		if err != nil {
			return err
		}
		h.auth, h.authOK = auth, true
	}

	ctx, cancel := context.WithTimeout(ctx, config.SetThen(h.cfg.GitClient.Timeout, 10*time.Minute))
	defer cancel()

	err := h.repo.PushContext(ctx, &git.PushOptions{
		RemoteName:      config.SetThen(h.cfg.GitClient.Remote, "origin"),
		RefSpecs:        []gitconfig.RefSpec{spec},
		Auth:            h.auth,
		Progress:        log.GetLoggerOutput(h.logger),
		InsecureSkipTLS: config.GetBoolValue(h.cfg.GitClient, "InsecureTLS", false),
	})
	if err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}
