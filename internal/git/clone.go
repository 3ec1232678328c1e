package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gitsight/go-vcsurl"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	log "github.com/scan-io-git/autofix/pkg/shared/logger"
)

// CloneFolder returns where a remote repository is cloned for scanning:
// <temp>/targets/<host>/<full name>.
func CloneFolder(cfg *config.Config, cloneURL string) (string, error) {
	info, err := vcsurl.Parse(cloneURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse VCS URL: %w", err)
	}
	return filepath.Join(config.GetTempFolder(cfg), "targets", string(info.Host), filepath.FromSlash(info.FullName)), nil
}

// Clone fetches cloneURL into targetFolder, or updates an existing clone, and
// checks out branch (the remote default when empty).
func Clone(ctx context.Context, cfg *config.Config, logger hclog.Logger, cloneURL, targetFolder, branch string) (string, error) {
	info, err := vcsurl.Parse(cloneURL)
	if err != nil {
		logger.Error("failed to parse VCS URL", "VCSURL", cloneURL, "error", err)
		return "", fmt.Errorf("failed to parse VCS URL: %w", err)
	}

	auth, err := NewAuth(cfg.GitClient, logger)
	if err != nil {
		return "", err
	}

	var reference plumbing.ReferenceName
	if branch != "" {
		reference = determineBranch(branch, "")
	}
	output := log.GetLoggerOutput(logger)
	insecure := config.GetBoolValue(cfg.GitClient, "InsecureTLS", false)

	ctx, cancel := context.WithTimeout(ctx, config.SetThen(cfg.GitClient.Timeout, 10*time.Minute))
	defer cancel()

	logger.Debug("starting repository fetch", "repository", info.FullName, "branch", reference, "targetFolder", targetFolder)
	repo, err := git.PlainCloneContext(ctx, targetFolder, false, &git.CloneOptions{
		Auth:            auth,
		URL:             cloneURL,
		ReferenceName:   reference,
		Progress:        output,
		InsecureSkipTLS: insecure,
	})
	if err != nil {
		if !stderrors.Is(err, git.ErrRepositoryAlreadyExists) {
			logger.Error("error occurred during clone", "error", err, "targetFolder", targetFolder)
			return "", fmt.Errorf("error occurred during clone: %w", err)
		}

		logger.Info("repository already exists, updating...", "targetFolder", targetFolder)
		repo, err = git.PlainOpen(targetFolder)
		if err != nil {
			logger.Error("cannot open existing repository", "error", err, "targetFolder", targetFolder)
			return "", fmt.Errorf("cannot open existing repository: %w", err)
		}

		err = repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName:      "origin",
			Auth:            auth,
			Progress:        output,
			RefSpecs:        []gitconfig.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
			InsecureSkipTLS: insecure,
		})
		if err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
			logger.Error("error occurred during fetch", "error", err, "targetFolder", targetFolder)
			return "", fmt.Errorf("error occurred during fetch: %w", err)
		}

		if reference == "" {
			head, err := repo.Head()
			if err != nil {
				return "", fmt.Errorf("failed to resolve HEAD: %w", err)
			}
			reference = head.Name()
		}
		if err := resetToRemote(repo, reference, logger, targetFolder); err != nil {
			return "", err
		}
	}

	logger.Info("repository operation completed successfully", "repository", info.FullName, "targetFolder", targetFolder)
	return targetFolder, nil
}

// resetToRemote checks out branch and hard-resets it to its origin counterpart.
func resetToRemote(repo *git.Repository, branch plumbing.ReferenceName, logger hclog.Logger, targetFolder string) error {
	w, err := repo.Worktree()
	if err != nil {
		logger.Error("error accessing worktree", "error", err, "targetFolder", targetFolder)
		return fmt.Errorf("error accessing worktree: %w", err)
	}

	remote, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch.Short()), true)
	if err != nil {
		logger.Error("remote branch not found", "branch", branch.Short(), "error", err)
		return fmt.Errorf("remote branch %q not found: %w", branch.Short(), err)
	}

	if _, err := repo.Reference(branch, true); err != nil {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(branch, remote.Hash())); err != nil {
			return fmt.Errorf("failed to create branch %q: %w", branch.Short(), err)
		}
	}

	logger.Debug("checking out branch", "branch", branch, "targetFolder", targetFolder)
	if err := w.Checkout(&git.CheckoutOptions{Branch: branch, Force: true}); err != nil {
		logger.Error("error occurred during checkout", "error", err, "targetFolder", targetFolder)
		return fmt.Errorf("error occurred during checkout: %w", err)
	}

	logger.Debug("resetting local repository", "targetFolder", targetFolder)
	if err := w.Reset(&git.ResetOptions{Commit: remote.Hash(), Mode: git.HardReset}); err != nil {
		logger.Error("error occurred during reset", "error", err, "targetFolder", targetFolder)
		return fmt.Errorf("error occurred during reset: %w", err)
	}
	return nil
}
