package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/vcsurl"
)

// BranchRef identifies the fix branch of a run.
type BranchRef struct {
	Name     string `json:"name"`
	Base     string `json:"base"`
	BaseHash string `json:"base_hash,omitempty"`
	Pushed   bool   `json:"pushed,omitempty"`
}

// CommitRef identifies one commit on the fix branch.
type CommitRef struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// File is a file written verbatim as part of a change.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Change is what one commit applies: a unified diff plus extra files such as tests.
type Change struct {
	Patch string `json:"patch"`
	Files []File `json:"files,omitempty"`
}

// ReviewRequest asks for Head to be merged into Base.
type ReviewRequest struct {
	Head        string
	Base        string
	Title       string
	Description string
	Labels      []string
}

// ReviewRequestRef points at an opened pull or merge request.
type ReviewRequestRef struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url,omitempty"`
}

// ReviewRequester opens review requests on a code host.
type ReviewRequester interface {
	Name() string
	OpenReviewRequest(ctx context.Context, req ReviewRequest) (ReviewRequestRef, error)
}

const (
	ProviderNone      = "none"
	ProviderGithub    = "github"
	ProviderGitlab    = "gitlab"
	ProviderBitbucket = "bitbucket"
)

// Repository resolves the repository coordinates from vcs.repository, falling
// back to remoteURL (usually the origin of the local clone).
func Repository(cfg *config.Config, remoteURL string) (*vcsurl.Remote, error) {
	raw := cfg.VCS.Repository
	if raw == "" {
		raw = remoteURL
	}
	if raw == "" {
		return nil, fmt.Errorf("repository is not configured and the clone has no origin remote")
	}
	if !strings.Contains(raw, ":") {
		host := cfg.VCS.URL
		if host == "" {
			host = defaultHosts[strings.ToLower(cfg.VCS.Provider)]
		}
		if host == "" {
			return nil, fmt.Errorf("repository %q needs vcs.url", raw)
		}
		raw = strings.TrimSuffix(host, "/") + "/" + strings.TrimPrefix(raw, "/")
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
	}
	return vcsurl.ParseRemote(raw, vcsurl.StringToVCSType(cfg.VCS.Provider))
}

// New builds the review requester named by vcs.provider.
func New(cfg *config.Config, logger hclog.Logger, remoteURL string) (ReviewRequester, error) {
	provider := strings.ToLower(cfg.VCS.Provider)
	if provider == "" || provider == ProviderNone {
		return None{}, nil
	}

	remote, err := Repository(cfg, remoteURL)
	if err != nil {
		return nil, err
	}
	token := config.LookupSecret(cfg.VCS.TokenEnv, defaultTokenEnv[provider])

	switch provider {
	case ProviderGithub:
		return NewGithub(cfg, logger.Named("github"), remote, token)
	case ProviderGitlab:
		return NewGitlab(cfg, logger.Named("gitlab"), remote, token)
	case ProviderBitbucket:
		return NewBitbucket(cfg, logger.Named("bitbucket"), remote, cfg.VCS.Username, token)
	default:
		return nil, fmt.Errorf("unknown vcs provider %q", cfg.VCS.Provider)
	}
}

var defaultHosts = map[string]string{
	ProviderGithub: "github.com",
	ProviderGitlab: "gitlab.com",
}

var defaultTokenEnv = map[string]string{
	ProviderGithub:    "GITHUB_TOKEN",
	ProviderGitlab:    "GITLAB_TOKEN",
	ProviderBitbucket: "BITBUCKET_TOKEN",
}

// None opens no review request; the branch alone is the deliverable.
type None struct{}

func (None) Name() string { return ProviderNone }

func (None) OpenReviewRequest(context.Context, ReviewRequest) (ReviewRequestRef, error) {
	return ReviewRequestRef{}, nil
}
