package vcs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/bitbucket"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/vcsurl"
)

// Bitbucket opens pull requests on Bitbucket Server.
type Bitbucket struct {
	logger  hclog.Logger
	client  *bitbucket.Client
	project string
	repo    string
}

// NewBitbucket creates a Bitbucket Server requester for remote.
func NewBitbucket(cfg *config.Config, logger hclog.Logger, remote *vcsurl.Remote, username, token string) (*Bitbucket, error) {
	if token == "" {
		return nil, fmt.Errorf("bitbucket token is not set")
	}
	baseURL := cfg.VCS.APIURL
	if baseURL == "" {
		baseURL = "https://" + remote.Host
	}
	client := bitbucket.New(cfg, logger, baseURL, bitbucket.AuthInfo{Username: username, Token: token})
	return &Bitbucket{
		logger:  logger,
		client:  client,
		project: strings.ToUpper(remote.Namespace),
		repo:    remote.Repository,
	}, nil
}

func (b *Bitbucket) Name() string { return ProviderBitbucket }

func (b *Bitbucket) OpenReviewRequest(ctx context.Context, req ReviewRequest) (ReviewRequestRef, error) {
	if err := ctx.Err(); err != nil {
		return ReviewRequestRef{}, err
	}
	pr, err := b.client.PullRequests.Create(b.project, b.repo, bitbucket.NewPullRequest{
		Title:       req.Title,
		Description: req.Description,
		FromRef:     bitbucket.BranchReference(b.project, b.repo, req.Head),
		ToRef:       bitbucket.BranchReference(b.project, b.repo, req.Base),
	})
	if err != nil {
		return ReviewRequestRef{}, fmt.Errorf("failed to create pull request: %w", err)
	}
	b.logger.Info("pull request created", "id", pr.ID, "url", pr.WebURL())
	return ReviewRequestRef{ID: strconv.Itoa(pr.ID), URL: pr.WebURL()}, nil
}
