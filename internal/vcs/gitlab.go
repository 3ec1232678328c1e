package vcs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/xanzy/go-gitlab"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/vcsurl"
)

// Gitlab opens merge requests through the GitLab API.
type Gitlab struct {
	logger  hclog.Logger
	client  *gitlab.Client
	project string
	labels  []string
}

// NewGitlab creates a GitLab requester for remote.
func NewGitlab(cfg *config.Config, logger hclog.Logger, remote *vcsurl.Remote, token string) (*Gitlab, error) {
	if token == "" {
		return nil, fmt.Errorf("gitlab token is not set")
	}
	baseURL := cfg.VCS.APIURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s/api/v4", remote.Host)
	}

	client, err := gitlab.NewClient(token,
		gitlab.WithBaseURL(baseURL),
		gitlab.WithCustomRetryMax(config.SetThen(cfg.HTTPClient.RetryCount, config.DefaultHTTPConfig().RetryCount)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &Gitlab{
		logger:  logger,
		client:  client,
		project: remote.FullName(),
		labels:  cfg.VCS.Labels,
	}, nil
}

func (g *Gitlab) Name() string { return ProviderGitlab }

func (g *Gitlab) OpenReviewRequest(ctx context.Context, req ReviewRequest) (ReviewRequestRef, error) {
	opts := &gitlab.CreateMergeRequestOptions{
		Title:              gitlab.Ptr(req.Title),
		Description:        gitlab.Ptr(req.Description),
		SourceBranch:       gitlab.Ptr(req.Head),
		TargetBranch:       gitlab.Ptr(req.Base),
		RemoveSourceBranch: gitlab.Ptr(true),
	}
	if labels := append(append([]string{}, g.labels...), req.Labels...); len(labels) > 0 {
		opts.Labels = gitlab.Ptr(gitlab.LabelOptions(labels))
	}

	mr, _, err := g.client.MergeRequests.CreateMergeRequest(g.project, opts, gitlab.WithContext(ctx))
	if err != nil {
		return ReviewRequestRef{}, fmt.Errorf("failed to create merge request: %w", err)
	}
	g.logger.Info("merge request created", "iid", mr.IID, "url", mr.WebURL)
	return ReviewRequestRef{ID: strconv.Itoa(mr.IID), URL: mr.WebURL}, nil
}
