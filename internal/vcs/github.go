package vcs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/go-github/v47/github"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/vcsurl"
)

// Github opens pull requests through the GitHub REST API.
type Github struct {
	logger hclog.Logger
	client *github.Client
	owner  string
	repo   string
	labels []string
}

// NewGithub creates a GitHub requester. GitHub Enterprise is used when the
// remote is not on github.com or vcs.api_url is set.
func NewGithub(cfg *config.Config, logger hclog.Logger, remote *vcsurl.Remote, token string) (*Github, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is not set")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = logger
	retryClient.RetryMax = config.SetThen(cfg.HTTPClient.RetryCount, config.DefaultHTTPConfig().RetryCount)
	retryClient.RetryWaitMin = config.SetThen(cfg.HTTPClient.RetryWaitTime, config.DefaultHTTPConfig().RetryWaitTime)
	retryClient.RetryWaitMax = config.SetThen(cfg.HTTPClient.RetryMaxWaitTime, config.DefaultHTTPConfig().RetryMaxWaitTime)
	retryClient.HTTPClient = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	httpClient := retryClient.StandardClient()
	httpClient.Timeout = config.SetThen(cfg.HTTPClient.Timeout, config.DefaultHTTPConfig().Timeout)

	var client *github.Client
	switch {
	case cfg.VCS.APIURL != "":
		c, err := github.NewEnterpriseClient(cfg.VCS.APIURL, cfg.VCS.APIURL, httpClient)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client = c
	case remote.Host != "" && remote.Host != "github.com":
		base := fmt.Sprintf("https://%s/api/v3/", remote.Host)
		c, err := github.NewEnterpriseClient(base, fmt.Sprintf("https://%s/api/uploads/", remote.Host), httpClient)
		if err != nil {
			return nil, fmt.Errorf("invalid github enterprise host: %w", err)
		}
		client = c
	default:
		client = github.NewClient(httpClient)
	}

	return &Github{
		logger: logger,
		client: client,
		owner:  remote.Namespace,
		repo:   remote.Repository,
		labels: cfg.VCS.Labels,
	}, nil
}

func (g *Github) Name() string { return ProviderGithub }

func (g *Github) OpenReviewRequest(ctx context.Context, req ReviewRequest) (ReviewRequestRef, error) {
	pr, _, err := g.client.PullRequests.Create(ctx, g.owner, g.repo, &github.NewPullRequest{
		Title:               github.String(req.Title),
		Head:                github.String(req.Head),
		Base:                github.String(req.Base),
		Body:                github.String(req.Description),
		MaintainerCanModify: github.Bool(true),
	})
	if err != nil {
		return ReviewRequestRef{}, fmt.Errorf("failed to create pull request: %w", err)
	}
	ref := ReviewRequestRef{ID: strconv.Itoa(pr.GetNumber()), URL: pr.GetHTMLURL()}
	g.logger.Info("pull request created", "number", pr.GetNumber(), "url", ref.URL)

	labels := append(append([]string{}, g.labels...), req.Labels...)
	if len(labels) > 0 {
		if _, _, err := g.client.Issues.AddLabelsToIssue(ctx, g.owner, g.repo, pr.GetNumber(), labels); err != nil {
			g.logger.Warn("failed to label pull request", "number", pr.GetNumber(), "error", err)
		}
	}
	return ref, nil
}
