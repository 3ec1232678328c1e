package bitbucket

import (
	"fmt"
)

type pullRequestsService struct {
	client *Client
}

// NewPullRequest is the body of a pull request creation.
type NewPullRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	FromRef     ReferenceInput `json:"fromRef"`
	ToRef       ReferenceInput `json:"toRef"`
}

// ReferenceInput names a branch of a repository.
type ReferenceInput struct {
	ID         string          `json:"id"`
	Repository RepositoryInput `json:"repository"`
}

type RepositoryInput struct {
	Slug    string       `json:"slug"`
	Project ProjectInput `json:"project"`
}

type ProjectInput struct {
	Key string `json:"key"`
}

// BranchReference builds the reference of branch in project/repository.
func BranchReference(project, repository, branch string) ReferenceInput {
	return ReferenceInput{
		ID:         "refs/heads/" + branch,
		Repository: RepositoryInput{Slug: repository, Project: ProjectInput{Key: project}},
	}
}

// Create opens a pull request.
func (prs *pullRequestsService) Create(project, repository string, pr NewPullRequest) (*PullRequest, error) {
	path := fmt.Sprintf("/projects/%s/repos/%s/pull-requests", project, repository)
	prs.client.Logger.Debug("creating pull request", "project", project, "repository", repository, "from", pr.FromRef.ID, "to", pr.ToRef.ID)

	response, err := prs.client.post(path, pr)
	if err != nil {
		return nil, fmt.Errorf("error creating pull request: %w", err)
	}

	var result PullRequest
	if err := unmarshalResponse(response, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get retrieves a pull request for a given project, repository, and ID.
func (prs *pullRequestsService) Get(project, repository string, id int) (*PullRequest, error) {
	path := fmt.Sprintf("/projects/%s/repos/%s/pull-requests/%d", project, repository, id)
	prs.client.Logger.Debug("fetching pull request information", "project", project, "repository", repository, "id", id)

	response, err := prs.client.get(path)
	if err != nil {
		return nil, fmt.Errorf("error fetching pull request: %w", err)
	}

	var result PullRequest
	if err := unmarshalResponse(response, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WebURL returns the browser link of the pull request.
func (pr *PullRequest) WebURL() string {
	if len(pr.Links.Self) > 0 {
		return pr.Links.Self[0].Href
	}
	return ""
}
