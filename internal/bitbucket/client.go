package bitbucket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/httpclient"
)

// Client talks to the Bitbucket Server REST API.
type Client struct {
	resty        *resty.Client
	BaseURL      string
	Logger       hclog.Logger
	PullRequests PullRequestsService
}

// PullRequestsService defines the pull request operations.
type PullRequestsService interface {
	Create(project, repository string, pr NewPullRequest) (*PullRequest, error)
	Get(project, repository string, id int) (*PullRequest, error)
}

// AuthInfo holds authentication details for Bitbucket access.
type AuthInfo struct {
	Username string
	Token    string
}

// New creates a client for the server at baseURL, for example https://bitbucket.corp.local.
// Requests go to baseURL/rest/api/1.0.
func New(globalConfig *config.Config, logger hclog.Logger, baseURL string, auth AuthInfo) *Client {
	rc := httpclient.InitializeRestyClient(logger, globalConfig)
	if auth.Username != "" {
		rc.SetBasicAuth(auth.Username, auth.Token)
	} else if auth.Token != "" {
		rc.SetAuthToken(auth.Token)
	}

	client := &Client{
		resty:   rc,
		BaseURL: strings.TrimSuffix(baseURL, "/") + "/rest/api/1.0",
		Logger:  logger,
	}
	client.PullRequests = &pullRequestsService{client: client}
	return client
}

func (c *Client) request() *resty.Request {
	return c.resty.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

func (c *Client) get(path string) (*resty.Response, error) {
	return c.request().Get(c.BaseURL + path)
}

func (c *Client) post(path string, body interface{}) (*resty.Response, error) {
	return c.request().SetBody(body).Post(c.BaseURL + path)
}

// unmarshalResponse decodes a JSON body into out, turning API errors into Go errors.
func unmarshalResponse[T any](resp *resty.Response, out *T) error {
	if resp.StatusCode() >= 400 {
		var errorList ErrorList
		if err := json.Unmarshal(resp.Body(), &errorList); err == nil && len(errorList.Errors) > 0 {
			return fmt.Errorf("API error(s) occurred with status code %d: %s", resp.StatusCode(), errorList)
		}
		return fmt.Errorf("API request failed with status code %d and response: %s", resp.StatusCode(), resp.String())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
