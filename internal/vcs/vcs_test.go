package vcs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/vcsurl"
)

func testRequest() ReviewRequest {
	return ReviewRequest{
		Head:        "security-fixes-20240102-030405",
		Base:        "main",
		Title:       "Security fixes",
		Description: "Fixed 1 finding",
	}
}

func TestRepository(t *testing.T) {
	tests := []struct {
		name     string
		vcs      config.VCS
		remote   string
		wantHost string
		wantFull string
		wantErr  bool
	}{
		{name: "from origin", vcs: config.VCS{Provider: "github"}, remote: "git@github.com:acme/shop.git", wantHost: "github.com", wantFull: "acme/shop"},
		{name: "short name uses default host", vcs: config.VCS{Provider: "gitlab", Repository: "team/api"}, wantHost: "gitlab.com", wantFull: "team/api"},
		{name: "short name with url", vcs: config.VCS{Provider: "bitbucket", URL: "bitbucket.corp", Repository: "scm/sec/scanner"}, wantHost: "bitbucket.corp", wantFull: "sec/scanner"},
		{name: "short name without host", vcs: config.VCS{Provider: "bitbucket", Repository: "sec/scanner"}, wantErr: true},
		{name: "nothing configured", vcs: config.VCS{Provider: "github"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Repository(&config.Config{VCS: tt.vcs}, tt.remote)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, r.Host)
			assert.Equal(t, tt.wantFull, r.FullName())
		})
	}
}

func TestNewNone(t *testing.T) {
	r, err := New(&config.Config{}, hclog.NewNullLogger(), "")
	require.NoError(t, err)
	assert.Equal(t, ProviderNone, r.Name())
	ref, err := r.OpenReviewRequest(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, ref.URL)

	_, err = New(&config.Config{VCS: config.VCS{Provider: "svn", Repository: "https://svn.corp/a/b"}}, hclog.NewNullLogger(), "")
	assert.Error(t, err)
}

func TestGithubOpenReviewRequest(t *testing.T) {
	var created, labeled map[string]interface{}
	var labels []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v3/repos/acme/shop/pulls":
			assert.NoError(t, json.Unmarshal(body, &created))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"number": 7, "html_url": "https://github.example/acme/shop/pull/7"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v3/repos/acme/shop/issues/7/labels":
			assert.NoError(t, json.Unmarshal(body, &labels))
			labeled = map[string]interface{}{"ok": true}
			_, _ = w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := &config.Config{VCS: config.VCS{Provider: "github", APIURL: srv.URL + "/", Labels: []string{"security"}}}
	remote, err := vcsurl.ParseRemote("https://github.com/acme/shop", vcsurl.Github)
	require.NoError(t, err)
	gh, err := NewGithub(cfg, hclog.NewNullLogger(), remote, "gh-token")
	require.NoError(t, err)

	ref, err := gh.OpenReviewRequest(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, ReviewRequestRef{ID: "7", URL: "https://github.example/acme/shop/pull/7"}, ref)
	assert.Equal(t, "security-fixes-20240102-030405", created["head"])
	assert.Equal(t, "main", created["base"])
	assert.Equal(t, "Fixed 1 finding", created["body"])
	assert.NotNil(t, labeled)
	assert.Equal(t, []string{"security"}, labels)
}

func TestGithubRequiresToken(t *testing.T) {
	remote := &vcsurl.Remote{Host: "github.com", Namespace: "acme", Repository: "shop"}
	_, err := NewGithub(&config.Config{}, hclog.NewNullLogger(), remote, "")
	assert.Error(t, err)
}

func TestGitlabOpenReviewRequest(t *testing.T) {
	var created map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/merge_requests") {
			assert.Equal(t, "gl-token", r.Header.Get("PRIVATE-TOKEN"))
			assert.Contains(t, r.URL.EscapedPath(), "team%2Fapi")
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &created))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"iid": 12, "web_url": "https://gitlab.example/team/api/-/merge_requests/12"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := &config.Config{VCS: config.VCS{Provider: "gitlab", APIURL: srv.URL + "/api/v4"}}
	remote := &vcsurl.Remote{Host: "gitlab.example", Namespace: "team", Repository: "api"}
	gl, err := NewGitlab(cfg, hclog.NewNullLogger(), remote, "gl-token")
	require.NoError(t, err)

	ref, err := gl.OpenReviewRequest(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, ReviewRequestRef{ID: "12", URL: "https://gitlab.example/team/api/-/merge_requests/12"}, ref)
	assert.Equal(t, "security-fixes-20240102-030405", created["source_branch"])
	assert.Equal(t, "main", created["target_branch"])
}

func TestBitbucketOpenReviewRequest(t *testing.T) {
	var created map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/rest/api/1.0/projects/SEC/repos/scanner/pull-requests" {
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "svc", user)
			assert.Equal(t, "bb-token", pass)
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &created))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 3, "links": {"self": [{"href": "https://bb.corp/projects/SEC/repos/scanner/pull-requests/3"}]}}`))
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"errors": [{"message": "branch already has a pull request"}]}`))
	}))
	defer srv.Close()

	cfg := &config.Config{VCS: config.VCS{Provider: "bitbucket", APIURL: srv.URL}}
	remote := &vcsurl.Remote{Host: "bb.corp", Namespace: "sec", Repository: "scanner"}
	bb, err := NewBitbucket(cfg, hclog.NewNullLogger(), remote, "svc", "bb-token")
	require.NoError(t, err)

	ref, err := bb.OpenReviewRequest(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "3", ref.ID)
	assert.Equal(t, "https://bb.corp/projects/SEC/repos/scanner/pull-requests/3", ref.URL)
	from := created["fromRef"].(map[string]interface{})
	assert.Equal(t, "refs/heads/security-fixes-20240102-030405", from["id"])

	bb.repo = "other"
	_, err = bb.OpenReviewRequest(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch already has a pull request")
}
