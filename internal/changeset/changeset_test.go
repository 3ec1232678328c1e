package changeset

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/autofix/internal/findings"
	"github.com/scan-io-git/autofix/internal/git"
	"github.com/scan-io-git/autofix/internal/orchestrator"
	"github.com/scan-io-git/autofix/internal/provider"
	"github.com/scan-io-git/autofix/internal/triage"
	"github.com/scan-io-git/autofix/internal/vcs"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

type MockHost struct {
	mock.Mock
}

func (m *MockHost) CreateBranch(ctx context.Context, name string) (vcs.BranchRef, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(vcs.BranchRef), args.Error(1)
}

func (m *MockHost) Commit(ctx context.Context, ref vcs.BranchRef, change vcs.Change, message string) (vcs.CommitRef, error) {
	args := m.Called(ctx, ref, change, message)
	return args.Get(0).(vcs.CommitRef), args.Error(1)
}

func (m *MockHost) OpenReviewRequest(ctx context.Context, ref vcs.BranchRef, title, description string) (vcs.ReviewRequestRef, error) {
	args := m.Called(ctx, ref, title, description)
	return args.Get(0).(vcs.ReviewRequestRef), args.Error(1)
}

func (m *MockHost) DiscardBranch(ctx context.Context, ref vcs.BranchRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

const dbSource = `import sqlite3

def get_user(conn, user_id):
    cur = conn.cursor()
    cur.execute("SELECT * FROM users WHERE id = " + user_id)
    return cur.fetchone()
`

const dbPatch = `--- a/app/db.py
+++ b/app/db.py
@@ -3,4 +3,4 @@
 def get_user(conn, user_id):
     cur = conn.cursor()
-    cur.execute("SELECT * FROM users WHERE id = " + user_id)
+    cur.execute("SELECT * FROM users WHERE id = ?", (user_id,))
     return cur.fetchone()
`

const runPatch = `--- a/app/run.py
+++ b/app/run.py
@@ -1,3 +1,3 @@
 import os
 def run(name):
-    os.system("ls " + name)
+    subprocess.run(["ls", name], check=True)
`

var testBranch = vcs.BranchRef{Name: "security-fixes-20240102-030405", Base: "main", BaseHash: "abc"}

func entry(id, category, path string, score float64, rank int, patch string) Entry {
	return Entry{
		Finding: findings.Finding{
			ID:       id,
			Category: category,
			Location: findings.Location{Path: path, StartLine: 5},
		},
		Score: triage.SeverityScore{CVSSScore: score, Band: triage.BandFor(score)},
		Rank:  rank,
		Round: 1,
		Plan:  provider.Plan{Summary: "use a parameterized query"},
		Patch: patch,
		Test:  provider.TestFile{Path: "tests/test_" + id + ".py", Content: "def test(): pass\n"},
	}
}

func TestCommitMessage(t *testing.T) {
	e := entry("0123456789abcdef", "sql_injection", "app/db.py", 9.8, 1, dbPatch)
	msg := CommitMessage(e)

	assert.Contains(t, msg, "fix(security): sql_injection in app/db.py [0123456789ab] severity=critical cvss=9.8\n")
	assert.Contains(t, msg, "Finding: 0123456789abcdef")
	assert.Contains(t, msg, "Test: tests/test_0123456789abcdef.py")
}

func TestManagerLifecycle(t *testing.T) {
	host := &MockHost{}
	ctx := context.Background()
	first := entry("f1", "sql_injection", "app/db.py", 9.8, 1, dbPatch)
	second := entry("f2", "command_injection", "app/run.py", 9.1, 2, runPatch)

	host.On("CreateBranch", ctx, "").Return(testBranch, nil)
	host.On("Commit", ctx, testBranch, vcs.Change{
		Patch: runPatch,
		Files: []vcs.File{{Path: second.Test.Path, Content: second.Test.Content}},
	}, CommitMessage(second)).Return(vcs.CommitRef{Hash: "2222222222"}, nil)
	host.On("Commit", ctx, testBranch, mock.MatchedBy(func(c vcs.Change) bool { return c.Patch == dbPatch }), CommitMessage(first)).
		Return(vcs.CommitRef{Hash: "1111111111"}, nil)
	host.On("OpenReviewRequest", ctx, testBranch, config.DefaultPRTitle, mock.AnythingOfType("string")).
		Return(vcs.ReviewRequestRef{ID: "7", URL: "https://example.com/pr/7"}, nil)

	m := New(hclog.NewNullLogger(), host, Options{})
	ref, err := m.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, testBranch, ref)

	// completion order differs from triage order
	require.NoError(t, m.Accept(ctx, second))
	require.NoError(t, m.Accept(ctx, first))

	res, err := m.Finalize(ctx, Summary{
		RunID:     "run-1",
		StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Threshold: triage.Critical,
		Skipped: []triage.Ranked{{
			Finding:    findings.Finding{ID: "f3", Category: "xss", Location: findings.Location{Path: "web/index.js"}},
			Score:      triage.SeverityScore{CVSSScore: 2.1, Band: triage.Low},
			SkipReason: triage.SkipSeverity,
		}},
		Unfixed: []Unfixed{{
			Finding: findings.Finding{ID: "f4", Category: "weak_crypto", Location: findings.Location{Path: "app/hash.py"}},
			Score:   triage.SeverityScore{CVSSScore: 9.0, Band: triage.Critical},
			Outcome: orchestrator.Outcome{Kind: orchestrator.Exhausted, Reason: "no valid fix after 3 rounds"},
		}},
	})
	require.NoError(t, err)
	host.AssertExpectations(t)

	require.Len(t, res.Entries, 2)
	assert.Equal(t, "f1", res.Entries[0].Finding.ID)
	assert.Equal(t, "1111111111", res.Entries[0].Commit.Hash)
	assert.Equal(t, "https://example.com/pr/7", res.ReviewRequest.URL)
	assert.Equal(t, testBranch.Name, res.Branch.Name)

	d := res.Description
	assert.Contains(t, d, "## Security: AI-Reviewed Security Fixes")
	assert.Contains(t, d, "run `run-1`")
	assert.Contains(t, d, "### Fixed (2)")
	assert.Contains(t, d, "Sql Injection `f1`")
	assert.Contains(t, d, "`11111111`")
	assert.Contains(t, d, "### Not fixed (1)")
	assert.Contains(t, d, "Exhausted(no valid fix after 3 rounds)")
	assert.Contains(t, d, "### Skipped (1)")
	assert.Contains(t, d, "Xss `f3` low (2.1)")
	assert.Less(t, strings.Index(d, "`f1`"), strings.Index(d, "`f2`"))
}

func TestManagerAcceptConflict(t *testing.T) {
	host := &MockHost{}
	ctx := context.Background()
	conflict := &errors.ConflictError{Branch: testBranch.Name, Path: "app/db.py", Err: stderrors.New("hunk 1 does not match")}

	host.On("CreateBranch", ctx, "").Return(testBranch, nil)
	host.On("Commit", ctx, testBranch, mock.MatchedBy(func(c vcs.Change) bool { return c.Patch == dbPatch }), mock.Anything).
		Return(vcs.CommitRef{}, conflict).Once()
	host.On("Commit", ctx, testBranch, mock.MatchedBy(func(c vcs.Change) bool { return c.Patch == runPatch }), mock.Anything).
		Return(vcs.CommitRef{Hash: "2"}, nil).Once()

	m := New(hclog.NewNullLogger(), host, Options{})
	_, err := m.Begin(ctx)
	require.NoError(t, err)

	err = m.Accept(ctx, entry("f1", "sql_injection", "app/db.py", 9.8, 1, dbPatch))
	var got *errors.ConflictError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, orchestrator.Outcome{Kind: orchestrator.Errored, Reason: orchestrator.ReasonConflict}, OutcomeForError(err))

	require.NoError(t, m.Accept(ctx, entry("f2", "command_injection", "app/run.py", 9.1, 2, runPatch)))
	entries := m.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "f2", entries[0].Finding.ID)
	host.AssertExpectations(t)
}

func TestManagerAbort(t *testing.T) {
	host := &MockHost{}
	ctx, cancel := context.WithCancel(context.Background())

	host.On("CreateBranch", ctx, "").Return(testBranch, nil)
	host.On("Commit", ctx, testBranch, mock.Anything, mock.Anything).Return(vcs.CommitRef{Hash: "1"}, nil)
	host.On("DiscardBranch", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), testBranch).Return(nil)

	m := New(hclog.NewNullLogger(), host, Options{})
	_, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Accept(ctx, entry("f1", "sql_injection", "app/db.py", 9.8, 1, dbPatch)))

	cancel()
	require.NoError(t, m.Abort(ctx, "cancelled"))
	assert.Empty(t, m.Entries())
	host.AssertCalled(t, "DiscardBranch", mock.Anything, testBranch)

	assert.ErrorIs(t, m.Accept(context.Background(), entry("f2", "xss", "a.js", 9.5, 2, runPatch)), ErrNotOpen)
	_, err = m.Finalize(context.Background(), Summary{})
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestManagerFinalizeWithoutFixesDiscards(t *testing.T) {
	host := &MockHost{}
	ctx := context.Background()
	host.On("CreateBranch", ctx, "").Return(testBranch, nil)
	host.On("DiscardBranch", ctx, testBranch).Return(nil)

	m := New(hclog.NewNullLogger(), host, Options{})
	_, err := m.Begin(ctx)
	require.NoError(t, err)

	res, err := m.Finalize(ctx, Summary{RunID: "run-2"})
	require.NoError(t, err)
	assert.Nil(t, res.Branch)
	assert.Nil(t, res.ReviewRequest)
	assert.Contains(t, res.Description, "No finding was fixed in this run.")
	host.AssertNotCalled(t, "OpenReviewRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManagerDryRun(t *testing.T) {
	host := &MockHost{}
	ctx := context.Background()

	m := New(hclog.NewNullLogger(), host, Options{DryRun: true, Title: "Fixes"})
	_, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Accept(ctx, entry("f1", "sql_injection", "app/db.py", 9.8, 1, dbPatch)))

	res, err := m.Finalize(ctx, Summary{RunID: "run-3"})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
	assert.Nil(t, res.Entries[0].Commit)
	assert.Contains(t, res.Description, "## Fixes")
	assert.Contains(t, res.Description, "Dry run: nothing was committed.")
	host.AssertNotCalled(t, "CreateBranch", mock.Anything, mock.Anything)
	host.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManagerNilHostIsDryRun(t *testing.T) {
	m := New(hclog.NewNullLogger(), nil, Options{})
	assert.True(t, m.DryRun())
}

func TestManagerBeginTwice(t *testing.T) {
	m := New(hclog.NewNullLogger(), nil, Options{})
	_, err := m.Begin(context.Background())
	require.NoError(t, err)
	_, err = m.Begin(context.Background())
	assert.Error(t, err)
}

func TestOutcomeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want orchestrator.Outcome
	}{
		{"conflict", &errors.ConflictError{Err: stderrors.New("x")}, orchestrator.Outcome{Kind: orchestrator.Errored, Reason: orchestrator.ReasonConflict}},
		{"cancelled", context.Canceled, orchestrator.Outcome{Kind: orchestrator.Errored, Reason: orchestrator.ReasonCancelled}},
		{"other", stderrors.New("disk full"), orchestrator.Outcome{Kind: orchestrator.Errored, Reason: "disk full"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeForError(tt.err))
		})
	}
}

// TestAbortLeavesNoCommitsOnGitHost drives a real repository through a run
// that is cancelled after two fixes were committed.
func TestAbortLeavesNoCommitsOnGitHost(t *testing.T) {
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, content := range map[string]string{
		"app/db.py":  dbSource,
		"app/run.py": "import os\ndef run(name):\n    os.system(\"ls \" + name)\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	base, err := wt.Commit("initial", &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Validation.SourceRoot = dir
	cfg.VCS.BaseBranch = "master"
	host, err := git.Open(cfg, hclog.NewNullLogger(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	m := New(hclog.NewNullLogger(), host, Options{})
	ref, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Accept(ctx, entry("f1", "sql_injection", "app/db.py", 9.8, 1, dbPatch)))
	require.NoError(t, m.Accept(ctx, entry("f2", "command_injection", "app/run.py", 9.1, 2, runPatch)))

	cancel()
	require.NoError(t, m.Abort(ctx, "cancelled"))

	_, err = repo.Reference(plumbing.NewBranchReferenceName(ref.Name), true)
	assert.Error(t, err, "fix branch survived abort")

	branches, err := repo.Branches()
	require.NoError(t, err)
	require.NoError(t, branches.ForEach(func(r *plumbing.Reference) error {
		assert.Equal(t, base, r.Hash(), "branch %s carries run commits", r.Name())
		return nil
	}))

	data, err := os.ReadFile(filepath.Join(dir, "app", "db.py"))
	require.NoError(t, err)
	assert.Equal(t, dbSource, string(data))
}
