package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/vcs"
	"github.com/scan-io-git/autofix/pkg/shared/config"
)

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

// stalePatch expects context that is not in the tree.
const stalePatch = `--- a/app/db.py
+++ b/app/db.py
@@ -3,4 +3,4 @@
 def fetch_user(conn, uid):
     cur = conn.cursor()
-    cur.execute("SELECT * FROM users WHERE id = " + uid)
+    cur.execute("SELECT * FROM users WHERE id = ?", (uid,))
     return cur.fetchone()
`

const cmdPatch = `--- a/app/run.py
+++ b/app/run.py
@@ -1,3 +1,3 @@
 import os
 def run(name):
-    os.system("ls " + name)
+    subprocess.run(["ls", name], check=True)
`

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type recordingRequester struct {
	requests []vcs.ReviewRequest
}

func (r *recordingRequester) Name() string { return "recording" }

func (r *recordingRequester) OpenReviewRequest(_ context.Context, req vcs.ReviewRequest) (vcs.ReviewRequestRef, error) {
	r.requests = append(r.requests, req)
	return vcs.ReviewRequestRef{ID: "1", URL: "https://example.com/pr/1"}, nil
}

// setupHostRepo creates a repository with one base commit on master and
// returns it together with an opened Host.
func setupHostRepo(t *testing.T) (*git.Repository, *Host) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	commitFiles(t, wt, map[string]string{
		"app/db.py":  dbSource,
		"app/run.py": "import os\ndef run(name):\n    os.system(\"ls \" + name)\n",
		"README.md":  "demo\n",
	}, "initial commit")

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Validation.SourceRoot = dir
	cfg.VCS.BaseBranch = "master"

	host, err := Open(cfg, hclog.NewNullLogger(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	host.now = func() time.Time { return fixedNow }
	return repo, host
}

func commitFiles(t *testing.T, wt *git.Worktree, files map[string]string, message string) plumbing.Hash {
	t.Helper()

	for path, content := range files {
		abs := filepath.Join(wt.Filesystem.Root(), path)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", abs, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", abs, err)
		}
		if _, err := wt.Add(path); err != nil {
			t.Fatalf("add %s: %v", path, err)
		}
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return hash
}

func branchHash(t *testing.T, repo *git.Repository, name string) plumbing.Hash {
	t.Helper()
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		t.Fatalf("reference %s: %v", name, err)
	}
	return ref.Hash()
}

// commitsReachable counts commits with message on any local branch.
func commitsReachable(t *testing.T, repo *git.Repository, message string) int {
	t.Helper()
	branches, err := repo.Branches()
	if err != nil {
		t.Fatalf("Branches: %v", err)
	}
	seen := map[plumbing.Hash]bool{}
	count := 0
	err = branches.ForEach(func(ref *plumbing.Reference) error {
		iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
		if err != nil {
			return err
		}
		return iter.ForEach(func(c *object.Commit) error {
			if seen[c.Hash] {
				return nil
			}
			seen[c.Hash] = true
			if c.Message == message {
				count++
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("walk branches: %v", err)
	}
	return count
}
