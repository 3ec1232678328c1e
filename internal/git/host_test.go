package git

import (
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/scan-io-git/autofix/internal/vcs"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

func TestBranchName(t *testing.T) {
	if got := BranchName(fixedNow); got != "security-fixes-20240102-030405" {
		t.Fatalf("unexpected branch name %q", got)
	}
}

func TestCreateBranch(t *testing.T) {
	repo, host := setupHostRepo(t)
	base := branchHash(t, repo, "master")

	ref, err := host.CreateBranch(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if ref.Name != "security-fixes-20240102-030405" {
		t.Errorf("unexpected name %q", ref.Name)
	}
	if ref.Base != "master" || ref.BaseHash != base.String() {
		t.Errorf("unexpected base %q %q", ref.Base, ref.BaseHash)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Name() != plumbing.NewBranchReferenceName(ref.Name) {
		t.Errorf("HEAD is %s, want the fix branch", head.Name())
	}
}

func TestCreateBranchFallsBackToHead(t *testing.T) {
	_, host := setupHostRepo(t)
	host.cfg.VCS.BaseBranch = "main"

	ref, err := host.CreateBranch(context.Background(), "fixes")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if ref.Base != "master" {
		t.Fatalf("expected HEAD branch as base, got %q", ref.Base)
	}
}

func TestCreateBranchRejectsDirtyWorktree(t *testing.T) {
	_, host := setupHostRepo(t)
	if err := os.WriteFile(filepath.Join(host.Root(), "README.md"), []byte("changed\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := host.CreateBranch(context.Background(), "")
	if !stderrors.Is(err, ErrDirtyWorktree) {
		t.Fatalf("expected ErrDirtyWorktree, got %v", err)
	}
}

func TestCreateBranchIgnoresUntracked(t *testing.T) {
	_, host := setupHostRepo(t)
	if err := os.WriteFile(filepath.Join(host.Root(), "notes.txt"), []byte("scratch\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := host.CreateBranch(context.Background(), ""); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
}

func TestCommit(t *testing.T) {
	repo, host := setupHostRepo(t)
	ctx := context.Background()
	ref, err := host.CreateBranch(ctx, "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	change := vcs.Change{
		Patch: dbPatch,
		Files: []vcs.File{{Path: "tests/test_db.py", Content: "def test_param():\n    pass\n"}},
	}
	commit, err := host.Commit(ctx, ref, change, "fix(security): sql_injection in app/db.py")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if commit.Hash != branchHash(t, repo, ref.Name).String() {
		t.Fatalf("branch does not point at the new commit")
	}
	if branchHash(t, repo, "master").String() != ref.BaseHash {
		t.Fatalf("base branch moved")
	}

	c, err := repo.CommitObject(plumbing.NewHash(commit.Hash))
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	if c.Author.Name != "autofix" {
		t.Errorf("unexpected author %q", c.Author.Name)
	}
	tree, err := c.Tree()
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	f, err := tree.File("app/db.py")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	content, _ := f.Contents()
	if !strings.Contains(content, `WHERE id = ?", (user_id,))`) {
		t.Errorf("patch not committed:\n%s", content)
	}
	if _, err := tree.File("tests/test_db.py"); err != nil {
		t.Errorf("test file not committed: %v", err)
	}

	w, _ := repo.Worktree()
	status, err := w.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.IsClean() {
		t.Errorf("worktree not clean after commit:\n%s", status)
	}
}

func TestCommitConflict(t *testing.T) {
	repo, host := setupHostRepo(t)
	ctx := context.Background()
	ref, err := host.CreateBranch(ctx, "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	first, err := host.Commit(ctx, ref, vcs.Change{Patch: cmdPatch}, "first")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	_, err = host.Commit(ctx, ref, vcs.Change{
		Patch: stalePatch,
		Files: []vcs.File{{Path: "tests/test_stale.py", Content: "x\n"}},
	}, "second")
	var conflict *errors.ConflictError
	if !stderrors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Branch != ref.Name || conflict.Path != "app/db.py" {
		t.Errorf("unexpected conflict %+v", conflict)
	}

	if branchHash(t, repo, ref.Name).String() != first.Hash {
		t.Fatalf("conflicting change moved the branch")
	}
	if _, err := os.Stat(filepath.Join(host.Root(), "tests", "test_stale.py")); !os.IsNotExist(err) {
		t.Errorf("test file of the conflicting change was left behind")
	}

	// the branch stays usable
	if _, err := host.Commit(ctx, ref, vcs.Change{Patch: dbPatch}, "third"); err != nil {
		t.Fatalf("Commit after conflict: %v", err)
	}
}

func TestCommitRemovesFilesOfPartiallyWrittenPatch(t *testing.T) {
	repo, host := setupHostRepo(t)
	ctx := context.Background()
	ref, err := host.CreateBranch(ctx, "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	// README.md is a file, so the second file cannot be written.
	p := `--- /dev/null
+++ b/tests/test_new.py
@@ -0,0 +1 @@
+def test_new(): pass
--- /dev/null
+++ b/README.md/notes.py
@@ -0,0 +1 @@
+x = 1
`
	_, err = host.Commit(ctx, ref, vcs.Change{Patch: p}, "partial")
	var conflict *errors.ConflictError
	if !stderrors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(host.Root(), "tests", "test_new.py")); !os.IsNotExist(err) {
		t.Errorf("file written before the failure was left behind")
	}
	if branchHash(t, repo, ref.Name).String() != ref.BaseHash {
		t.Errorf("failed change moved the branch")
	}
}

func TestCommitWaitsForSourceReaders(t *testing.T) {
	_, host := setupHostRepo(t)
	ctx := context.Background()
	ref, err := host.CreateBranch(ctx, "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	dbFile := filepath.Join(host.Root(), "app", "db.py")

	reading := make(chan struct{})
	release := make(chan struct{})
	readDone := make(chan error, 1)
	go func() {
		readDone <- host.ReadSource(func() error {
			close(reading)
			<-release
			data, err := os.ReadFile(dbFile)
			if err != nil {
				return err
			}
			if string(data) != dbSource {
				return stderrors.New("source changed while it was being read")
			}
			return nil
		})
	}()
	<-reading

	committed := make(chan error, 1)
	go func() {
		_, err := host.Commit(ctx, ref, vcs.Change{Patch: dbPatch}, "fix")
		committed <- err
	}()

	select {
	case err := <-committed:
		t.Fatalf("Commit finished while the source was being read: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	if err := <-readDone; err != nil {
		t.Fatalf("ReadSource: %v", err)
	}
	select {
	case err := <-committed:
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Commit did not finish after the read")
	}
}

func TestCommitRejectsEscapingFile(t *testing.T) {
	repo, host := setupHostRepo(t)
	ctx := context.Background()
	ref, err := host.CreateBranch(ctx, "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	_, err = host.Commit(ctx, ref, vcs.Change{
		Patch: dbPatch,
		Files: []vcs.File{{Path: "../outside.py", Content: "x\n"}},
	}, "escape")
	if err == nil {
		t.Fatalf("expected an error for a file outside the repository")
	}
	if branchHash(t, repo, ref.Name).String() != ref.BaseHash {
		t.Fatalf("branch moved after a rejected change")
	}
	data, _ := os.ReadFile(filepath.Join(host.Root(), "app", "db.py"))
	if string(data) != dbSource {
		t.Errorf("worktree not restored:\n%s", data)
	}
}

func TestCommitRequiresFixBranch(t *testing.T) {
	_, host := setupHostRepo(t)
	_, err := host.Commit(context.Background(), vcs.BranchRef{Name: "other"}, vcs.Change{Patch: dbPatch}, "x")
	if !stderrors.Is(err, ErrWrongBranch) {
		t.Fatalf("expected ErrWrongBranch, got %v", err)
	}
}

func TestCommitCancelled(t *testing.T) {
	_, host := setupHostRepo(t)
	ref, err := host.CreateBranch(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := host.Commit(ctx, ref, vcs.Change{Patch: dbPatch}, "x"); !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDiscardBranchLeavesNoCommits(t *testing.T) {
	repo, host := setupHostRepo(t)
	ctx := context.Background()
	base := branchHash(t, repo, "master")

	ref, err := host.CreateBranch(ctx, "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	for i, p := range []string{dbPatch, cmdPatch} {
		if _, err := host.Commit(ctx, ref, vcs.Change{Patch: p}, "run commit"); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
	}
	if n := commitsReachable(t, repo, "run commit"); n != 2 {
		t.Fatalf("expected 2 run commits before discard, got %d", n)
	}

	if err := host.DiscardBranch(ctx, ref); err != nil {
		t.Fatalf("DiscardBranch: %v", err)
	}

	if n := commitsReachable(t, repo, "run commit"); n != 0 {
		t.Fatalf("expected no run commits after discard, got %d", n)
	}
	if _, err := repo.Reference(plumbing.NewBranchReferenceName(ref.Name), true); err == nil {
		t.Fatalf("fix branch still exists")
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Name().Short() != "master" || head.Hash() != base {
		t.Fatalf("HEAD at %s %s, want master %s", head.Name(), head.Hash(), base)
	}
	data, _ := os.ReadFile(filepath.Join(host.Root(), "app", "db.py"))
	if string(data) != dbSource {
		t.Errorf("worktree still carries fixes")
	}
}

func TestSubfolderSourceRoot(t *testing.T) {
	repo, host := setupHostRepo(t)
	root := host.Root()
	host.cfg.Validation.SourceRoot = filepath.Join(root, "app")

	sub, err := Open(host.cfg, host.logger, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sub.Root() != root {
		t.Fatalf("root %q, want %q", sub.Root(), root)
	}

	ref, err := sub.CreateBranch(context.Background(), "sub")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	relPatch := strings.ReplaceAll(dbPatch, "app/db.py", "db.py")
	if _, err := sub.Commit(context.Background(), ref, vcs.Change{Patch: relPatch}, "sub fix"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	c, err := repo.CommitObject(branchHash(t, repo, "sub"))
	if err != nil {
		t.Fatalf("CommitObject: %v", err)
	}
	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Name != "app/db.py" {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestOpenReviewRequestWithoutPush(t *testing.T) {
	_, host := setupHostRepo(t)
	requester := &recordingRequester{}
	host.SetRequester(requester)
	no := false
	host.cfg.VCS.Push = &no
	host.cfg.VCS.Labels = []string{"security"}

	ref, err := host.CreateBranch(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	got, err := host.OpenReviewRequest(context.Background(), ref, "title", "body")
	if err != nil {
		t.Fatalf("OpenReviewRequest: %v", err)
	}
	if got.URL != "https://example.com/pr/1" {
		t.Errorf("unexpected ref %+v", got)
	}
	if len(requester.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(requester.requests))
	}
	req := requester.requests[0]
	if req.Head != ref.Name || req.Base != "master" || req.Title != "title" || req.Description != "body" {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.Labels) != 1 || req.Labels[0] != "security" {
		t.Errorf("unexpected labels %v", req.Labels)
	}
	if host.Pushed(ref.Name) {
		t.Errorf("branch marked as pushed")
	}
}

func TestOpenReviewRequestPushesAndDiscardDeletesRemote(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary required for the file transport")
	}

	repo, host := setupHostRepo(t)
	remoteDir := filepath.Join(t.TempDir(), "origin.git")
	remote, err := git.PlainInit(remoteDir, true)
	if err != nil {
		t.Fatalf("PlainInit remote: %v", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remoteDir}}); err != nil {
		t.Fatalf("CreateRemote: %v", err)
	}
	if host.RemoteURL() != remoteDir {
		t.Fatalf("unexpected remote URL %q", host.RemoteURL())
	}

	yes := true
	host.cfg.VCS.Push = &yes
	host.SetRequester(&recordingRequester{})

	ctx := context.Background()
	ref, err := host.CreateBranch(ctx, "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	commit, err := host.Commit(ctx, ref, vcs.Change{Patch: dbPatch}, "fix")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := host.OpenReviewRequest(ctx, ref, "t", "d"); err != nil {
		t.Fatalf("OpenReviewRequest: %v", err)
	}
	if got := branchHash(t, remote, ref.Name); got.String() != commit.Hash {
		t.Fatalf("remote branch at %s, want %s", got, commit.Hash)
	}

	if err := host.DiscardBranch(ctx, ref); err != nil {
		t.Fatalf("DiscardBranch: %v", err)
	}
	if _, err := remote.Reference(plumbing.NewBranchReferenceName(ref.Name), true); err == nil {
		t.Fatalf("remote branch survived discard")
	}
}
