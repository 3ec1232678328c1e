package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const original = `import sqlite3

def get_user(conn, user_id):
    cur = conn.cursor()
    cur.execute("SELECT * FROM users WHERE id = " + user_id)
    return cur.fetchone()

def count(conn):
    return conn.execute("SELECT count(*) FROM users").fetchone()
`

const fixPatch = `--- a/app/db.py
+++ b/app/db.py
@@ -3,4 +3,4 @@
 def get_user(conn, user_id):
     cur = conn.cursor()
-    cur.execute("SELECT * FROM users WHERE id = " + user_id)
+    cur.execute("SELECT * FROM users WHERE id = ?", (user_id,))
     return cur.fetchone()
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func readFile(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name))
	require.NoError(t, err)
	return string(data)
}

func TestApplyModifiesFile(t *testing.T) {
	root := writeTree(t, map[string]string{"app/db.py": original})

	touched, err := Apply(root, fixPatch)
	require.NoError(t, err)
	assert.Equal(t, []string{"app/db.py"}, touched)

	got := readFile(t, root, "app/db.py")
	assert.Contains(t, got, `WHERE id = ?", (user_id,))`)
	assert.NotContains(t, got, `+ user_id)`)
	assert.Contains(t, got, "def count(conn):")
	assert.Equal(t, byte('\n'), got[len(got)-1])
}

func TestApplyWithDrift(t *testing.T) {
	root := writeTree(t, map[string]string{"app/db.py": "# header\n# more\n" + original})

	_, err := Apply(root, fixPatch)
	require.NoError(t, err)
	assert.Contains(t, readFile(t, root, "app/db.py"), `WHERE id = ?"`)
}

func TestApplyConflictLeavesTreeUntouched(t *testing.T) {
	changed := `import sqlite3

def get_user(conn, user_id):
    cur = conn.cursor()
    cur.execute(build_query(user_id))
    return cur.fetchone()
`
	root := writeTree(t, map[string]string{"app/db.py": changed, "app/other.py": "x = 1\n"})

	twoFiles := `--- a/app/other.py
+++ b/app/other.py
@@ -1 +1 @@
-x = 1
+x = 2
` + fixPatch

	_, err := Apply(root, twoFiles)
	require.Error(t, err)
	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "app/db.py", applyErr.Path)
	assert.Equal(t, 1, applyErr.Hunk)

	assert.Equal(t, "x = 1\n", readFile(t, root, "app/other.py"), "no file is written when one diff fails")
	assert.Equal(t, changed, readFile(t, root, "app/db.py"))
}

func TestApplyCreatesAndDeletesFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"old.txt": "bye\n"})

	p := `--- /dev/null
+++ b/tests/test_db.py
@@ -0,0 +1,2 @@
+def test_db():
+    assert True
--- a/old.txt
+++ /dev/null
@@ -1 +0,0 @@
-bye
`
	touched, err := Apply(root, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.txt", "tests/test_db.py"}, touched)
	assert.Equal(t, "def test_db():\n    assert True\n", readFile(t, root, "tests/test_db.py"))
	_, err = os.Stat(filepath.Join(root, "old.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyReportsFilesWrittenBeforeFailure(t *testing.T) {
	// "blocked" is a file, so nothing can be written below it.
	root := writeTree(t, map[string]string{"blocked": "x\n"})

	p := `--- /dev/null
+++ b/tests/test_db.py
@@ -0,0 +1 @@
+def test_db(): pass
--- /dev/null
+++ b/blocked/conf.py
@@ -0,0 +1 @@
+DEBUG = False
`
	touched, err := Apply(root, p)
	require.Error(t, err)
	assert.Equal(t, []string{"blocked/conf.py", "tests/test_db.py"}, touched)
	assert.Equal(t, "def test_db(): pass\n", readFile(t, root, "tests/test_db.py"))
}

func TestApplyRejects(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a\n"})

	tests := []struct {
		name  string
		patch string
	}{
		{"empty", ""},
		{"missing file", "--- a/missing.txt\n+++ b/missing.txt\n@@ -1 +1 @@\n-a\n+b\n"},
		{"escapes root", "--- a/../outside.txt\n+++ b/../outside.txt\n@@ -1 +1 @@\n-a\n+b\n"},
		{"create existing", "--- /dev/null\n+++ b/a.txt\n@@ -0,0 +1 @@\n+x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(root, tt.patch)
			assert.Error(t, err)
			assert.Equal(t, "a\n", readFile(t, root, "a.txt"))
		})
	}
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(fixPatch)
	require.NoError(t, err)
	assert.Equal(t, []string{"app/db.py"}, s.Files)
	assert.Equal(t, 1, s.Added+s.Changed)
	assert.Equal(t, 1, s.Deleted+s.Changed)
}

func TestStatFiles(t *testing.T) {
	p := `--- /dev/null
+++ b/tests/test_db.py
@@ -0,0 +1,2 @@
+def test_db():
+    assert True
--- a/old.txt
+++ /dev/null
@@ -1 +0,0 @@
-bye
`
	stats, err := StatFiles(p)
	require.NoError(t, err)
	assert.Equal(t, []FileStat{
		{Path: "tests/test_db.py", Added: 2, Created: true},
		{Path: "old.txt", Deleted: 1, Removed: true},
	}, stats)
}
