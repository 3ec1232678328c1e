package version

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPluginVersions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "semgrep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "semgrep", "VERSION"), []byte(`{"version": "1.2.0", "plugin_type": "scanner"}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bandit"), []byte("binary"), 0o755))

	meta := getPluginVersions(dir)

	assert.Equal(t, PluginMeta{Version: "1.2.0", PluginType: "scanner"}, meta["semgrep"])
	assert.Equal(t, unknownMeta, meta["broken"])
	assert.Equal(t, unknownMeta, meta["bandit"])
}

func TestGetPluginVersionsMissingFolder(t *testing.T) {
	assert.Empty(t, getPluginVersions(filepath.Join(t.TempDir(), "missing")))
}

func TestPrintVersionInfo(t *testing.T) {
	var buf bytes.Buffer
	printVersionInfo(&buf, &CoreVersions{
		Versions:    Versions{Version: "0.3.0", GolangVersion: "go1.22.4", BuildTime: "2024-06-01"},
		PluginsMeta: map[string]PluginMeta{"semgrep": {Version: "1.2.0", PluginType: "scanner"}},
	})

	want := "Core Version: v0.3.0\n" +
		"Plugin Versions:\n" +
		"  semgrep: v1.2.0 (Type: scanner)\n" +
		"Go Version: go1.22.4\n" +
		"Build Time: 2024-06-01\n"
	assert.Equal(t, want, buf.String())
}
