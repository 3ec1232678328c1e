package version

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/autofix/pkg/shared/config"
)

var (
	AppConfig     *config.Config
	CoreVersion   = "unknown"
	GolangVersion = "unknown"
	BuildTime     = "unknown"
)

// Versions holds the build information of the binary.
type Versions struct {
	Version       string `json:"version"`
	GolangVersion string `json:"golang_version"`
	BuildTime     string `json:"build_time"`
}

// CoreVersions holds version information for the core application and plugins.
type CoreVersions struct {
	Versions    Versions              `json:"versions"`
	PluginsMeta map[string]PluginMeta `json:"plugins_meta"`
}

// PluginMeta holds version information for a plugin.
type PluginMeta struct {
	Version    string `json:"version"`
	PluginType string `json:"plugin_type"`
}

var unknownMeta = PluginMeta{Version: "unknown", PluginType: "unknown"}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewVersionCmd creates a new cobra.Command for the version command.
func NewVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:                   "version [--json]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Print the version number of the application and plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			version := CoreVersions{
				Versions: Versions{
					Version:       CoreVersion,
					GolangVersion: GolangVersion,
					BuildTime:     BuildTime,
				},
				PluginsMeta: getPluginVersions(config.GetPluginsFolder(AppConfig)),
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version)
			}
			printVersionInfo(cmd.OutOrStdout(), &version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the versions as JSON.")
	return cmd
}

// readVersionFile reads and parses the version file as JSON.
func readVersionFile(versionFilePath string) PluginMeta {
	var pm PluginMeta
	data, err := os.ReadFile(versionFilePath)
	if err != nil {
		return unknownMeta
	}
	if err := json.Unmarshal(data, &pm); err != nil {
		return unknownMeta
	}
	return pm
}

// getPluginVersions reads the VERSION file of every plugin. Plugin binaries
// shipped without one are listed as unknown.
func getPluginVersions(pluginsDir string) map[string]PluginMeta {
	pluginsMeta := make(map[string]PluginMeta)
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return pluginsMeta
	}
	for _, entry := range entries {
		if entry.IsDir() {
			pluginsMeta[entry.Name()] = readVersionFile(filepath.Join(pluginsDir, entry.Name(), "VERSION"))
			continue
		}
		if _, ok := pluginsMeta[entry.Name()]; !ok {
			pluginsMeta[entry.Name()] = unknownMeta
		}
	}
	return pluginsMeta
}

// printVersionInfo prints the version information for the core application and plugins.
func printVersionInfo(w io.Writer, versions *CoreVersions) {
	fmt.Fprintf(w, "Core Version: v%s\n", versions.Versions.Version)
	if len(versions.PluginsMeta) > 0 {
		fmt.Fprintln(w, "Plugin Versions:")
		names := make([]string, 0, len(versions.PluginsMeta))
		for name := range versions.PluginsMeta {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			meta := versions.PluginsMeta[name]
			fmt.Fprintf(w, "  %s: v%s (Type: %s)\n", name, meta.Version, meta.PluginType)
		}
	}
	fmt.Fprintf(w, "Go Version: %s\n", versions.Versions.GolangVersion)
	fmt.Fprintf(w, "Build Time: %s\n", versions.Versions.BuildTime)
}
