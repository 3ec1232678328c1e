package artifacts

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

// GetArtifactName returns the artifact name of a command launch.
// Example: run_3f2a9c1e_20250915T082846Z.autofix-artifact.
func GetArtifactName(command, id string, t time.Time) string {
	if id == "" {
		return fmt.Sprintf("%s_%s.autofix-artifact", command, t.UTC().Format("20060102T150405Z"))
	}
	return fmt.Sprintf("%s_%s_%s.autofix-artifact", command, id, t.UTC().Format("20060102T150405Z"))
}

// SaveArtifactJSON writes result to <artifacts>/<name>.json and returns the full path.
func SaveArtifactJSON(cfg *config.Config, logger hclog.Logger, command, id string, result interface{}) (string, error) {
	path := filepath.Join(config.GetArtifactsFolder(cfg), GetArtifactName(command, id, time.Now())+".json")

	data, err := json.MarshalIndent(result, "", "    ")
	if err != nil {
		return path, fmt.Errorf("error marshaling the result data: %w", err)
	}
	if err := files.WriteFile(path, data); err != nil {
		return path, fmt.Errorf("error writing artifact: %w", err)
	}
	logger.Debug("artifact saved to file", "path", path)
	return path, nil
}
