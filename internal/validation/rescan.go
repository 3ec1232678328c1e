package validation

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/internal/execx"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/files"
)

const (
	RescanTypePattern = "pattern"
	RescanTypeCommand = "command"
	RescanTypePlugin  = "plugin"
)

// NewRescanner builds the rescanner selected by validation.rescan.type.
// The pattern rescanner is used when no type is configured.
func NewRescanner(cfg *config.Config, logger hclog.Logger, runner execx.Runner) (Rescanner, error) {
	rc := cfg.Validation.Rescan
	sourceRoot, err := files.ExpandPath(cfg.Validation.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid source root: %w", err)
	}

	switch strings.ToLower(rc.Type) {
	case "", RescanTypePattern:
		return NewPatternRescanner(logger.Named("pattern"), rc.Patterns)
	case RescanTypeCommand:
		return NewCommandRescanner(logger.Named("command"), runner, sourceRoot, rc.Command, rc.Report, rc.Format)
	case RescanTypePlugin:
		return NewPluginRescanner(cfg, logger.Named("plugin"), sourceRoot, rc.Plugin)
	default:
		return nil, fmt.Errorf("unknown rescan type %q", rc.Type)
	}
}
