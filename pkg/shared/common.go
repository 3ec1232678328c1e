package shared

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-plugin"

	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/logger"
)

const (
	PluginTypeScanner string = "scanner"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AUTOFIX",
	MagicCookieValue: "5f1c0e7a9b3d4e8f6a2b1c0d9e8f7a6b5c4d3e2f",
}

var PluginMap = map[string]plugin.Plugin{
	PluginTypeScanner: &ScannerPlugin{},
}

// WithPlugin starts the named plugin from the plugins folder, dispenses pluginType
// and calls f with it. The plugin process is killed when f returns.
func WithPlugin(cfg *config.Config, loggerName string, pluginType string, pluginName string, f func(interface{}) error) error {
	logger := logger.NewLogger(cfg, loggerName)

	pluginPath := filepath.Join(config.GetPluginsFolder(cfg), pluginName)
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap,
		Cmd:             exec.Command(pluginPath),
		Logger:          logger,
	})
	defer client.Kill()

	rpcClient, err := client.Client()
	if err != nil {
		logger.Error("failed to start plugin", "plugin", pluginName, "error", err)
		return fmt.Errorf("failed to start plugin %q: %w", pluginName, err)
	}

	raw, err := rpcClient.Dispense(pluginType)
	if err != nil {
		logger.Error("failed to dispense plugin", "plugin", pluginName, "type", pluginType, "error", err)
		return fmt.Errorf("failed to dispense plugin %q: %w", pluginName, err)
	}

	return f(raw)
}

// ForEachWithBoundedGoroutines calls f for every value with at most limit calls
// running at once. Values are dispatched in slice order; once ctx is done no
// further values are dispatched and their indexes are returned.
func ForEachWithBoundedGoroutines[T any](ctx context.Context, limit int, values []T, f func(ctx context.Context, i int, value T)) []int {
	if limit <= 0 {
		limit = 1
	}
	guard := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var skipped []int

	for i, value := range values {
		select {
		case guard <- struct{}{}: // would block if guard channel is already filled
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			for j := i; j < len(values); j++ {
				skipped = append(skipped, j)
			}
			break
		}

		wg.Add(1)
		go func(i int, value T) {
			defer wg.Done()
			defer func() { <-guard }()
			f(ctx, i, value)
		}(i, value)
	}
	wg.Wait()
	return skipped
}
