package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scan-io-git/autofix/pkg/shared/config"
)

func TestConfigPath(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	path, required := configPath("")
	assert.Equal(t, config.DefaultConfigFile, path)
	assert.False(t, required)

	t.Setenv(config.EnvConfig, "/etc/autofix/config.yml")
	path, required = configPath("")
	assert.Equal(t, "/etc/autofix/config.yml", path)
	assert.True(t, required)

	path, required = configPath("./autofix.yml")
	assert.Equal(t, "./autofix.yml", path)
	assert.True(t, required)
}
