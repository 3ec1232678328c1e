package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
)

// GetBoolValue retrieves a boolean value from a nested struct based on a dot-separated path.
// It returns the provided defaultValue if the specified field is not explicitly set or is nil.
func GetBoolValue(config interface{}, fieldPath string, defaultValue bool) bool {
	if config == nil {
		return defaultValue
	}

	val := reflect.ValueOf(config)
	for _, field := range strings.Split(fieldPath, ".") {
		if val.Kind() == reflect.Ptr {
			if val.IsNil() {
				return defaultValue
			}
			val = val.Elem()
		}
		if val.Kind() != reflect.Struct {
			return defaultValue
		}
		val = val.FieldByName(field)
		if !val.IsValid() {
			return defaultValue
		}
	}

	if val.Kind() == reflect.Ptr && !val.IsNil() {
		return val.Elem().Bool()
	} else if val.Kind() == reflect.Bool {
		return val.Bool()
	}

	return defaultValue
}

// SetThen returns value when it is set, otherwise defaultValue.
func SetThen[T any](value T, defaultValue T) T {
	if reflect.ValueOf(&value).Elem().IsZero() {
		return defaultValue
	}
	return value
}

// GetHome returns the autofix home folder.
func GetHome(cfg *Config) string {
	if cfg != nil && cfg.Autofix.HomeFolder != "" {
		return cfg.Autofix.HomeFolder
	}
	if env := os.Getenv(EnvHome); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autofix"
	}
	return filepath.Join(home, ".autofix")
}

// GetPluginsFolder returns the folder scanner plugins are loaded from.
func GetPluginsFolder(cfg *Config) string {
	if cfg != nil && cfg.Autofix.PluginsFolder != "" {
		return cfg.Autofix.PluginsFolder
	}
	return filepath.Join(GetHome(cfg), "plugins")
}

// GetTempFolder returns the folder isolated validation workspaces are created in.
func GetTempFolder(cfg *Config) string {
	if cfg != nil && cfg.Autofix.TempFolder != "" {
		return cfg.Autofix.TempFolder
	}
	return filepath.Join(GetHome(cfg), "tmp")
}

// GetCacheFolder returns the scan cache folder.
func GetCacheFolder(cfg *Config) string {
	if cfg != nil && cfg.Cache.Folder != "" {
		return cfg.Cache.Folder
	}
	return filepath.Join(GetHome(cfg), "cache")
}

// GetArtifactsFolder returns the folder command results are archived in.
func GetArtifactsFolder(cfg *Config) string {
	return filepath.Join(GetHome(cfg), "artifacts")
}

// LookupSecret reads a secret from the named env variable, falling back to fallbackEnv.
func LookupSecret(envName, fallbackEnv string) string {
	if envName != "" {
		if v := os.Getenv(envName); v != "" {
			return v
		}
	}
	if fallbackEnv != "" {
		return os.Getenv(fallbackEnv)
	}
	return ""
}
