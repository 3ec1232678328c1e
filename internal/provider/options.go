package provider

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.2
)

// Options are the back end specific settings found under a provider's options key.
type Options struct {
	MaxTokens   int               `mapstructure:"max_tokens"`
	Temperature float64           `mapstructure:"temperature"`
	Headers     map[string]string `mapstructure:"headers"`
	// APIVersion is sent as the anthropic-version header.
	APIVersion string `mapstructure:"api_version"`
}

// DecodeOptions decodes raw YAML options and fills defaults.
func DecodeOptions(raw map[string]interface{}) (Options, error) {
	opts := Options{Temperature: defaultTemperature}
	if len(raw) > 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &opts,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return Options{}, err
		}
		if err := decoder.Decode(raw); err != nil {
			return Options{}, fmt.Errorf("invalid provider options: %w", err)
		}
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return opts, nil
}
