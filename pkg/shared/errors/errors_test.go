package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsProviderError(t *testing.T) {
	base := NewProviderError(ProviderTimeout, "anthropic", context.DeadlineExceeded)
	wrapped := fmt.Errorf("architect call: %w", base)

	pe, ok := AsProviderError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ProviderTimeout, pe.Kind)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)

	_, ok = AsProviderError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "config", err: fmt.Errorf("load: %w", NewConfigError(fmt.Errorf("bad yaml"))), want: ExitConfig},
		{name: "command", err: NewCommandError(nil, nil, fmt.Errorf("partial"), ExitPartial), want: ExitPartial},
		{name: "runtime", err: &RunBudgetExceeded{}, want: ExitRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestMalformedFindingErrorMessage(t *testing.T) {
	err := NewMalformedFindingError("zap.json", 3, "location")
	assert.Equal(t, `malformed finding 3 in "zap.json": missing location`, err.Error())
}
