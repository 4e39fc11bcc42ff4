package domainerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewInvalidOverride("value must be non-negative")
	assert.Equal(t, "[error] INVALID_OVERRIDE: value must be non-negative", err.Error())
}

func TestSeverityStrings(t *testing.T) {
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "fatal", SeverityFatal.String())
	assert.Equal(t, "unknown", Severity(99).String())
}

func TestStoreUnavailableWrapsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewStoreUnavailable("load overrides", cause)

	assert.True(t, err.Recoverable)
	assert.ErrorIs(t, err, cause)
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("serving forecast: %w", NewUnknownSeries("property=9 role=spa"))

	assert.True(t, HasCode(err, ErrCodeUnknownSeries))
	assert.False(t, HasCode(err, ErrCodeInvalidRequest))
	assert.Equal(t, ErrCodeUnknownSeries, CodeOf(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, "", CodeOf(errors.New("boom")))
	assert.False(t, HasCode(nil, ErrCodeInvalidRequest))
}
