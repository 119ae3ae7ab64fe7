package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSrcdocError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SrcdocError
		expected string
	}{
		{
			name:     "message only",
			err:      &SrcdocError{Message: "plain"},
			expected: "plain",
		},
		{
			name:     "code and location",
			err:      NewBuildError(ErrCodeBuildFailed, "unexpected token", nil).WithLocation("App.tsx", 3, 7),
			expected: "[ERR_BUILD_FAILED] App.tsx:3:7 unexpected token",
		},
		{
			name:     "component and cause",
			err:      ErrBuildFailed("react", errors.New("boom")),
			expected: "[ERR_BUILD_FAILED] component:react build failed for preset: react: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestSrcdocError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("disk gone")
	err := fmt.Errorf("outer: %w", NewIOError(ErrCodeFileNotFound, "read failed", cause))

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, &SrcdocError{Type: ErrorTypeIO, Code: ErrCodeFileNotFound}))
	assert.False(t, errors.Is(err, &SrcdocError{Type: ErrorTypeIO, Code: ErrCodeInternalError}))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsBuildError(NewBuildError(ErrCodeBuildFailed, "x", nil)))
	assert.True(t, IsConfigError(NewConfigError(ErrCodeConfigInvalid, "x")))
	assert.True(t, IsNetworkError(NewNetworkError(ErrCodeResolveFailed, "x", nil)))
	assert.True(t, IsRecoverable(NewNetworkError(ErrCodeResolveFailed, "x", nil)))
	assert.False(t, IsRecoverable(NewInternalError(ErrCodeInternalError, "x", nil)))
	assert.False(t, IsBuildError(errors.New("plain")))
}

func TestSrcdocError_Diagnostic(t *testing.T) {
	err := NewBuildError(ErrCodeTransformPanic, "transform panicked", errors.New("nil map"))
	assert.Equal(t, "transform panicked: nil map", err.Diagnostic())

	err.WithLocation("main.tsx", 2, 0)
	assert.Equal(t, "main.tsx:2: transform panicked: nil map", err.Diagnostic())
}

func TestDiagnosticRoundTrip(t *testing.T) {
	tests := []struct {
		raw      string
		expected Diagnostic
	}{
		{
			raw:      "App.tsx:3:14: Expected \";\" but found \"}\"",
			expected: Diagnostic{File: "App.tsx", Line: 3, Column: 14, Message: "Expected \";\" but found \"}\""},
		},
		{
			raw:      "src/util.ts:10: unused import",
			expected: Diagnostic{File: "src/util.ts", Line: 10, Message: "unused import"},
		},
		{
			raw:      "index.html: missing asset \"style.css\"",
			expected: Diagnostic{File: "index.html", Message: "missing asset \"style.css\""},
		},
		{
			raw:      "no entry point found",
			expected: Diagnostic{Message: "no entry point found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			parsed := ParseDiagnostic(tt.raw)
			assert.Equal(t, tt.expected, parsed)
			assert.Equal(t, tt.raw, parsed.String())
		})
	}

	raws := []string{"a.js:1:1: x", "plain"}
	assert.Equal(t, raws, FormatDiagnostics(ParseDiagnostics(raws)))
}

func TestValidationErrorCollection(t *testing.T) {
	var collection ValidationErrorCollection
	assert.Nil(t, collection.ToSrcdocError())

	collection.AddField("server.port", -1, "must be between 0 and 65535", "use 0 for a random port")
	collection.AddField("cache.compression", "gzip", "unsupported codec")

	require.True(t, collection.HasErrors())
	assert.Equal(t, "validation failed with 2 errors", collection.Error())

	converted := collection.ToSrcdocError()
	require.NotNil(t, converted)
	assert.True(t, IsConfigError(converted))
	assert.Contains(t, converted.Context, "server.port")

	formatted := FormatErrorWithSuggestions(converted)
	assert.Contains(t, formatted, "server.port")
	assert.Contains(t, formatted, "use 0 for a random port")
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeBuild, ErrCodeBuildFailed, "x"))

	inner := NewBuildError(ErrCodeBuildFailed, "inner", nil).WithLocation("a.ts", 1, 2)
	wrapped := Wrap(inner, ErrorTypeInternal, ErrCodeInternalError, "outer")

	assert.Equal(t, "a.ts", wrapped.FilePath)
	assert.Equal(t, 2, wrapped.Column)
	assert.False(t, wrapped.Recoverable)
	assert.True(t, errors.Is(wrapped, inner))
}
