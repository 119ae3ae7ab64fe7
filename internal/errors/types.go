// Package errors defines the structured error type used across srcdoc and the
// diagnostic format build sessions report to users.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeBuildFailed      = "ERR_BUILD_FAILED"
	ErrCodeTransformPanic   = "ERR_TRANSFORM_PANIC"
	ErrCodeCacheFailure     = "ERR_CACHE_FAILURE"
	ErrCodeRenderFailed     = "ERR_RENDER_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeUnknownPreset    = "ERR_UNKNOWN_PRESET"
	ErrCodeInvalidOption    = "ERR_INVALID_OPTION"
	ErrCodeResolveFailed    = "ERR_RESOLVE_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
)

// SrcdocError is a structured error type with context.
type SrcdocError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *SrcdocError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" {
		parts = append(parts, Diagnostic{File: e.FilePath, Line: e.Line, Column: e.Column}.location())
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SrcdocError) Unwrap() error {
	return e.Cause
}

// Is matches errors of the same type and code.
func (e *SrcdocError) Is(target error) bool {
	var t *SrcdocError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SrcdocError) WithContext(key string, value interface{}) *SrcdocError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *SrcdocError) WithLocation(filePath string, line, column int) *SrcdocError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithComponent adds component context.
func (e *SrcdocError) WithComponent(component string) *SrcdocError {
	e.Component = component

	return e
}

// Diagnostic renders the error in the user-facing diagnostic format.
func (e *SrcdocError) Diagnostic() string {
	message := e.Message
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}

	return Diagnostic{File: e.FilePath, Line: e.Line, Column: e.Column, Message: message}.String()
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SrcdocError {
	return &SrcdocError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *SrcdocError {
	return &SrcdocError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SrcdocError {
	return &SrcdocError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewNetworkError creates a network error. Network failures are retryable.
func NewNetworkError(code, message string, cause error) *SrcdocError {
	return &SrcdocError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SrcdocError {
	return &SrcdocError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SrcdocError {
	return &SrcdocError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *SrcdocError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	return isType(err, ErrorTypeBuild)
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	return isType(err, ErrorTypeConfig)
}

// IsNetworkError checks if an error came from a network call.
func IsNetworkError(err error) bool {
	return isType(err, ErrorTypeNetwork)
}

func isType(err error, errType ErrorType) bool {
	var se *SrcdocError
	if errors.As(err, &se) {
		return se.Type == errType
	}

	return false
}

// ErrUnknownPreset creates the error returned for an unregistered preset name.
func ErrUnknownPreset(name string, known []string) *SrcdocError {
	return NewValidationError(
		ErrCodeUnknownPreset,
		fmt.Sprintf("unknown preset %q (available: %s)", name, strings.Join(known, ", ")),
	).WithContext("preset", name)
}

// ErrInvalidOption creates the error returned for an option value that cannot
// be fingerprinted.
func ErrInvalidOption(key string, value interface{}) *SrcdocError {
	return NewValidationError(
		ErrCodeInvalidOption,
		fmt.Sprintf("option %q has unsupported value of type %T", key, value),
	).WithContext("option", key)
}

// ErrBuildFailed creates a build failure error.
func ErrBuildFailed(preset string, cause error) *SrcdocError {
	return NewBuildError(
		ErrCodeBuildFailed,
		"build failed for preset: "+preset,
		cause,
	).WithComponent(preset)
}
