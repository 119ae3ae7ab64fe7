package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError interface for field-specific validation errors.
type ValidationError interface {
	error
	Field() string
	Value() interface{}
	Suggestions() []string
}

// FieldValidationError implements ValidationError for specific field errors.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
	HelpText     []string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// Field returns the field name that failed validation.
func (fve *FieldValidationError) Field() string {
	return fve.FieldName
}

// Value returns the invalid value.
func (fve *FieldValidationError) Value() interface{} {
	return fve.FieldValue
}

// Suggestions returns helpful suggestions for fixing the error.
func (fve *FieldValidationError) Suggestions() []string {
	return fve.HelpText
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
		HelpText:     suggestions,
	}
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	switch len(vec.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return vec.Errors[0].Error()
	default:
		return fmt.Sprintf("validation failed with %d errors", len(vec.Errors))
	}
}

// Add adds a validation error to the collection.
func (vec *ValidationErrorCollection) Add(err ValidationError) {
	vec.Errors = append(vec.Errors, err)
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) {
	vec.Add(NewFieldValidationError(field, value, message, suggestions...))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// ToSrcdocError converts the collection into a single configuration error,
// or nil when it is empty.
func (vec *ValidationErrorCollection) ToSrcdocError() *SrcdocError {
	if !vec.HasErrors() {
		return nil
	}

	messages := make([]string, 0, len(vec.Errors))
	context := make(map[string]interface{}, len(vec.Errors))

	for _, err := range vec.Errors {
		messages = append(messages, err.Error())
		context[err.Field()] = map[string]interface{}{
			"value":       err.Value(),
			"suggestions": err.Suggestions(),
		}
	}

	return &SrcdocError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeConfigInvalid,
		Message: strings.Join(messages, "; "),
		Cause:   vec,
		Context: context,
	}
}

// Wrap wraps err with a type, code and message, keeping the location of an
// existing SrcdocError.
func Wrap(err error, errType ErrorType, code, message string) *SrcdocError {
	if err == nil {
		return nil
	}

	wrapped := &SrcdocError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeBuild || errType == ErrorTypeNetwork,
	}

	var se *SrcdocError
	if errors.As(err, &se) {
		wrapped.Context = se.Context
		wrapped.Component = se.Component
		wrapped.FilePath = se.FilePath
		wrapped.Line = se.Line
		wrapped.Column = se.Column
	}

	return wrapped
}

// FormatErrorWithSuggestions formats an error for the terminal, listing the
// suggestions of every validation error it contains.
func FormatErrorWithSuggestions(err error) string {
	if err == nil {
		return ""
	}

	var collection *ValidationErrorCollection
	if errors.As(err, &collection) && collection.HasErrors() {
		var b strings.Builder
		b.WriteString("configuration is invalid:")
		for _, ve := range collection.Errors {
			b.WriteString("\n  - " + ve.Error())
			for _, suggestion := range ve.Suggestions() {
				b.WriteString("\n      • " + suggestion)
			}
		}

		return b.String()
	}

	var ve ValidationError
	if errors.As(err, &ve) {
		result := ve.Error()
		if suggestions := ve.Suggestions(); len(suggestions) > 0 {
			result += "\n\nSuggestions:"
			for _, suggestion := range suggestions {
				result += "\n  • " + suggestion
			}
		}

		return result
	}

	return err.Error()
}
