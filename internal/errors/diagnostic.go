package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic is one user-facing build problem. Its string form is
// "file:line:col: message", degrading to "file: message" or just "message"
// when the location is unknown.
type Diagnostic struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// String formats the diagnostic.
func (d Diagnostic) String() string {
	location := d.location()
	if location == "" {
		return d.Message
	}

	return location + ": " + d.Message
}

func (d Diagnostic) location() string {
	if d.File == "" {
		return ""
	}

	location := d.File
	if d.Line > 0 {
		location += fmt.Sprintf(":%d", d.Line)
		if d.Column > 0 {
			location += fmt.Sprintf(":%d", d.Column)
		}
	}

	return location
}

var (
	diagnosticWithPosition = regexp.MustCompile(`^([^:\s][^:]*):(\d+)(?::(\d+))?: (.+)$`)
	diagnosticWithFile     = regexp.MustCompile(`^([^:\s]+\.[A-Za-z0-9]+): (.+)$`)
)

// ParseDiagnostic recovers the structured form of a formatted diagnostic.
// Strings that carry no recognisable location become a message-only
// diagnostic.
func ParseDiagnostic(raw string) Diagnostic {
	raw = strings.TrimSpace(raw)

	if matches := diagnosticWithPosition.FindStringSubmatch(raw); matches != nil {
		line, _ := strconv.Atoi(matches[2])
		column, _ := strconv.Atoi(matches[3])

		return Diagnostic{File: matches[1], Line: line, Column: column, Message: matches[4]}
	}

	if matches := diagnosticWithFile.FindStringSubmatch(raw); matches != nil {
		return Diagnostic{File: matches[1], Message: matches[2]}
	}

	return Diagnostic{Message: raw}
}

// ParseDiagnostics parses every entry of a diagnostics list.
func ParseDiagnostics(raw []string) []Diagnostic {
	parsed := make([]Diagnostic, 0, len(raw))
	for _, r := range raw {
		parsed = append(parsed, ParseDiagnostic(r))
	}

	return parsed
}

// FormatDiagnostics renders diagnostics as strings.
func FormatDiagnostics(diagnostics []Diagnostic) []string {
	formatted := make([]string, 0, len(diagnostics))
	for _, d := range diagnostics {
		formatted = append(formatted, d.String())
	}

	return formatted
}

// DiagnosticOf flattens an unexpected failure into a single diagnostic
// string.
func DiagnosticOf(err error) string {
	var se *SrcdocError
	if errors.As(err, &se) {
		return se.Diagnostic()
	}

	return err.Error()
}
