package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/conneroisu/srcdoc/internal/types"
)

// LoadOptionsFile reads build options from a JSON file that may contain
// comments and trailing commas.
func LoadOptionsFile(path string) (types.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading options file: %w", err)
	}

	return ParseOptions(data)
}

// ParseOptions decodes a JSONC object of build options.
func ParseOptions(data []byte) (types.Options, error) {
	var options types.Options
	if err := json.Unmarshal(jsonc.ToJSON(data), &options); err != nil {
		return nil, fmt.Errorf("parsing options: %w", err)
	}

	return options.Normalize()
}

// ParseOption parses one key=value pair. Values that read as booleans or
// numbers are typed; everything else stays a string. Quote a value to keep it
// a string.
func ParseOption(pair string) (string, any, error) {
	key, raw, ok := strings.Cut(pair, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("option %q must have the form key=value", pair)
	}

	if unquoted, err := strconv.Unquote(raw); err == nil {
		return key, unquoted, nil
	}
	switch raw {
	case "true":
		return key, true, nil
	case "false":
		return key, false, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return key, f, nil
	}

	return key, raw, nil
}
