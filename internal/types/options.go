package types

import (
	"sort"

	"github.com/conneroisu/srcdoc/internal/errors"
)

// Options holds preset-specific build options. Values are limited to strings,
// numbers and booleans. The core never interprets them but every key and value
// is part of the build fingerprint.
type Options map[string]any

// Normalize validates the option values and returns a copy in which every
// numeric value is a float64, so 1 and 1.0 fingerprint identically.
func (o Options) Normalize() (Options, error) {
	normalized := make(Options, len(o))
	for _, key := range o.Keys() {
		switch v := o[key].(type) {
		case string, bool, float64:
			normalized[key] = v
		case float32:
			normalized[key] = float64(v)
		case int:
			normalized[key] = float64(v)
		case int8:
			normalized[key] = float64(v)
		case int16:
			normalized[key] = float64(v)
		case int32:
			normalized[key] = float64(v)
		case int64:
			normalized[key] = float64(v)
		case uint:
			normalized[key] = float64(v)
		case uint8:
			normalized[key] = float64(v)
		case uint16:
			normalized[key] = float64(v)
		case uint32:
			normalized[key] = float64(v)
		case uint64:
			normalized[key] = float64(v)
		default:
			return nil, errors.ErrInvalidOption(key, v)
		}
	}

	return normalized, nil
}

// Validate reports the first option whose value cannot be fingerprinted.
func (o Options) Validate() error {
	_, err := o.Normalize()

	return err
}

// Keys returns the option names in sorted order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// String returns the named string option, or def when absent or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}

	return def
}

// Bool returns the named boolean option, or def when absent or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}

	return def
}

// Number returns the named numeric option, or def when absent.
func (o Options) Number(key string, def float64) float64 {
	switch v := o[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}

	return def
}
