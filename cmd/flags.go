package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/srcdoc/internal/config"
	"github.com/conneroisu/srcdoc/internal/types"
)

// optionsValue collects repeated --opt key=value flags.
type optionsValue struct {
	options types.Options
}

var _ pflag.Value = (*optionsValue)(nil)

func newOptionsValue() *optionsValue {
	return &optionsValue{options: types.Options{}}
}

func (v *optionsValue) Set(pair string) error {
	key, value, err := config.ParseOption(pair)
	if err != nil {
		return err
	}
	v.options[key] = value

	return nil
}

func (v *optionsValue) String() string {
	pairs := make([]string, 0, len(v.options))
	for _, key := range v.options.Keys() {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, v.options[key]))
	}
	sort.Strings(pairs)

	return strings.Join(pairs, ",")
}

func (v *optionsValue) Type() string {
	return "key=value"
}

// Options returns the collected options.
func (v *optionsValue) Options() types.Options {
	return v.options
}

// SetViperBindings binds flags to viper configuration keys. It runs when a
// command starts rather than at init, so commands can share flag names
// without overriding each other's bindings.
func SetViperBindings(cmd *cobra.Command, bindings map[string]string) error {
	for flagName, configKey := range bindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(configKey, flag); err != nil {
			return fmt.Errorf("binding --%s: %w", flagName, err)
		}
	}

	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}

	return v.Value.Set(val)
}

// ValidatePort accepts ports 0-65535; 0 asks the system for a free port.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// ValidateFormat checks an output format flag.
func ValidateFormat(format string, valid []string) error {
	for _, v := range valid {
		if format == v {
			return nil
		}
	}

	return fmt.Errorf("unsupported format: %s (supported: %s)", format, strings.Join(valid, ", "))
}
