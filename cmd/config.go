package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/srcdoc/internal/config"
	srcerrors "github.com/conneroisu/srcdoc/internal/errors"
)

var (
	configFile   string
	configFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect srcdoc configuration",
	Long: `Inspect srcdoc configuration files and settings.

Examples:
  srcdoc config show                    # Show the resolved configuration
  srcdoc config show --format json      # Show it as JSON
  srcdoc config validate                # Validate .srcdoc.yml
  srcdoc config validate --file ci.yml  # Validate a specific file`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long: `Show the configuration after defaults, the config file, environment
variables and flags have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a srcdoc configuration file and report every problem found.

Environment variables are ignored so the file is checked on its own.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
	configValidateCmd.Flags().StringVar(&configFile, "file", "", "Configuration file to validate (default .srcdoc.yml)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if err := ValidateFormat(configFormat, []string{"yaml", "yml", "json"}); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if configFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	}

	fmt.Fprintln(out, "# Resolved from all sources (file, env vars, flags, defaults)")
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return err
	}

	return encoder.Close()
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	target := configFile
	if target == "" {
		if _, err := os.Stat(".srcdoc.yml"); err != nil {
			return errors.New("no configuration file found; use --file to name one")
		}
		target = ".srcdoc.yml"
	}

	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("configuration file %s does not exist", target)
	}

	v := viper.New()
	v.SetConfigFile(target)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	if _, err := config.LoadFrom(v); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), srcerrors.FormatErrorWithSuggestions(err))
		return fmt.Errorf("configuration file %s is invalid", target)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", target)

	return nil
}
