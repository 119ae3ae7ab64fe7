// Package cmd provides the command-line interface for srcdoc.
//
// Configuration System:
//
//	Settings are resolved from several sources, highest priority first:
//	1. Command-line flags (--port, --preset, --opt, etc.)
//	2. SRCDOC_<SECTION>_<OPTION> environment variables (SRCDOC_SERVER_PORT, ...)
//	3. The file named by --config or SRCDOC_CONFIG_FILE
//	4. .srcdoc.yml in the current directory
//
// A .env file in the current directory is loaded into the environment before
// any of these are read.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/srcdoc/internal/config"
	srcerrors "github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "srcdoc",
	Short: "Build and preview self-contained HTML documents from source files",
	Long: `srcdoc turns a small project (an HTML page, or a React/TSX component tree)
into one self-contained document that can run inside a sandboxed iframe.

Quick Start:
  srcdoc build ./demo -o demo.html   Build a project once
  srcdoc serve ./demo                Live preview with rebuild on save
  srcdoc presets                     List available presets
  srcdoc config show                 Show the resolved configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .srcdoc.yml, can also use SRCDOC_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig initializes the configuration system.
//
// The config file is chosen from, in order: the --config flag, the
// SRCDOC_CONFIG_FILE environment variable, then .srcdoc.yml in the current
// directory. Every key can also be overridden from the environment with the
// SRCDOC_ prefix, for example SRCDOC_SERVER_PORT=3000.
func initConfig() {
	// Missing .env files are normal
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SRCDOC_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".srcdoc")
	}

	viper.SetEnvPrefix("SRCDOC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the resolved configuration and formats validation
// failures for the terminal.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("%s", srcerrors.FormatErrorWithSuggestions(err))
	}

	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(cfg.LoggerConfig()).WithComponent("cli")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
