package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/srcdoc/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve [dir]",
	Aliases: []string{"s", "preview"},
	Short:   "Start the live preview server",
	Long: `Start a preview server for the project in dir (default: current directory).

The project is rebuilt whenever a file changes, and connected browsers swap
in the new document without a page reload. Build errors are shown as an
overlay over the last good document.

Examples:
  srcdoc serve                     # Preview the current directory
  srcdoc serve ./demo -p 3000      # Preview ./demo on port 3000
  srcdoc serve ./app --no-open     # Don't open a browser`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return SetViperBindings(cmd, map[string]string{
			"port":         "server.port",
			"host":         "server.host",
			"no-open":      "server.no-open",
			"preset":       "build.preset",
			"options-file": "build.options_file",
			"no-cache":     "cache.disabled",
		})
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("no-open", false, "Don't open browser automatically")
	serveCmd.Flags().String("preset", "auto", "Preset to build with (auto, html, react)")
	serveCmd.Flags().String("options-file", "", "JSON or JSONC file with build options")
	serveCmd.Flags().Bool("no-cache", false, "Disable the artifact cache")

	AddFlagValidation(serveCmd, "port", ValidatePort)
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	p := newPipeline(cfg, logger)

	srv, err := server.New(server.Options{
		Config:   cfg,
		Root:     dir,
		Cache:    p.cache,
		Resolver: p.resolver,
		Registry: p.registry,
		Metrics:  p.metrics,
		Logger:   logger.WithComponent("server"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.PrintErrf("Serving %s at http://%s\n", dir, cfg.Addr())

	return srv.Start(ctx)
}
