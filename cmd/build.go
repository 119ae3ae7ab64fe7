package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/srcdoc/internal/build"
	"github.com/conneroisu/srcdoc/internal/config"
	"github.com/conneroisu/srcdoc/internal/logging"
	"github.com/conneroisu/srcdoc/internal/project"
	"github.com/conneroisu/srcdoc/internal/types"
)

var errBuildFailed = errors.New("build failed")

var (
	buildOutput string
	buildJSON   bool
	buildOpts   = newOptionsValue()
)

var buildCmd = &cobra.Command{
	Use:     "build [dir]",
	Aliases: []string{"b"},
	Short:   "Build a project into a single HTML document",
	Long: `Build the project in dir (default: current directory) once.

On success the document is written to --output (or stdout) and its fingerprint
is printed. On failure the diagnostics are printed and the exit status is 1.

Examples:
  srcdoc build                          # Build the current directory to stdout
  srcdoc build ./demo -o demo.html      # Write the document to a file
  srcdoc build ./app --preset react --opt title="Todo" --opt tailwind=true
  srcdoc build ./app --options-file options.jsonc --json`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return SetViperBindings(cmd, map[string]string{
			"preset":       "build.preset",
			"options-file": "build.options_file",
			"no-cache":     "cache.disabled",
		})
	},
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().String("preset", "auto", "Preset to build with (auto, html, react)")
	buildCmd.Flags().Var(buildOpts, "opt", "Build option as key=value (repeatable)")
	buildCmd.Flags().String("options-file", "", "JSON or JSONC file with build options")
	buildCmd.Flags().Bool("no-cache", false, "Disable the artifact cache")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Write the document to this file instead of stdout")
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "Print a JSON build report")
}

// buildReport is printed by --json.
type buildReport struct {
	Preset           string   `json:"preset"`
	Fingerprint      string   `json:"fingerprint,omitempty"`
	BuildFingerprint string   `json:"build_fingerprint,omitempty"`
	Diagnostics      []string `json:"diagnostics,omitempty"`
	CacheHit         bool     `json:"cache_hit"`
	Units            int      `json:"units"`
	CachedUnits      int      `json:"cached_units"`
	Duration         string   `json:"duration"`
	Output           string   `json:"output,omitempty"`
	Bytes            int      `json:"bytes,omitempty"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, document, err := buildProject(ctx, cfg, dir, buildOpts.Options(), logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if report.Diagnostics == nil {
		if err := writeDocument(out, document); err != nil {
			return err
		}
		report.Output = buildOutput
		report.Bytes = len(document)
	}

	if buildJSON {
		encoder := json.NewEncoder(cmd.ErrOrStderr())
		if buildOutput != "" {
			encoder = json.NewEncoder(out)
		}
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(cmd.ErrOrStderr(), report)
	}

	if report.Diagnostics != nil {
		return errBuildFailed
	}

	return nil
}

// buildProject loads dir and runs one build session over it. A failed build
// is not an error: its diagnostics are in the report.
func buildProject(ctx context.Context, cfg *config.Config, dir string, flagOptions types.Options, logger logging.Logger) (buildReport, string, error) {
	loader := project.NewLoader(afero.NewOsFs(), dir, cfg.Watch.Ignore)
	loader.MaxFileSize = cfg.Watch.MaxFileSize

	files, err := loader.Load(ctx)
	if err != nil {
		return buildReport{}, "", err
	}
	if files.IsBlank() {
		return buildReport{}, "", fmt.Errorf("nothing to build: %s has no content", dir)
	}

	options, err := cfg.BuildOptions()
	if err != nil {
		return buildReport{}, "", err
	}
	for key, value := range flagOptions {
		options[key] = value
	}

	p := newPipeline(cfg, logger)
	explicit, err := p.explicitPreset(cfg.Build.Preset)
	if err != nil {
		return buildReport{}, "", err
	}
	chosen := p.registry.Resolve(explicit, files)

	session := build.NewSession(build.SessionConfig{
		Cache:   p.cache,
		Preset:  chosen,
		Options: options,
		Files:   files,
		Progress: func(processed int) {
			logger.Debug(ctx, "Build progress", "processed", processed, "files", len(files))
		},
		Logger:           logger,
		Metrics:          p.metrics,
		Compression:      cfg.CompressionAlgorithm(),
		CompressMinBytes: cfg.Cache.CompressMinBytes,
	})

	result, err := session.Build(ctx)
	if err != nil {
		return buildReport{}, "", err
	}

	report := buildReport{
		Preset:           chosen.Name,
		BuildFingerprint: result.Fingerprint,
		CacheHit:         result.CacheHit,
		Units:            result.Units,
		CachedUnits:      result.CachedUnits,
		Duration:         result.Duration.Round(time.Millisecond).String(),
	}

	if !result.OK() {
		report.Diagnostics = result.Diagnostics
		return report, "", nil
	}

	output, err := session.GenerateHTML(ctx)
	if err != nil {
		if errors.Is(err, build.ErrCancelled) {
			return buildReport{}, "", err
		}
		report.Diagnostics = []string{err.Error()}
		return report, "", nil
	}
	report.Fingerprint = output.Fingerprint

	return report, output.Document, nil
}

func writeDocument(stdout io.Writer, document string) error {
	if buildOutput == "" {
		_, err := io.WriteString(stdout, document)
		return err
	}

	if err := os.WriteFile(buildOutput, []byte(document), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", buildOutput, err)
	}

	return nil
}

func printReport(w io.Writer, report buildReport) {
	if report.Diagnostics != nil {
		for _, diagnostic := range report.Diagnostics {
			fmt.Fprintln(w, diagnostic)
		}
		fmt.Fprintf(w, "build failed (%s preset, %d diagnostics)\n", report.Preset, len(report.Diagnostics))
		return
	}

	target := "stdout"
	if report.Output != "" {
		target = report.Output
	}
	fmt.Fprintf(w, "built %d files with %s preset in %s -> %s\n", report.Units, report.Preset, report.Duration, target)
	fmt.Fprintf(w, "fingerprint %s\n", report.Fingerprint)
}
