package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var presetsCmd = &cobra.Command{
	Use:     "presets",
	Aliases: []string{"ls-presets"},
	Short:   "List the available presets",
	Long: `List the presets srcdoc can build with.

With --preset auto (the default), the react preset is chosen when the project
contains a .jsx or .tsx file and the html preset otherwise.`,
	Args: cobra.NoArgs,
	RunE: runPresets,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}

func runPresets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p := newPipeline(cfg, newLogger(cfg))

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tVERSION\tEXTENSIONS\tDESCRIPTION")
	for _, preset := range p.registry.All() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			preset.Name,
			preset.Kind,
			preset.Version,
			strings.Join(preset.Extensions, " "),
			preset.Description,
		)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\naccepted names: %s\n", strings.Join(p.registry.Names(), ", "))

	return nil
}
