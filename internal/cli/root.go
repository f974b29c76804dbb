// Package cli implements the banko command line.
package cli

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the banko command tree
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "banko",
		Short:         "Analyze donations in ISO 20022 bank statements",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file (YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides the configuration)")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newAnalyzeCommand(opts),
		newValidateCommand(opts),
		newNormalizeCommand(opts),
		newFormatsCommand(opts),
		newSampleCommand(),
	)
	return rootCmd
}
