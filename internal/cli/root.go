// Package cli defines the reviewguard command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/reviewguard/engine/internal/config"
)

// Options carries the CLI-level flags shared by subcommands.
type Options struct {
	ConfigPath string
	JSONOutput bool
}

// NewRootCommand builds the reviewguard command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "reviewguard",
		Short:         "Automated code-review middleware for self-hosted Git platforms",
		Long:          "reviewguard watches GitLab, Gitea and GitHub Enterprise repositories,\nruns a code-assistant against new revisions, and publishes the findings.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to the configuration directory")
	root.PersistentFlags().BoolVar(&opts.JSONOutput, "json", false, "emit machine-readable output")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newTriggerCommand(opts))
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newResetMarkerCommand(opts))
	root.AddCommand(newReposCommand(opts))

	return root
}

// loadConfig resolves the process configuration for a subcommand.
func loadConfig(opts *Options) (config.Config, error) {
	var paths []string
	if opts.ConfigPath != "" {
		paths = append(paths, opts.ConfigPath)
	}
	return config.Load(config.LoaderOptions{ConfigPaths: paths})
}
