// Package cli implements the chorusd command-line surface: the daemon
// entrypoint, the hook callbacks the installed hook script invokes,
// hook (de)installation, and the subscriber dashboard.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// AppName is the CLI's binary name.
const AppName = "chorusd"

// Version is overwritten at build time via -ldflags.
var Version = "dev"

// NewRootCmd builds the chorusd root command.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "chorusd - multiplex async input into an interactive terminal agent",
		Long:          "chorusd wraps an interactive terminal coding agent running in tmux, queuing input from multiple producers and injecting it when the agent is ready.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("project", "", "project directory (defaults to the current directory)")

	cmd.AddCommand(
		newRunCmd(),
		newHookCmd(),
		newInstallHooksCmd(),
		newRemoveHooksCmd(),
		newWatchCmd(),
	)

	return cmd
}

// Execute runs the chorusd CLI.
func Execute() error {
	return NewRootCmd(Version).Execute()
}

func projectRoot(cmd *cobra.Command) (string, error) {
	dir, err := cmd.Flags().GetString("project")
	if err != nil {
		return "", err
	}
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
