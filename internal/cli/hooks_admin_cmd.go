package cli

import (
	"fmt"
	"os/exec"

	"github.com/adamavenir/chorus/internal/hookinstall"
	"github.com/spf13/cobra"
)

func hookCommandFor(root string) (string, error) {
	self, err := exec.LookPath("chorusd")
	if err != nil {
		self = "chorusd"
	}
	return fmt.Sprintf("%s hook --project %s", self, root), nil
}

func newInstallHooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install-hooks",
		Short: "Register chorusd's hook script in ~/.claude/settings.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			settingsPath, err := hookinstall.DefaultSettingsPath()
			if err != nil {
				return err
			}
			hookCmd, err := hookCommandFor(root)
			if err != nil {
				return err
			}
			if err := hookinstall.Install(settingsPath, hookCmd); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hooks installed in %s\n", settingsPath)
			return nil
		},
	}
}

func newRemoveHooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-hooks",
		Short: "Remove chorusd's hook entries from ~/.claude/settings.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			settingsPath, err := hookinstall.DefaultSettingsPath()
			if err != nil {
				return err
			}
			hookCmd, err := hookCommandFor(root)
			if err != nil {
				return err
			}
			if err := hookinstall.Remove(settingsPath, hookCmd); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hooks removed from %s\n", settingsPath)
			return nil
		},
	}
}
