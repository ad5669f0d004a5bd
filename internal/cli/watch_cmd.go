package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/adamavenir/chorus/internal/config"
	"github.com/adamavenir/chorus/internal/runtime"
	"github.com/adamavenir/chorus/internal/watchtui"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open a live dashboard of Turns broadcast by a running chorusd",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			paths := runtime.New(cfg.SessionRuntimeDir())

			m := watchtui.New(paths.OutputSock())
			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}
