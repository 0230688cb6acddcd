package cli

import (
	"github.com/spf13/cobra"

	"github.com/mward/shadowtrace/internal/tui"
)

func NewBrowseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse sessions and gaps in a TUI",
		Long:  `Open an interactive terminal UI to browse sessions, messages, and gaps.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse()
		},
	}

	return cmd
}

func runBrowse() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	browser := tui.NewBrowser(store, dbPath)
	return browser.Run()
}
