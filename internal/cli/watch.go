package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mward/shadowtrace/internal/watcher"
)

func NewWatchCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Import exports dropped into a directory",
		Long: `Watch a directory and import every chat export that appears in it.
Existing exports are imported on startup. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args[0], format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "whatsapp", "Export format")

	return cmd
}

func runWatch(dir, format string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	trail, err := openTrail()
	if err != nil {
		return err
	}
	defer trail.Close()

	coord := newCoordinator(store, nil)
	coord.SetTrail(trail)

	cfg := watcher.DefaultConfig(dir)
	cfg.Format = format

	w, err := watcher.NewExportWatcher(cfg, coord)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	fmt.Printf("👁  Watching %s for new exports. Press Ctrl+C to stop.\n", dir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nStopping watcher...")
	return w.Stop()
}
