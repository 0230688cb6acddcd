package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewAnalyzeCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "analyze <session-id>",
		Short: "Detect and score gaps in a session",
		Long: `Run gap detection over a parsed session and score every candidate.
Re-running replaces the previous gap set for the session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(args[0], timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Analysis timeout")

	return cmd
}

func runAnalyze(sessionID string, timeout time.Duration) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	trail, err := openTrail()
	if err != nil {
		return err
	}
	defer trail.Close()

	coord := newCoordinator(store, nil)
	coord.SetTrail(trail)
	detected, err := coord.Analyze(ctx, sessionID)
	if err != nil {
		return err
	}

	if len(detected) == 0 {
		fmt.Println("✓ Analysis complete. No gaps detected.")
		return nil
	}

	fmt.Printf("✓ Analysis complete. %d gap(s) detected:\n\n", len(detected))
	for _, gap := range detected {
		printGap(&gap, false)
	}
	return nil
}
