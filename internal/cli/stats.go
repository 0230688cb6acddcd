package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database-wide statistics",
		RunE:  runStats,
	}

	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats()
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	fmt.Println("ShadowTrace Statistics")
	fmt.Println("======================")
	fmt.Printf("\nSessions: %d\n", stats.TotalSessions)
	fmt.Printf("Messages: %d\n", stats.TotalMessages)
	fmt.Printf("Deleted messages: %d\n", stats.DeletedMessages)
	fmt.Printf("Gaps: %d (high suspicion: %d)\n", stats.TotalGaps, stats.HighSuspicion)
	fmt.Printf("Inferences: %d\n", stats.TotalInferences)

	if len(stats.FormatBreakdown) > 0 {
		fmt.Println("\nSessions by format:")
		for format, count := range stats.FormatBreakdown {
			fmt.Printf("  %s: %d\n", format, count)
		}
	}

	if len(stats.StatusBreakdown) > 0 {
		fmt.Println("\nSessions by status:")
		for status, count := range stats.StatusBreakdown {
			fmt.Printf("  %s: %d\n", status, count)
		}
	}

	return nil
}
