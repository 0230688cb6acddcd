package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mward/shadowtrace/internal/models"
)

func NewGapsCommand() *cobra.Command {
	var minScore float64
	var showContext bool

	cmd := &cobra.Command{
		Use:   "gaps <session-id>",
		Short: "List detected gaps for a session",
		Example: `  # All gaps, highest suspicion first
  shadowtrace gaps 4f1c...

  # Only the suspicious ones, with surrounding messages
  shadowtrace gaps 4f1c... --min-score 0.6 --context`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGaps(args[0], minScore, showContext)
		},
	}

	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Only show gaps at or above this suspicion score")
	cmd.Flags().BoolVar(&showContext, "context", false, "Show the messages around each gap")

	return cmd
}

func runGaps(sessionID string, minScore float64, showContext bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	gaps, err := store.GapsForSession(sessionID)
	if err != nil {
		return fmt.Errorf("failed to load gaps: %w", err)
	}

	shown := 0
	for _, gap := range gaps {
		if gap.SuspicionScore < minScore {
			continue
		}
		printGap(&gap, showContext)
		shown++
	}

	if shown == 0 {
		fmt.Println("No gaps found. Run 'shadowtrace analyze' first, or lower --min-score.")
	}
	return nil
}

func printGap(gap *models.Gap, showContext bool) {
	fmt.Printf("Gap %s  (suspicion %.2f)\n", gap.ID, gap.SuspicionScore)
	fmt.Printf("  Between seq %d and %d, %s apart\n",
		gap.BeforeSeq, gap.AfterSeq, (time.Duration(gap.ElapsedSeconds) * time.Second))
	fmt.Printf("  Detection: %s", gap.DetectionType)
	if len(gap.Contributing) > 1 {
		parts := make([]string, len(gap.Contributing))
		for i, t := range gap.Contributing {
			parts[i] = string(t)
		}
		fmt.Printf(" (contributing: %s)", strings.Join(parts, ", "))
	}
	fmt.Println()
	if gap.EstimatedMissing != nil {
		fmt.Printf("  Estimated missing messages: %d\n", *gap.EstimatedMissing)
	}
	for _, reason := range gap.Reasons {
		fmt.Printf("  - %s\n", reason)
	}

	if showContext {
		fmt.Println("  Before:")
		printContext(gap.ContextBefore)
		fmt.Println("  After:")
		printContext(gap.ContextAfter)
	}
	fmt.Println()
}

func printContext(msgs []models.ContextMessage) {
	if len(msgs) == 0 {
		fmt.Println("    (none)")
		return
	}
	for _, m := range msgs {
		fmt.Printf("    [%s] %s: %s\n", m.Timestamp.Format("02/01 15:04"), m.Sender, m.Content)
	}
}
