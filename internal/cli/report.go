package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mward/shadowtrace/internal/metadata"
)

func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Behavioral metadata report for a session",
		Long: `Profile messaging behavior in a session: per-sender statistics,
activity patterns, and behavioral anomalies. Descriptive context for
an analyst alongside the gap analysis.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(args[0])
		},
	}

	return cmd
}

func runReport(sessionID string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}

	msgs, err := store.GetMessages(sessionID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	report := metadata.Analyze(msgs)

	fmt.Printf("Report: %s\n", sess.Name)
	fmt.Println("====================")

	fmt.Println("\nParticipants:")
	for _, s := range report.Senders {
		fmt.Printf("  %s\n", s.Name)
		fmt.Printf("    Messages: %d | Avg length: %.1f chars | Deleted: %d\n",
			s.MessageCount, s.AvgMessageLength, s.DeletedCount)
		fmt.Printf("    Most active hour: %02d:00 | Avg response: %s\n",
			s.MostActiveHour, s.AvgResponseTime.Round(time.Second))
	}

	if len(report.Patterns) > 0 {
		fmt.Println("\nActivity patterns:")
		for _, p := range report.Patterns {
			fmt.Printf("  [%s] %s (confidence %.2f)\n", p.Type, p.Description, p.Confidence)
		}
	}

	if len(report.Anomalies) > 0 {
		fmt.Println("\nAnomalies:")
		for _, a := range report.Anomalies {
			fmt.Printf("  ⚠ [%s] %s\n", a.Type, a.Description)
		}
	} else {
		fmt.Println("\nNo behavioral anomalies found.")
	}

	return nil
}
