package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewSessionsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List imported sessions",
		Long:  `List imported sessions with their analysis status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")

	return cmd
}

func runSessions(limit int) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.ListSessions(limit, 0)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	fmt.Printf("Sessions:\n\n")

	for _, sess := range sessions {
		fmt.Printf("[%s] %s\n", sess.ID, sess.Name)
		fmt.Printf("  Participants: %s\n", strings.Join(sess.Participants, ", "))
		fmt.Printf("  Messages: %d | Gaps: %d | Status: %s\n",
			sess.TotalMessages, sess.DetectedGaps, sess.Status)
		if sess.ErrorMessage != "" {
			fmt.Printf("  Error: %s\n", sess.ErrorMessage)
		}
		fmt.Printf("  Imported: %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}

	return nil
}
