package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mward/shadowtrace/internal/audit"
)

func NewAuditCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the chain-of-custody trail",
		Long: `Replay the audit trail of imports, analyses, inferences and reviews
recorded against this database, newest last.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum events to show")

	return cmd
}

func runAudit(limit int) error {
	events, err := audit.ReadDir(auditDir())
	if err != nil {
		return fmt.Errorf("failed to read audit trail: %w", err)
	}

	if len(events) == 0 {
		fmt.Println("No audit events recorded.")
		return nil
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	fmt.Printf("Audit trail (%d event(s)):\n\n", len(events))
	for _, ev := range events {
		line := fmt.Sprintf("[%s] %-8s", ev.At.Format("2006-01-02 15:04:05"), ev.Action)
		if ev.SessionID != "" {
			line += " session=" + ev.SessionID
		}
		if ev.GapID != "" {
			line += " gap=" + ev.GapID
		}
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		fmt.Println(line)
	}
	return nil
}
