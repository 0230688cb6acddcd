package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dbPath string

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shadowtrace",
		Short: "Forensic analysis of chat exports",
		Long: `ShadowTrace - Detect deleted or missing messages in chat exports and
reconstruct plausible hypotheses for what the gaps contained.`,
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to database file (default: ~/.shadowtrace/sessions.db)")

	rootCmd.AddCommand(
		NewImportCommand(),
		NewSessionsCommand(),
		NewAnalyzeCommand(),
		NewGapsCommand(),
		NewInferCommand(),
		NewReviewCommand(),
		NewReportCommand(),
		NewSearchCommand(),
		NewStatsCommand(),
		NewWatchCommand(),
		NewBrowseCommand(),
		NewAuditCommand(),
	)

	return rootCmd
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
