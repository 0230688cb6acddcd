package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across imported messages",
		Example: `  # Find messages about a meeting
  shadowtrace search "meet tonight"

  # Limit the result count
  shadowtrace search payment --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(strings.Join(args, " "), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")

	return cmd
}

func runSearch(query string, limit int) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.SearchMessages(query, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d result(s):\n\n", len(results))
	for _, r := range results {
		fmt.Printf("[%s] %s\n", r.Session.ID, r.Session.Name)
		fmt.Printf("  seq %d | %s | %s\n",
			r.Message.Seq, r.Message.Sender, r.Message.Timestamp.Format("2006-01-02 15:04"))
		fmt.Printf("  %s\n\n", r.Snippet)
	}

	return nil
}
