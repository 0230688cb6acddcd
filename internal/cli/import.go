package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func NewImportCommand() *cobra.Command {
	var name string
	var format string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a chat export",
		Long:  `Parse a chat export file and store it as a new session.`,
		Example: `  # Import a WhatsApp export
  shadowtrace import chat.txt

  # Import with an explicit session name
  shadowtrace import chat.txt --name "case-1142 group chat"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0], name, format)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Session name (default: file name)")
	cmd.Flags().StringVar(&format, "format", "whatsapp", "Export format")

	return cmd
}

func runImport(filePath, name, format string) error {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read export file: %w", err)
	}

	if name == "" {
		base := filepath.Base(filePath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

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
	sess, err := coord.Import(name, format, filePath, string(raw))
	if err != nil {
		return fmt.Errorf("failed to import export: %w", err)
	}

	fmt.Printf("✓ Imported session %s\n", sess.ID)
	fmt.Printf("  Name: %s\n", sess.Name)
	fmt.Printf("  Participants: %s\n", strings.Join(sess.Participants, ", "))
	fmt.Printf("  Messages: %d\n", sess.TotalMessages)
	fmt.Printf("  Span: %s to %s\n",
		sess.StartAt.Format("2006-01-02 15:04"),
		sess.EndAt.Format("2006-01-02 15:04"))
	fmt.Printf("\nRun 'shadowtrace analyze %s' to detect gaps.\n", sess.ID)

	return nil
}
