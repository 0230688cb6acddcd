package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mward/shadowtrace/internal/models"
)

func NewReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <gap-id> <confirmed|rejected>",
		Short: "Record a verdict on a gap's inference",
		Long: `Mark the pending inference for a gap as confirmed or rejected. Only a
pending inference can be reviewed; generating a new inference resets
the review state.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(args[0], args[1])
		},
	}

	return cmd
}

func runReview(gapID, verdict string) error {
	var v models.Verification
	switch verdict {
	case "confirmed":
		v = models.VerifiedConfirmed
	case "rejected":
		v = models.VerifiedRejected
	default:
		return fmt.Errorf("verdict must be 'confirmed' or 'rejected', got %q", verdict)
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
	if err := coord.Review(gapID, v); err != nil {
		return err
	}

	fmt.Printf("✓ Inference for gap %s marked %s\n", gapID, v)
	return nil
}
