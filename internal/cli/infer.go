package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mward/shadowtrace/internal/models"
)

func NewInferCommand() *cobra.Command {
	var useMock bool
	var model string
	var apiKey string

	cmd := &cobra.Command{
		Use:   "infer <gap-id>",
		Short: "Generate a hypothesis for a gap",
		Long: `Ask the configured model what the gap most plausibly contained. The
answer is constrained to the stored gap context and checked for
fabricated senders and unanchored claims before being persisted.`,
		Example: `  # Deterministic offline inference
  shadowtrace infer 9b2e... --mock

  # Against a real model
  shadowtrace infer 9b2e... --model gpt-4o-mini`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(args[0], useMock, model, apiKey)
		},
	}

	cmd.Flags().BoolVar(&useMock, "mock", false, "Use the deterministic offline model")
	cmd.Flags().StringVar(&model, "model", "gpt-4o-mini", "Model to use for inference")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (default: OPENAI_API_KEY)")

	return cmd
}

func runInfer(gapID string, useMock bool, model, apiKey string) error {
	genFor, err := generatorFactory(useMock, model, apiKey)
	if err != nil {
		return err
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

	coord := newCoordinator(store, genFor)
	coord.SetTrail(trail)
	inf, err := coord.Infer(context.Background(), gapID)
	if err != nil {
		return err
	}

	printInference(inf)
	return nil
}

func printInference(inf *models.Inference) {
	fmt.Printf("✓ Inference %s (model: %s)\n", inf.ID, inf.ModelUsed)
	fmt.Printf("  Intent: %s\n", inf.PredictedIntent)
	if inf.PredictedSender != nil {
		fmt.Printf("  Likely sender: %s\n", *inf.PredictedSender)
	}
	if inf.PredictedContent != nil {
		fmt.Printf("  Content: %s\n", *inf.PredictedContent)
	}
	fmt.Printf("  Confidence: %.2f\n", inf.Confidence)
	fmt.Printf("  Reasoning: %s\n", inf.Reasoning)
	if len(inf.HallucinationFlags) > 0 {
		fmt.Printf("  ⚠ Flags: %s\n", strings.Join(inf.HallucinationFlags, "; "))
	}
	fmt.Printf("  Review state: %s\n", inf.Verified)
}
