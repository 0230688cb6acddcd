package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mward/shadowtrace/internal/analysis"
	"github.com/mward/shadowtrace/internal/audit"
	"github.com/mward/shadowtrace/internal/gaps"
	"github.com/mward/shadowtrace/internal/inference"
	"github.com/mward/shadowtrace/internal/models"
	"github.com/mward/shadowtrace/internal/score"
	"github.com/mward/shadowtrace/internal/storage"
)

func openStore() (*storage.Store, error) {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// auditDir resolves the chain-of-custody directory next to the database.
func auditDir() string {
	if dbPath != "" {
		return filepath.Join(filepath.Dir(dbPath), "audit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".shadowtrace", "audit")
	}
	return filepath.Join(home, ".shadowtrace", "audit")
}

func openTrail() (*audit.Trail, error) {
	trail, err := audit.NewTrail(auditDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}
	return trail, nil
}

// generatorFactory picks the model capability from the flags. The mock
// needs the gap it answers about; a real model does not.
func generatorFactory(useMock bool, model, apiKey string) (analysis.GeneratorFactory, error) {
	if useMock {
		return func(gap *models.Gap) inference.Generator {
			return inference.NewMockGenerator(gap)
		}, nil
	}

	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key: set --api-key or OPENAI_API_KEY, or use --mock")
	}
	gen := inference.NewOpenAIGenerator(apiKey, model)
	return func(*models.Gap) inference.Generator { return gen }, nil
}

func newCoordinator(store *storage.Store, genFor analysis.GeneratorFactory) *analysis.Coordinator {
	if genFor == nil {
		genFor = func(gap *models.Gap) inference.Generator {
			return inference.NewMockGenerator(gap)
		}
	}
	return analysis.NewCoordinator(store, gaps.DefaultConfig(), score.DefaultWeights(), genFor, inference.DefaultConfig())
}
