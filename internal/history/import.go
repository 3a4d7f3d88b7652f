package history

import (
	"context"
	"fmt"

	"github.com/rohankatakam/jobtriage/internal/models"
	"github.com/rohankatakam/jobtriage/internal/storage"
)

// CardSaver persists case cards.
type CardSaver interface {
	SaveCaseCard(ctx context.Context, c *models.CaseCard) (storage.UpsertOutcome, error)
}

// ImportStats counts what Import did with each card.
type ImportStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Import saves cards, skipping ones whose content is already stored.
func Import(ctx context.Context, store CardSaver, cards []models.CaseCard) (ImportStats, error) {
	var stats ImportStats
	for i := range cards {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		outcome, err := store.SaveCaseCard(ctx, &cards[i])
		if err != nil {
			return stats, fmt.Errorf("card %s#%d: %w", cards[i].SourcePath, cards[i].ChunkID, err)
		}
		switch outcome {
		case storage.Inserted:
			stats.Inserted++
		case storage.Updated:
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}
	return stats, nil
}
