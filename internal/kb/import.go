package kb

import (
	"context"
	"fmt"

	"github.com/rohankatakam/jobtriage/internal/models"
)

// CodeSaver persists message codes.
type CodeSaver interface {
	SaveMessageCode(ctx context.Context, mc *models.MessageCode) error
}

// ParseFile loads a manual and extracts its definitions.
func ParseFile(path string) ([]Entry, error) {
	text, err := LoadText(path)
	if err != nil {
		return nil, err
	}
	return ParseText(text), nil
}

// Import upserts entries keyed by code and returns how many were written.
func Import(ctx context.Context, store CodeSaver, entries []Entry, source string) (int, error) {
	n := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		mc := e.MessageCode(source)
		if err := store.SaveMessageCode(ctx, &mc); err != nil {
			return n, fmt.Errorf("save %s: %w", e.Code, err)
		}
		n++
	}
	return n, nil
}
