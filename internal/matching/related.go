package matching

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/graph"
)

// MaxRelatedFiles caps RelatedFiles.
const MaxRelatedFiles = 10

// Neighbors returns the one-hop execution chain around a node.
func (m *Matcher) Neighbors(ctx context.Context, nodeID int64) (graph.Neighbors, error) {
	return m.store.Neighbors(ctx, nodeID)
}

// RelatedFiles lists the files under snapshotRoot that belong to node: its
// own canonical path followed by those of its downstream neighbours. Paths
// that do not exist on disk are skipped.
func (m *Matcher) RelatedFiles(ctx context.Context, node graph.Node, snapshotRoot string) ([]string, error) {
	nb, err := m.store.Neighbors(ctx, node.ID)
	if err != nil {
		return nil, err
	}

	candidates := []string{node.CanonicalPath}
	for _, d := range nb.Downstream {
		candidates = append(candidates, d.Node.CanonicalPath)
	}

	files := []string{}
	seen := map[string]bool{}
	for _, rel := range candidates {
		if rel == "" {
			continue
		}
		abs := filepath.Join(snapshotRoot, filepath.FromSlash(rel))
		if seen[abs] {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		seen[abs] = true
		files = append(files, abs)
		if len(files) == MaxRelatedFiles {
			break
		}
	}
	return files, nil
}

// FormatDebug renders candidates with their score breakdown.
func FormatDebug(candidates []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n=== MATCHING DEBUG (top %d candidates) ===\n", DefaultDebugLimit)
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n%d. %s (score: %.2f)\n", i+1, c.Node.Key, c.Score)
		fmt.Fprintf(&b, "   Display: %s\n", c.Node.DisplayName)
		for _, s := range c.Strategies {
			fmt.Fprintf(&b, "   +%.1f %s\n", s.Score, s.Strategy)
		}
	}
	b.WriteString("\n" + strings.Repeat("=", 45))
	return b.String()
}
