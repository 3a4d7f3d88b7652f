// Package cli holds the user-facing checks and messages shared by the
// jtriage commands.
package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/graph"
)

// maxSuggestions bounds the "did you mean" list.
const maxSuggestions = 5

// ProcCounter reports how many job definitions are indexed.
type ProcCounter interface {
	CountProcs(ctx context.Context) (int, error)
}

// NodeFinder looks up graph nodes by key.
type NodeFinder interface {
	FindNodes(ctx context.Context, t graph.NodeType, match graph.KeyMatch, pattern string) ([]graph.Node, error)
}

// CheckIndexed returns a warning when the snapshot database holds no procs,
// which usually means the scan ran on the wrong directory.
func CheckIndexed(ctx context.Context, store ProcCounter, snapshot string) (warning string, err error) {
	n, err := store.CountProcs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to count procs: %w", err)
	}
	if n == 0 {
		return fmt.Sprintf("No procs indexed for %s. Check that it contains procs/*.procs and run 'jtriage scan %s' again", snapshot, snapshot), nil
	}
	return "", nil
}

// HandleProcNotFound explains a --proc value that matched nothing, with
// similarly named procs when there are any.
func HandleProcNotFound(ctx context.Context, finder NodeFinder, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	similar, err := FindSimilarProcs(ctx, finder, name)
	if err != nil || len(similar) == 0 {
		return fmt.Errorf("proc %q not found in the snapshot graph", name)
	}
	lines := make([]string, len(similar))
	for i, n := range similar {
		lines[i] = "  - " + n.DisplayName
	}
	return fmt.Errorf("proc %q not found in the snapshot graph. Did you mean:\n%s", name, strings.Join(lines, "\n"))
}

// FindSimilarProcs returns procs whose key contains the first four
// characters of name (the customer id part), sorted by key.
func FindSimilarProcs(ctx context.Context, finder NodeFinder, name string) ([]graph.Node, error) {
	stem := name
	if len(stem) > 4 {
		stem = stem[:4]
	}
	if stem == "" {
		return nil, nil
	}
	nodes, err := finder.FindNodes(ctx, graph.NodeProc, graph.MatchContains, stem)
	if err != nil {
		return nil, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	if len(nodes) > maxSuggestions {
		nodes = nodes[:maxSuggestions]
	}
	return nodes, nil
}

// FormatDatabaseNotFound is the message for a snapshot that was never scanned.
func FormatDatabaseNotFound(snapshot, dbPath string) error {
	return fmt.Errorf(`No jtriage database at %s.

To index this snapshot:
  1. Make sure %s is the snapshot root (it contains procs/)
  2. Run: jtriage scan %s

This builds the file index and dependency graph the other commands read.`, dbPath, snapshot, snapshot)
}
