package graph

import "context"

// KeyMatch selects how a key pattern is compared. All modes are
// case-insensitive.
type KeyMatch int

const (
	// MatchExact compares the full key.
	MatchExact KeyMatch = iota
	// MatchPrefix keeps keys starting with the pattern.
	MatchPrefix
	// MatchContains keeps keys containing the pattern.
	MatchContains
)

// Reader is the query surface matching and planning run against. Lookups
// that find nothing return empty results, never an error. Node lists are
// ordered by key.
type Reader interface {
	NodeByID(ctx context.Context, id int64) (Node, bool, error)
	NodeByKey(ctx context.Context, key string) (Node, bool, error)

	// FindNodes returns nodes of type t whose key matches pattern.
	FindNodes(ctx context.Context, t NodeType, match KeyMatch, pattern string) ([]Node, error)

	// ProcsUsingDocdef returns procs with any edge to a docdef node whose
	// display name or key contains ref.
	ProcsUsingDocdef(ctx context.Context, ref string) ([]Node, error)

	// ProcsRunningScript returns procs with a RUNS edge to a script node whose
	// display name equals name or whose original path ends with name.
	ProcsRunningScript(ctx context.Context, name string) ([]Node, error)

	// Targets returns the destinations of src's outgoing edges of type rel.
	Targets(ctx context.Context, src int64, rel RelType) ([]Neighbor, error)

	// Neighbors returns every node with an edge into id (upstream) and every
	// node id has an edge to (downstream).
	Neighbors(ctx context.Context, id int64) (Neighbors, error)

	Stats(ctx context.Context) (Stats, error)
}

// Writer builds the graph. Both inserts are idempotent.
type Writer interface {
	// InsertNode returns the id of the node with n.Key, creating it if absent.
	// An existing node is never modified.
	InsertNode(ctx context.Context, n Node) (id int64, created bool, err error)

	// InsertEdge adds e unless an edge with the same (src, dst, rel_type)
	// already exists.
	InsertEdge(ctx context.Context, e Edge) (created bool, err error)
}

// Store is a readable and writable graph.
type Store interface {
	Reader
	Writer
}

// Snapshot is a full dump of the graph, used to mirror it elsewhere.
type Snapshot struct {
	Nodes []Node
	Edges []Edge
}

// Dumper exposes the whole graph for export.
type Dumper interface {
	AllNodes(ctx context.Context) ([]Node, error)
	AllEdges(ctx context.Context) ([]Edge, error)
}
