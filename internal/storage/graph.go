package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rohankatakam/jobtriage/internal/graph"
)

const nodeColumns = `n.id, n.type, n.key, n.display_name,
	COALESCE(n.canonical_path, '') AS canonical_path,
	COALESCE(n.original_path, '') AS original_path,
	COALESCE(n.confidence, 1.0) AS confidence`

type neighborRow struct {
	graph.Node
	RelType        string  `db:"rel_type"`
	EdgeConfidence float64 `db:"edge_confidence"`
	Evidence       string  `db:"evidence_json"`
}

func (r neighborRow) neighbor() graph.Neighbor {
	return graph.Neighbor{
		Node:       r.Node,
		RelType:    graph.RelType(r.RelType),
		Confidence: r.EdgeConfidence,
		Evidence:   graph.UnmarshalEvidence(r.Evidence),
	}
}

// InsertNode implements graph.Writer.
func (s *SQLStore) InsertNode(ctx context.Context, n graph.Node) (int64, bool, error) {
	if err := n.Type.Validate(); err != nil {
		return 0, false, err
	}
	if n.Key == "" {
		return 0, false, fmt.Errorf("node key is required")
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO nodes (type, key, display_name, canonical_path, original_path, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING
	`), string(n.Type), n.Key, n.DisplayName, nullString(n.CanonicalPath), nullString(n.OriginalPath), n.Confidence)
	if err != nil {
		return 0, false, fmt.Errorf("insert node %s: %w", n.Key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, s.q(`SELECT id FROM nodes WHERE key = ?`), n.Key); err != nil {
		return 0, false, fmt.Errorf("lookup node %s: %w", n.Key, err)
	}
	return id, affected > 0, nil
}

// InsertEdge implements graph.Writer.
func (s *SQLStore) InsertEdge(ctx context.Context, e graph.Edge) (bool, error) {
	if err := e.RelType.Validate(); err != nil {
		return false, err
	}
	evidence, err := graph.MarshalEvidence(e.Evidence)
	if err != nil {
		return false, fmt.Errorf("encode evidence: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO edges (src, dst, rel_type, confidence, evidence_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (src, dst, rel_type) DO NOTHING
	`), e.Src, e.Dst, string(e.RelType), e.Confidence, nullString(evidence))
	if err != nil {
		return false, fmt.Errorf("insert edge %d-%s->%d: %w", e.Src, e.RelType, e.Dst, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLStore) getNode(ctx context.Context, where string, arg interface{}) (graph.Node, bool, error) {
	var n graph.Node
	err := s.db.GetContext(ctx, &n, s.q(`SELECT `+nodeColumns+` FROM nodes n WHERE `+where), arg)
	if err == sql.ErrNoRows {
		return graph.Node{}, false, nil
	}
	if err != nil {
		return graph.Node{}, false, err
	}
	return n, true, nil
}

// NodeByID implements graph.Reader.
func (s *SQLStore) NodeByID(ctx context.Context, id int64) (graph.Node, bool, error) {
	return s.getNode(ctx, `n.id = ?`, id)
}

// NodeByKey implements graph.Reader.
func (s *SQLStore) NodeByKey(ctx context.Context, key string) (graph.Node, bool, error) {
	return s.getNode(ctx, `n.key = ?`, key)
}

// FindNodes implements graph.Reader.
func (s *SQLStore) FindNodes(ctx context.Context, t graph.NodeType, match graph.KeyMatch, pattern string) ([]graph.Node, error) {
	var cond, arg string
	switch match {
	case graph.MatchExact:
		cond, arg = `LOWER(n.key) = LOWER(?)`, pattern
	case graph.MatchPrefix:
		cond, arg = `LOWER(n.key) LIKE LOWER(?) ESCAPE '\'`, prefix(pattern)
	case graph.MatchContains:
		cond, arg = `LOWER(n.key) LIKE LOWER(?) ESCAPE '\'`, contains(pattern)
	default:
		return nil, fmt.Errorf("unknown key match mode %d", match)
	}

	nodes := []graph.Node{}
	err := s.db.SelectContext(ctx, &nodes, s.q(`
		SELECT `+nodeColumns+` FROM nodes n
		WHERE n.type = ? AND `+cond+`
		ORDER BY n.key
	`), string(t), arg)
	if err != nil {
		return nil, fmt.Errorf("find %s nodes: %w", t, err)
	}
	return nodes, nil
}

// ProcsUsingDocdef implements graph.Reader.
func (s *SQLStore) ProcsUsingDocdef(ctx context.Context, ref string) ([]graph.Node, error) {
	nodes := []graph.Node{}
	err := s.db.SelectContext(ctx, &nodes, s.q(`
		SELECT DISTINCT `+nodeColumns+` FROM nodes n
		JOIN edges e ON n.id = e.src
		JOIN nodes d ON e.dst = d.id
		WHERE n.type = 'proc' AND d.type = 'docdef'
		AND (LOWER(d.display_name) LIKE LOWER(?) ESCAPE '\' OR LOWER(d.key) LIKE LOWER(?) ESCAPE '\')
		ORDER BY n.key
	`), contains(ref), contains(ref))
	if err != nil {
		return nil, fmt.Errorf("procs using docdef %s: %w", ref, err)
	}
	return nodes, nil
}

// ProcsRunningScript implements graph.Reader.
func (s *SQLStore) ProcsRunningScript(ctx context.Context, name string) ([]graph.Node, error) {
	nodes := []graph.Node{}
	err := s.db.SelectContext(ctx, &nodes, s.q(`
		SELECT DISTINCT `+nodeColumns+` FROM nodes n
		JOIN edges e ON n.id = e.src
		JOIN nodes sc ON e.dst = sc.id
		WHERE n.type = 'proc' AND sc.type = 'script' AND e.rel_type = 'RUNS'
		AND (sc.display_name = ? OR LOWER(sc.original_path) LIKE LOWER(?) ESCAPE '\')
		ORDER BY n.key
	`), name, suffix(name))
	if err != nil {
		return nil, fmt.Errorf("procs running script %s: %w", name, err)
	}
	return nodes, nil
}

// Targets implements graph.Reader.
func (s *SQLStore) Targets(ctx context.Context, src int64, rel graph.RelType) ([]graph.Neighbor, error) {
	return s.neighbors(ctx, `e.dst`, `e.src = ? AND e.rel_type = ?`, src, string(rel))
}

// Neighbors implements graph.Reader.
func (s *SQLStore) Neighbors(ctx context.Context, id int64) (graph.Neighbors, error) {
	up, err := s.neighbors(ctx, `e.src`, `e.dst = ?`, id)
	if err != nil {
		return graph.Neighbors{}, err
	}
	down, err := s.neighbors(ctx, `e.dst`, `e.src = ?`, id)
	if err != nil {
		return graph.Neighbors{}, err
	}
	return graph.Neighbors{Upstream: up, Downstream: down}, nil
}

func (s *SQLStore) neighbors(ctx context.Context, joinCol, where string, args ...interface{}) ([]graph.Neighbor, error) {
	var rows []neighborRow
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT `+nodeColumns+`, e.rel_type,
			COALESCE(e.confidence, 1.0) AS edge_confidence,
			COALESCE(e.evidence_json, '') AS evidence_json
		FROM nodes n
		JOIN edges e ON n.id = `+joinCol+`
		WHERE `+where+`
		ORDER BY e.id
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	out := make([]graph.Neighbor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.neighbor())
	}
	return out, nil
}

// Stats implements graph.Reader.
func (s *SQLStore) Stats(ctx context.Context) (graph.Stats, error) {
	nodes, err := s.groupCounts(ctx, `SELECT type, COUNT(*) FROM nodes GROUP BY type`)
	if err != nil {
		return graph.Stats{}, fmt.Errorf("count nodes: %w", err)
	}
	edges, err := s.groupCounts(ctx, `SELECT rel_type, COUNT(*) FROM edges GROUP BY rel_type`)
	if err != nil {
		return graph.Stats{}, fmt.Errorf("count edges: %w", err)
	}
	return graph.Stats{NodesByType: nodes, EdgesByType: edges}, nil
}

// AllNodes implements graph.Dumper.
func (s *SQLStore) AllNodes(ctx context.Context) ([]graph.Node, error) {
	nodes := []graph.Node{}
	if err := s.db.SelectContext(ctx, &nodes, `SELECT `+nodeColumns+` FROM nodes n ORDER BY n.id`); err != nil {
		return nil, fmt.Errorf("dump nodes: %w", err)
	}
	return nodes, nil
}

// AllEdges implements graph.Dumper.
func (s *SQLStore) AllEdges(ctx context.Context) ([]graph.Edge, error) {
	var rows []struct {
		ID         int64   `db:"id"`
		Src        int64   `db:"src"`
		Dst        int64   `db:"dst"`
		RelType    string  `db:"rel_type"`
		Confidence float64 `db:"confidence"`
		Evidence   string  `db:"evidence_json"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, src, dst, rel_type, COALESCE(confidence, 1.0) AS confidence,
			COALESCE(evidence_json, '') AS evidence_json
		FROM edges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("dump edges: %w", err)
	}
	edges := make([]graph.Edge, 0, len(rows))
	for _, r := range rows {
		edges = append(edges, graph.Edge{
			ID:         r.ID,
			Src:        r.Src,
			Dst:        r.Dst,
			RelType:    graph.RelType(r.RelType),
			Confidence: r.Confidence,
			Evidence:   graph.UnmarshalEvidence(r.Evidence),
		})
	}
	return edges, nil
}
