package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rohankatakam/jobtriage/internal/logging"
)

const defaultExportBatchSize = 500

// cypherRunner executes one parameterized write and reports the count the
// query returns.
type cypherRunner interface {
	run(ctx context.Context, tc TxConfig, query string, params map[string]any) (int64, error)
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (d driverRunner) run(ctx context.Context, tc TxConfig, query string, params map[string]any) (int64, error) {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: d.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	written, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return int64(0), err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return int64(0), err
		}
		v, _ := record.Get("written")
		n, _ := v.(int64)
		return n, nil
	}, tc.neo4jOptions()...)
	if err != nil {
		return 0, err
	}
	n, _ := written.(int64)
	return n, nil
}

// ExportStats reports what an export wrote.
type ExportStats struct {
	Nodes    int64         `json:"nodes"`
	Edges    int64         `json:"edges"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// Neo4jExporter mirrors the dependency graph into Neo4j. Nodes are merged on
// their key, so repeated exports update rather than duplicate.
type Neo4jExporter struct {
	driver    neo4j.DriverWithContext
	runner    cypherRunner
	monitor   *TimeoutMonitor
	batchSize int
	logger    *slog.Logger
}

// NewNeo4jExporter connects to Neo4j and verifies connectivity.
func NewNeo4jExporter(ctx context.Context, uri, user, password, database string, batchSize int) (*Neo4jExporter, error) {
	if uri == "" || user == "" || password == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%s, user=%s", uri, user)
	}

	driver, err := neo4j.NewDriverWithContext(uri,
		neo4j.BasicAuth(user, password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 10
			config.ConnectionAcquisitionTimeout = 60 * time.Second
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", uri, err)
	}

	e := newExporter(driverRunner{driver: driver, database: database}, batchSize)
	e.driver = driver
	e.logger.Info("neo4j exporter connected", "uri", uri, "database", database)
	return e, nil
}

func newExporter(r cypherRunner, batchSize int) *Neo4jExporter {
	if batchSize <= 0 {
		batchSize = defaultExportBatchSize
	}
	logger := logging.Component("neo4j")
	return &Neo4jExporter{
		runner:    r,
		monitor:   NewTimeoutMonitor(logger),
		batchSize: batchSize,
		logger:    logger,
	}
}

// Close closes the driver.
func (e *Neo4jExporter) Close(ctx context.Context) error {
	if e.driver == nil {
		return nil
	}
	if err := e.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	return nil
}

// Export writes every node and edge from src.
func (e *Neo4jExporter) Export(ctx context.Context, src Dumper) (*ExportStats, error) {
	start := time.Now()
	nodes, err := src.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := src.AllEdges(ctx)
	if err != nil {
		return nil, err
	}

	stats := &ExportStats{}
	keys := make(map[int64]string, len(nodes))
	byType := make(map[NodeType][]Node)
	for _, n := range nodes {
		keys[n.ID] = n.Key
		byType[n.Type] = append(byType[n.Type], n)
	}

	for _, t := range NodeTypes {
		list := byType[t]
		query := mergeNodesQuery(t)
		for _, batch := range chunk(len(list), e.batchSize) {
			params := map[string]any{"nodes": nodeParams(list[batch[0]:batch[1]])}
			written, err := e.write(ctx, TxConfigFor(OpExportNodes).With("label", t.Label()), query, params)
			if err != nil {
				return stats, fmt.Errorf("batch %s node export failed (batch %d-%d): %w", t, batch[0], batch[1], err)
			}
			stats.Nodes += written
			stats.Batches++
		}
	}

	byRel := make(map[RelType][]Edge)
	for _, edge := range edges {
		byRel[edge.RelType] = append(byRel[edge.RelType], edge)
	}
	for _, r := range RelTypes {
		list := byRel[r]
		query := mergeEdgesQuery(r)
		for _, batch := range chunk(len(list), e.batchSize) {
			params, err := edgeParams(list[batch[0]:batch[1]], keys)
			if err != nil {
				return stats, err
			}
			written, err := e.write(ctx, TxConfigFor(OpExportEdges).With("rel_type", string(r)), query, map[string]any{"edges": params})
			if err != nil {
				return stats, fmt.Errorf("batch %s edge export failed (batch %d-%d): %w", r, batch[0], batch[1], err)
			}
			if written < int64(len(params)) {
				e.logger.Warn("some edges were not written", "rel_type", r, "written", written, "expected", len(params))
			}
			stats.Edges += written
			stats.Batches++
		}
	}

	stats.Duration = time.Since(start)
	e.logger.Info("graph exported", "nodes", stats.Nodes, "edges", stats.Edges, "batches", stats.Batches)
	return stats, nil
}

// write runs one batch under the transaction's timeout.
func (e *Neo4jExporter) write(ctx context.Context, tc TxConfig, query string, params map[string]any) (int64, error) {
	var written int64
	op, _ := tc.Metadata["operation"].(string)
	_, err := e.monitor.Run(ctx, op, tc.Timeout, func(ctx context.Context) error {
		var err error
		written, err = e.runner.run(ctx, tc, query, params)
		return err
	})
	return written, err
}

// mergeNodesQuery builds the UNWIND/MERGE statement for one node type.
// Labels cannot be parameters, so they come from the closed NodeType set.
func mergeNodesQuery(t NodeType) string {
	return fmt.Sprintf(`
		UNWIND $nodes AS node
		MERGE (n:%s {key: node.key})
		SET n += node
		RETURN count(n) AS written
	`, t.Label())
}

func mergeEdgesQuery(r RelType) string {
	return fmt.Sprintf(`
		UNWIND $edges AS edge
		MATCH (a {key: edge.src_key})
		MATCH (b {key: edge.dst_key})
		MERGE (a)-[rel:%s]->(b)
		SET rel.confidence = edge.confidence, rel.evidence = edge.evidence
		RETURN count(rel) AS written
	`, string(r))
}

func nodeParams(nodes []Node) []map[string]any {
	out := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		out[i] = map[string]any{
			"key":            n.Key,
			"type":           string(n.Type),
			"display_name":   n.DisplayName,
			"canonical_path": n.CanonicalPath,
			"original_path":  n.OriginalPath,
			"confidence":     n.Confidence,
		}
	}
	return out
}

func edgeParams(edges []Edge, keys map[int64]string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		src, ok := keys[e.Src]
		if !ok {
			return nil, fmt.Errorf("edge %d references unknown node %d", e.ID, e.Src)
		}
		dst, ok := keys[e.Dst]
		if !ok {
			return nil, fmt.Errorf("edge %d references unknown node %d", e.ID, e.Dst)
		}
		evidence, err := MarshalEvidence(e.Evidence)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"src_key":    src,
			"dst_key":    dst,
			"confidence": e.Confidence,
			"evidence":   evidence,
		})
	}
	return out, nil
}

// chunk splits [0,n) into [start,end) ranges of at most size.
func chunk(n, size int) [][2]int {
	var out [][2]int
	for i := 0; i < n; i += size {
		end := i + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{i, end})
	}
	return out
}
