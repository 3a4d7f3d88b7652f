package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Export operations
const (
	OpExportNodes = "export_nodes"
	OpExportEdges = "export_edges"
)

// TxConfig bounds one export transaction. Metadata shows up in Neo4j's
// query.log next to the statement.
type TxConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// DefaultTxConfigs returns the config per export operation.
func DefaultTxConfigs() map[string]TxConfig {
	return map[string]TxConfig{
		OpExportNodes: {
			Timeout: 2 * time.Minute,
			Metadata: map[string]any{
				"operation": OpExportNodes,
				"app":       "jtriage",
				"type":      "write",
			},
		},
		// MATCH on both endpoints is slower than the node MERGE
		OpExportEdges: {
			Timeout: 3 * time.Minute,
			Metadata: map[string]any{
				"operation": OpExportEdges,
				"app":       "jtriage",
				"type":      "write",
			},
		},
	}
}

// TxConfigFor returns the config for operation, or a 60s default.
func TxConfigFor(operation string) TxConfig {
	if tc, ok := DefaultTxConfigs()[operation]; ok {
		return tc
	}
	return TxConfig{
		Timeout: 60 * time.Second,
		Metadata: map[string]any{
			"operation": operation,
			"app":       "jtriage",
			"type":      "unknown",
		},
	}
}

// With returns a copy with one more metadata entry.
func (tc TxConfig) With(key string, value any) TxConfig {
	md := make(map[string]any, len(tc.Metadata)+1)
	for k, v := range tc.Metadata {
		md[k] = v
	}
	md[key] = value
	return TxConfig{Timeout: tc.Timeout, Metadata: md}
}

func (tc TxConfig) neo4jOptions() []func(*neo4j.TransactionConfig) {
	var opts []func(*neo4j.TransactionConfig)
	if tc.Timeout > 0 {
		opts = append(opts, neo4j.WithTxTimeout(tc.Timeout))
	}
	if len(tc.Metadata) > 0 {
		opts = append(opts, neo4j.WithTxMetadata(tc.Metadata))
	}
	return opts
}
