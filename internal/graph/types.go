// Package graph models the job dependency graph: typed nodes addressed by a
// unique "{type}:{identifier}" key and typed, confidence-weighted edges that
// carry the source line they were derived from.
package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeType is the closed set of node kinds.
type NodeType string

const (
	NodeProc    NodeType = "proc"
	NodeScript  NodeType = "script"
	NodeControl NodeType = "control"
	NodeInsert  NodeType = "insert"
	NodeDocdef  NodeType = "docdef"
	NodeLog     NodeType = "log"
)

// NodeTypes lists every NodeType in display order.
var NodeTypes = []NodeType{NodeProc, NodeScript, NodeControl, NodeInsert, NodeDocdef, NodeLog}

// Validate rejects values outside the closed set.
func (t NodeType) Validate() error {
	switch t {
	case NodeProc, NodeScript, NodeControl, NodeInsert, NodeDocdef, NodeLog:
		return nil
	}
	return fmt.Errorf("invalid node type: %q", string(t))
}

// Label is the Neo4j label used when mirroring the graph.
func (t NodeType) Label() string {
	switch t {
	case NodeProc:
		return "Proc"
	case NodeScript:
		return "Script"
	case NodeControl:
		return "Control"
	case NodeInsert:
		return "Insert"
	case NodeDocdef:
		return "Docdef"
	case NodeLog:
		return "Log"
	}
	return "Unknown"
}

// RelType is the closed set of edge relations.
type RelType string

const (
	RelRuns     RelType = "RUNS"
	RelReads    RelType = "READS"
	RelCalls    RelType = "CALLS"
	RelRefersTo RelType = "REFERS_TO"
)

// RelTypes lists every RelType.
var RelTypes = []RelType{RelRuns, RelReads, RelCalls, RelRefersTo}

func (r RelType) Validate() error {
	switch r {
	case RelRuns, RelReads, RelCalls, RelRefersTo:
		return nil
	}
	return fmt.Errorf("invalid relation type: %q", string(r))
}

// NodeKey builds the unique key for a node.
func NodeKey(t NodeType, id string) string {
	return string(t) + ":" + id
}

// SplitKey returns the identifier part of a key ("proc:wccuds1" -> "wccuds1").
func SplitKey(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Node is a typed entity in the dependency graph. Empty CanonicalPath or
// OriginalPath means the path is unknown.
type Node struct {
	ID            int64    `json:"id" db:"id"`
	Type          NodeType `json:"type" db:"type"`
	Key           string   `json:"key" db:"key"`
	DisplayName   string   `json:"display_name" db:"display_name"`
	CanonicalPath string   `json:"canonical_path,omitempty" db:"canonical_path"`
	OriginalPath  string   `json:"original_path,omitempty" db:"original_path"`
	Confidence    float64  `json:"confidence" db:"confidence"`
}

// Evidence points at the source line an edge was derived from.
type Evidence struct {
	File     string `json:"file"`
	LineNo   *int   `json:"line_no"`
	LineText string `json:"line_text"`
}

// Line returns a pointer to n for Evidence.LineNo.
func Line(n int) *int {
	return &n
}

// MarshalEvidence encodes e for storage; nil encodes to "".
func MarshalEvidence(e *Evidence) (string, error) {
	if e == nil {
		return "", nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalEvidence decodes a stored evidence blob. Empty or malformed input
// yields nil.
func UnmarshalEvidence(s string) *Evidence {
	if s == "" {
		return nil
	}
	var e Evidence
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return nil
	}
	return &e
}

// Edge is a directed relation between two nodes.
type Edge struct {
	ID         int64     `json:"id"`
	Src        int64     `json:"src"`
	Dst        int64     `json:"dst"`
	RelType    RelType   `json:"rel_type"`
	Confidence float64   `json:"confidence"`
	Evidence   *Evidence `json:"evidence,omitempty"`
}

// Neighbor is a node one hop away together with the connecting edge.
type Neighbor struct {
	Node       Node      `json:"node"`
	RelType    RelType   `json:"rel_type"`
	Confidence float64   `json:"confidence"`
	Evidence   *Evidence `json:"evidence,omitempty"`
}

// Neighbors is the one-hop neighbourhood of a node.
type Neighbors struct {
	Upstream   []Neighbor `json:"upstream"`
	Downstream []Neighbor `json:"downstream"`
}

// Stats counts nodes and edges by type.
type Stats struct {
	NodesByType map[string]int `json:"nodes_by_type"`
	EdgesByType map[string]int `json:"edges_by_type"`
}

// TotalNodes sums NodesByType.
func (s Stats) TotalNodes() int {
	n := 0
	for _, c := range s.NodesByType {
		n += c
	}
	return n
}

// TotalEdges sums EdgesByType.
func (s Stats) TotalEdges() int {
	n := 0
	for _, c := range s.EdgesByType {
		n += c
	}
	return n
}
