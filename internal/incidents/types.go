package incidents

import (
	"time"

	"github.com/google/uuid"
)

// Incident is one analysed failure log. The log path is unique: analysing
// the same log again updates the existing incident.
type Incident struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	LogPath          string     `db:"log_path" json:"log_path"`
	ParsedJSON       string     `db:"parsed_json" json:"parsed_json"`
	TopNodeID        *int64     `db:"top_node_id" json:"top_node_id,omitempty"`
	TopNodeKey       *string    `db:"top_node_key" json:"top_node_key,omitempty"`
	Confidence       *float64   `db:"confidence" json:"confidence,omitempty"`
	HypothesesJSON   *string    `db:"hypotheses_json" json:"hypotheses_json,omitempty"`
	SimilarCasesJSON *string    `db:"similar_cases_json" json:"similar_cases_json,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// NodeKey returns the matched node key or "unknown".
func (i Incident) NodeKey() string {
	if i.TopNodeKey == nil || *i.TopNodeKey == "" {
		return "unknown"
	}
	return *i.TopNodeKey
}

// LastAnalyzed is the update time, falling back to the creation time.
func (i Incident) LastAnalyzed() time.Time {
	if i.UpdatedAt != nil {
		return *i.UpdatedAt
	}
	return i.CreatedAt
}

// Relevance grades a search hit by where the query matched.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"   // log path or node key
	RelevanceMedium Relevance = "medium" // hypotheses or similar cases
	RelevanceLow    Relevance = "low"    // parsed signals
)

// SearchResult is one incident found by Search.
type SearchResult struct {
	Incident  Incident  `json:"incident"`
	Relevance Relevance `json:"relevance"`
}

// NodeStats aggregates incidents for one matched node.
type NodeStats struct {
	NodeKey        string  `db:"node_key" json:"node_key"`
	TotalIncidents int     `db:"total" json:"total_incidents"`
	Last30Days     int     `db:"last_30_days" json:"last_30_days"`
	AvgConfidence  float64 `db:"avg_confidence" json:"avg_confidence"`
}
