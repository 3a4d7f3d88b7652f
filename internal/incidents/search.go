package incidents

import (
	"context"
	"fmt"
	"strings"
)

const defaultSearchLimit = 10

type searchRow struct {
	Incident
	Tier int `db:"tier"`
}

// Search finds incidents whose log path, node key, hypotheses, similar
// cases or parsed signals contain query (case-insensitive). Path and key
// hits rank first, then hypothesis hits, then everything else; within a
// tier the most recent incident comes first.
func (d *Database) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	sqlQuery := `
		SELECT *, CASE
		    WHEN LOWER(log_path) LIKE ? ESCAPE '\' OR LOWER(COALESCE(top_node_key, '')) LIKE ? ESCAPE '\' THEN 0
		    WHEN LOWER(COALESCE(hypotheses_json, '')) LIKE ? ESCAPE '\' OR LOWER(COALESCE(similar_cases_json, '')) LIKE ? ESCAPE '\' THEN 1
		    ELSE 2
		END AS tier
		FROM incidents
		WHERE LOWER(log_path) LIKE ? ESCAPE '\'
		   OR LOWER(COALESCE(top_node_key, '')) LIKE ? ESCAPE '\'
		   OR LOWER(COALESCE(hypotheses_json, '')) LIKE ? ESCAPE '\'
		   OR LOWER(COALESCE(similar_cases_json, '')) LIKE ? ESCAPE '\'
		   OR LOWER(parsed_json) LIKE ? ESCAPE '\'
		ORDER BY tier, COALESCE(updated_at, created_at) DESC, log_path
		LIMIT ?
	`
	args := make([]interface{}, 0, 10)
	for i := 0; i < 9; i++ {
		args = append(args, pattern)
	}
	args = append(args, limit)

	var rows []searchRow
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(sqlQuery), args...); err != nil {
		return nil, fmt.Errorf("search incidents: %w", err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		relevance := RelevanceLow
		switch r.Tier {
		case 0:
			relevance = RelevanceHigh
		case 1:
			relevance = RelevanceMedium
		}
		results = append(results, SearchResult{Incident: r.Incident, Relevance: relevance})
	}
	return results, nil
}

// SearchByNode returns incidents matched to the given node key.
func (d *Database) SearchByNode(ctx context.Context, nodeKey string, limit int) ([]Incident, error) {
	if nodeKey == "" {
		return nil, fmt.Errorf("node key cannot be empty")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT * FROM incidents WHERE top_node_key = ? ORDER BY COALESCE(updated_at, created_at) DESC LIMIT ?`

	incidents := []Incident{}
	if err := d.db.SelectContext(ctx, &incidents, d.db.Rebind(query), nodeKey, limit); err != nil {
		return nil, fmt.Errorf("search incidents by node: %w", err)
	}
	return incidents, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
