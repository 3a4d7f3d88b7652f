package incidents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rohankatakam/jobtriage/internal/graph"
	"github.com/rohankatakam/jobtriage/internal/hypotheses"
	"github.com/rohankatakam/jobtriage/internal/logparse"
	"github.com/rohankatakam/jobtriage/internal/similarity"
)

// DefaultListLimit is how many incidents List returns by default.
const DefaultListLimit = 20

// maxStoredHypotheses caps the hypotheses kept per incident.
const maxStoredHypotheses = 5

// ErrNotFound is returned when no incident matches.
var ErrNotFound = errors.New("incident not found")

// Database handles incident persistence. It works against the SQLite or
// PostgreSQL connection the main store opened; queries are rebound for the
// driver in use.
type Database struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewDatabase creates a new incident database client
func NewDatabase(db *sqlx.DB) *Database {
	return &Database{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Record is the outcome of one explain run, ready to persist.
type Record struct {
	LogPath    string
	Analysis   *logparse.Analysis
	TopNode    *graph.Node
	Confidence float64
	Hypotheses []hypotheses.Hypothesis
	Similar    []similarity.Case
}

type storedHypothesis struct {
	Hypothesis string  `json:"hypothesis"`
	Confidence float64 `json:"confidence"`
	LineNumber int     `json:"line_number"`
}

type storedCase struct {
	CaseID     int64   `json:"case_id"`
	Title      string  `json:"title"`
	MatchScore float64 `json:"match_score"`
}

// Incident converts the record to its stored form.
func (r Record) Incident() (*Incident, error) {
	if r.LogPath == "" {
		return nil, fmt.Errorf("incident requires a log path")
	}
	inc := &Incident{LogPath: r.LogPath, ParsedJSON: "{}"}

	if r.Analysis != nil {
		parsed, err := r.Analysis.JSON()
		if err != nil {
			return nil, fmt.Errorf("encode analysis: %w", err)
		}
		inc.ParsedJSON = parsed
	}
	if r.TopNode != nil {
		id, key := r.TopNode.ID, r.TopNode.Key
		inc.TopNodeID = &id
		inc.TopNodeKey = &key
	}
	conf := r.Confidence
	inc.Confidence = &conf

	hyps := r.Hypotheses
	if len(hyps) > maxStoredHypotheses {
		hyps = hyps[:maxStoredHypotheses]
	}
	stored := make([]storedHypothesis, 0, len(hyps))
	for _, h := range hyps {
		stored = append(stored, storedHypothesis{Hypothesis: h.Text, Confidence: h.Confidence, LineNumber: h.LineNumber})
	}
	b, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode hypotheses: %w", err)
	}
	s := string(b)
	inc.HypothesesJSON = &s

	if len(r.Similar) > 0 {
		cases := make([]storedCase, 0, len(r.Similar))
		for _, c := range r.Similar {
			cases = append(cases, storedCase{CaseID: c.CaseID, Title: c.Title, MatchScore: c.Score})
		}
		b, err := json.Marshal(cases)
		if err != nil {
			return nil, fmt.Errorf("encode similar cases: %w", err)
		}
		s := string(b)
		inc.SimilarCasesJSON = &s
	}
	return inc, nil
}

// Save inserts inc, or updates the incident already stored for its log path.
// It reports whether a new row was created; inc.ID is set either way.
func (d *Database) Save(ctx context.Context, inc *Incident) (bool, error) {
	if inc == nil {
		return false, fmt.Errorf("incident cannot be nil")
	}
	if inc.LogPath == "" {
		return false, fmt.Errorf("incident requires a log path")
	}

	var existing Incident
	err := d.db.GetContext(ctx, &existing, d.db.Rebind(`SELECT * FROM incidents WHERE log_path = ?`), inc.LogPath)
	switch {
	case err == nil:
		now := d.now()
		inc.ID = existing.ID
		inc.CreatedAt = existing.CreatedAt
		inc.UpdatedAt = &now
		query := `
			UPDATE incidents
			SET parsed_json = :parsed_json,
			    top_node_id = :top_node_id,
			    top_node_key = :top_node_key,
			    confidence = :confidence,
			    hypotheses_json = :hypotheses_json,
			    similar_cases_json = :similar_cases_json,
			    updated_at = :updated_at
			WHERE id = :id
		`
		if _, err := d.db.NamedExecContext(ctx, query, inc); err != nil {
			return false, fmt.Errorf("update incident: %w", err)
		}
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("look up incident: %w", err)
	}

	if inc.ID == uuid.Nil {
		inc.ID = uuid.New()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = d.now()
	}
	inc.UpdatedAt = nil

	query := `
		INSERT INTO incidents (id, log_path, parsed_json, top_node_id, top_node_key, confidence,
		                       hypotheses_json, similar_cases_json, created_at, updated_at)
		VALUES (:id, :log_path, :parsed_json, :top_node_id, :top_node_key, :confidence,
		        :hypotheses_json, :similar_cases_json, :created_at, :updated_at)
	`
	if _, err := d.db.NamedExecContext(ctx, query, inc); err != nil {
		return false, fmt.Errorf("insert incident: %w", err)
	}
	return true, nil
}

// Get retrieves an incident by ID.
func (d *Database) Get(ctx context.Context, id uuid.UUID) (*Incident, error) {
	return d.getWhere(ctx, "id = ?", id)
}

// ByLogPath retrieves the incident recorded for a log file.
func (d *Database) ByLogPath(ctx context.Context, logPath string) (*Incident, error) {
	return d.getWhere(ctx, "log_path = ?", logPath)
}

func (d *Database) getWhere(ctx context.Context, where string, arg interface{}) (*Incident, error) {
	var inc Incident
	err := d.db.GetContext(ctx, &inc, d.db.Rebind("SELECT * FROM incidents WHERE "+where), arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &inc, nil
}

// Delete removes an incident.
func (d *Database) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := d.db.ExecContext(ctx, d.db.Rebind(`DELETE FROM incidents WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the most recently analysed incidents first.
func (d *Database) List(ctx context.Context, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT * FROM incidents ORDER BY COALESCE(updated_at, created_at) DESC, log_path LIMIT ?`

	incidents := []Incident{}
	if err := d.db.SelectContext(ctx, &incidents, d.db.Rebind(query), limit); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return incidents, nil
}

// Count returns the number of stored incidents.
func (d *Database) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM incidents`); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return n, nil
}

// StatsByNode aggregates incidents per matched node, busiest first.
func (d *Database) StatsByNode(ctx context.Context, limit int) ([]NodeStats, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	since := d.now().AddDate(0, 0, -30)

	query := `
		SELECT
		    COALESCE(top_node_key, 'unknown') AS node_key,
		    COUNT(*) AS total,
		    COALESCE(SUM(CASE WHEN COALESCE(updated_at, created_at) >= ? THEN 1 ELSE 0 END), 0) AS last_30_days,
		    COALESCE(AVG(confidence), 0) AS avg_confidence
		FROM incidents
		GROUP BY COALESCE(top_node_key, 'unknown')
		ORDER BY total DESC, node_key
		LIMIT ?
	`
	stats := []NodeStats{}
	if err := d.db.SelectContext(ctx, &stats, d.db.Rebind(query), since, limit); err != nil {
		return nil, fmt.Errorf("incident stats: %w", err)
	}
	return stats, nil
}
