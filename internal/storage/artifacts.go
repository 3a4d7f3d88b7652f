package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/models"
)

const artifactColumns = `id, kind, path, COALESCE(original_path, '') AS original_path,
	COALESCE(sha256, '') AS sha256, mtime, size, COALESCE(text_content, '') AS text_content`

// SearchHit is one artifact matched by Search.
type SearchHit struct {
	Path    string `json:"path" db:"path"`
	Kind    string `json:"kind" db:"kind"`
	Snippet string `json:"snippet"`
	Match   string `json:"match"` // "path" or "content"
}

// SaveArtifacts upserts artifacts by path in a single transaction.
func (s *SQLStore) SaveArtifacts(ctx context.Context, artifacts []models.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.q(`
		INSERT INTO artifacts (kind, path, original_path, sha256, mtime, size, text_content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			kind = excluded.kind,
			original_path = excluded.original_path,
			sha256 = excluded.sha256,
			mtime = excluded.mtime,
			size = excluded.size,
			text_content = excluded.text_content
	`)
	for _, a := range artifacts {
		_, err := tx.ExecContext(ctx, query,
			a.Kind, a.Path, nullString(a.OriginalPath), nullString(a.SHA256),
			a.MTime, a.Size, nullString(a.TextContent))
		if err != nil {
			return fmt.Errorf("save artifact %s: %w", a.Path, err)
		}
	}
	return tx.Commit()
}

// Artifact returns the artifact stored under a snapshot-relative path.
func (s *SQLStore) Artifact(ctx context.Context, path string) (*models.Artifact, error) {
	var a models.Artifact
	err := s.db.GetContext(ctx, &a, s.q(`SELECT `+artifactColumns+` FROM artifacts WHERE path = ?`), path)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ArtifactsByKind returns artifacts of kind whose path contains pathContains
// (case-insensitive; empty matches all), ordered by path.
func (s *SQLStore) ArtifactsByKind(ctx context.Context, kind, pathContains string) ([]models.Artifact, error) {
	artifacts := []models.Artifact{}
	err := s.db.SelectContext(ctx, &artifacts, s.q(`
		SELECT `+artifactColumns+` FROM artifacts
		WHERE kind = ? AND LOWER(path) LIKE LOWER(?) ESCAPE '\'
		ORDER BY path
	`), kind, contains(pathContains))
	if err != nil {
		return nil, fmt.Errorf("list %s artifacts: %w", kind, err)
	}
	return artifacts, nil
}

// ArtifactCounts counts artifacts by kind.
func (s *SQLStore) ArtifactCounts(ctx context.Context) (map[string]int, error) {
	return s.groupCounts(ctx, `SELECT kind, COUNT(*) FROM artifacts GROUP BY kind`)
}

// Search finds artifacts by path substring; when none match it falls back
// to a case-insensitive content substring search.
func (s *SQLStore) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}

	var pathHits []models.Artifact
	err := s.db.SelectContext(ctx, &pathHits, s.q(`
		SELECT `+artifactColumns+` FROM artifacts
		WHERE LOWER(path) LIKE LOWER(?) ESCAPE '\'
		ORDER BY path LIMIT ?
	`), contains(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search paths: %w", err)
	}

	hits := make([]SearchHit, 0, len(pathHits))
	for _, a := range pathHits {
		hits = append(hits, SearchHit{Path: a.Path, Kind: a.Kind, Snippet: snippet(a.TextContent), Match: "path"})
	}
	if len(hits) > 0 {
		return hits, nil
	}

	var contentHits []models.Artifact
	err = s.db.SelectContext(ctx, &contentHits, s.q(`
		SELECT `+artifactColumns+` FROM artifacts
		WHERE text_content IS NOT NULL AND LOWER(text_content) LIKE LOWER(?) ESCAPE '\'
		ORDER BY path LIMIT ?
	`), contains(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	for _, a := range contentHits {
		hits = append(hits, SearchHit{Path: a.Path, Kind: a.Kind, Snippet: snippet(a.TextContent), Match: "content"})
	}
	return hits, nil
}

func snippet(text string) string {
	r := []rune(text)
	if len(r) > 100 {
		r = r[:100]
	}
	return strings.ReplaceAll(string(r), "\n", " ")
}

// SaveProc upserts a parsed job definition by name.
func (s *SQLStore) SaveProc(ctx context.Context, p models.ProcRecord) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO procs (proc_name, path, parsed_json, sha256)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (proc_name) DO UPDATE SET
			path = excluded.path,
			parsed_json = excluded.parsed_json,
			sha256 = excluded.sha256
	`), p.Name, p.Path, p.ParsedJSON, nullString(p.SHA256))
	if err != nil {
		return fmt.Errorf("save proc %s: %w", p.Name, err)
	}
	return nil
}

// ProcContent returns the parsed content of one job definition.
func (s *SQLStore) ProcContent(ctx context.Context, name string) (string, bool, error) {
	var content string
	err := s.db.GetContext(ctx, &content, s.q(`SELECT parsed_json FROM procs WHERE proc_name = ?`), name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

// ProcContents returns every job definition ordered by name.
func (s *SQLStore) ProcContents(ctx context.Context) ([]models.ProcRecord, error) {
	records := []models.ProcRecord{}
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, proc_name, path, parsed_json, COALESCE(sha256, '') AS sha256
		FROM procs ORDER BY proc_name`)
	if err != nil {
		return nil, fmt.Errorf("list procs: %w", err)
	}
	return records, nil
}

// CountProcs counts parsed job definitions.
func (s *SQLStore) CountProcs(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM procs`)
}
