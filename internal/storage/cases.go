package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rohankatakam/jobtriage/internal/models"
)

// UpsertOutcome says what SaveCaseCard did.
type UpsertOutcome int

const (
	Inserted UpsertOutcome = iota
	Updated
	Unchanged
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

type caseCardRow struct {
	ID             int64        `db:"id"`
	SourcePath     string       `db:"source_path"`
	ChunkID        int          `db:"chunk_id"`
	ContentHash    string       `db:"content_hash"`
	Title          string       `db:"title"`
	Signals        string       `db:"signals_json"`
	RootCause      string       `db:"root_cause"`
	FixSummary     string       `db:"fix_summary"`
	VerifyCommands string       `db:"verify_commands_json"`
	RelatedFiles   string       `db:"related_files_json"`
	Tags           string       `db:"tags_json"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      sql.NullTime `db:"updated_at"`
}

func (r caseCardRow) card() models.CaseCard {
	c := models.CaseCard{
		ID:          r.ID,
		SourcePath:  r.SourcePath,
		ChunkID:     r.ChunkID,
		ContentHash: r.ContentHash,
		Title:       r.Title,
		RootCause:   r.RootCause,
		FixSummary:  r.FixSummary,
		CreatedAt:   r.CreatedAt,
	}
	if r.UpdatedAt.Valid {
		c.UpdatedAt = r.UpdatedAt.Time
	}
	c.Signals = decodeList(r.Signals)
	c.VerifyCommands = decodeList(r.VerifyCommands)
	c.RelatedFiles = decodeList(r.RelatedFiles)
	c.Tags = decodeList(r.Tags)
	return c
}

func encodeList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func decodeList(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}

// SaveCaseCard inserts a card or updates the one already stored for the same
// (source path, chunk id). A stored card with the same content hash is left
// alone.
func (s *SQLStore) SaveCaseCard(ctx context.Context, c *models.CaseCard) (UpsertOutcome, error) {
	now := time.Now().UTC()

	var existing struct {
		ID          int64  `db:"id"`
		ContentHash string `db:"content_hash"`
	}
	err := s.db.GetContext(ctx, &existing, s.q(`
		SELECT id, COALESCE(content_hash, '') AS content_hash
		FROM case_cards WHERE source_path = ? AND chunk_id = ?
	`), c.SourcePath, c.ChunkID)

	switch {
	case err == sql.ErrNoRows:
		var id int64
		err := s.db.GetContext(ctx, &id, s.q(`
			INSERT INTO case_cards (source_path, chunk_id, content_hash, title, signals_json,
				root_cause, fix_summary, verify_commands_json, related_files_json, tags_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`), c.SourcePath, c.ChunkID, nullString(c.ContentHash), nullString(c.Title),
			encodeList(c.Signals), nullString(c.RootCause), nullString(c.FixSummary),
			encodeList(c.VerifyCommands), encodeList(c.RelatedFiles), encodeList(c.Tags), now)
		if err != nil {
			return Inserted, fmt.Errorf("insert case card: %w", err)
		}
		c.ID = id
		c.CreatedAt = now
		return Inserted, nil

	case err != nil:
		return Unchanged, fmt.Errorf("lookup case card: %w", err)
	}

	c.ID = existing.ID
	if c.ContentHash != "" && existing.ContentHash == c.ContentHash {
		return Unchanged, nil
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		UPDATE case_cards SET
			content_hash = ?, title = ?, signals_json = ?, root_cause = ?, fix_summary = ?,
			verify_commands_json = ?, related_files_json = ?, tags_json = ?, updated_at = ?
		WHERE id = ?
	`), nullString(c.ContentHash), nullString(c.Title), encodeList(c.Signals),
		nullString(c.RootCause), nullString(c.FixSummary), encodeList(c.VerifyCommands),
		encodeList(c.RelatedFiles), encodeList(c.Tags), now, existing.ID)
	if err != nil {
		return Updated, fmt.Errorf("update case card: %w", err)
	}
	c.UpdatedAt = now
	return Updated, nil
}

// CaseCards returns every stored card ordered by id.
func (s *SQLStore) CaseCards(ctx context.Context) ([]models.CaseCard, error) {
	var rows []caseCardRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, COALESCE(source_path, '') AS source_path, COALESCE(chunk_id, 0) AS chunk_id,
			COALESCE(content_hash, '') AS content_hash, COALESCE(title, '') AS title,
			COALESCE(signals_json, '') AS signals_json, COALESCE(root_cause, '') AS root_cause,
			COALESCE(fix_summary, '') AS fix_summary,
			COALESCE(verify_commands_json, '') AS verify_commands_json,
			COALESCE(related_files_json, '') AS related_files_json,
			COALESCE(tags_json, '') AS tags_json, created_at, updated_at
		FROM case_cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list case cards: %w", err)
	}
	cards := make([]models.CaseCard, 0, len(rows))
	for _, r := range rows {
		cards = append(cards, r.card())
	}
	return cards, nil
}

// CountCaseCards counts stored cards.
func (s *SQLStore) CountCaseCards(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM case_cards`)
}
