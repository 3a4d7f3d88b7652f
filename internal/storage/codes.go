package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rohankatakam/jobtriage/internal/models"
)

const messageCodeColumns = `code, severity, COALESCE(title, '') AS title, body, source_path, created_at`

// SaveMessageCode inserts or replaces the definition of a code from one
// source document.
func (s *SQLStore) SaveMessageCode(ctx context.Context, mc *models.MessageCode) error {
	if mc.CreatedAt.IsZero() {
		mc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO message_codes (code, severity, title, body, source_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, source_path) DO UPDATE SET
			severity = excluded.severity,
			title = excluded.title,
			body = excluded.body,
			created_at = excluded.created_at
	`), mc.Code, mc.Severity, nullString(mc.Title), mc.Body, mc.SourcePath, mc.CreatedAt)
	if err != nil {
		return fmt.Errorf("save message code %s: %w", mc.Code, err)
	}
	return nil
}

// MessageCode returns one definition of code, or ErrNotFound.
func (s *SQLStore) MessageCode(ctx context.Context, code string) (*models.MessageCode, error) {
	var mc models.MessageCode
	err := s.db.GetContext(ctx, &mc, s.q(`
		SELECT `+messageCodeColumns+` FROM message_codes
		WHERE code = ? ORDER BY source_path LIMIT 1
	`), code)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

// MessageCodes looks up several codes at once. Codes with no definition are
// absent from the result.
func (s *SQLStore) MessageCodes(ctx context.Context, codes []string) (map[string]models.MessageCode, error) {
	out := make(map[string]models.MessageCode)
	if len(codes) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+messageCodeColumns+` FROM message_codes
		WHERE code IN (?) ORDER BY code, source_path`, codes)
	if err != nil {
		return nil, err
	}
	var rows []models.MessageCode
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("lookup message codes: %w", err)
	}
	for _, mc := range rows {
		if _, ok := out[mc.Code]; !ok {
			out[mc.Code] = mc
		}
	}
	return out, nil
}

// CountMessageCodes counts stored definitions.
func (s *SQLStore) CountMessageCodes(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM message_codes`)
}
