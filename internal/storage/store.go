// Package storage persists the snapshot index, the dependency graph and the
// triage records in SQLite (local default) or PostgreSQL (shared).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/jobtriage/internal/config"
	"github.com/rohankatakam/jobtriage/internal/graph"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Dialects
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

var (
	_ graph.Store  = (*SQLStore)(nil)
	_ graph.Dumper = (*SQLStore)(nil)
)

// SQLStore implements every store the application needs over one sqlx
// connection. Queries are written with '?' placeholders and rebound for the
// driver in use.
type SQLStore struct {
	db      *sqlx.DB
	dialect string
	logger  *logrus.Logger
}

// Open connects to the store described by cfg. dbPath is used for SQLite.
func Open(cfg config.StorageConfig, dbPath string, logger *logrus.Logger) (*SQLStore, error) {
	switch strings.ToLower(cfg.Type) {
	case "", DialectSQLite:
		return NewSQLiteStore(dbPath, logger)
	case DialectPostgres, "postgresql":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		return NewPostgresStore(cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the connection for packages that own their own tables.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

// Dialect returns DialectSQLite or DialectPostgres.
func (s *SQLStore) Dialect() string {
	return s.dialect
}

func (s *SQLStore) initSchema(schema string) error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	s.logger.WithField("dialect", s.dialect).Debug("schema ready")
	return nil
}

func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

func (s *SQLStore) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.q(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLStore) groupCounts(ctx context.Context, query string) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike escapes LIKE wildcards; pair with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func contains(s string) string { return "%" + escapeLike(s) + "%" }
func prefix(s string) string   { return escapeLike(s) + "%" }
func suffix(s string) string   { return "%" + escapeLike(s) }
