package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// NewSQLiteStore opens (creating if needed) a SQLite database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLStore{
		db:      db,
		dialect: DialectSQLite,
		logger:  logger,
	}
	if err := store.initSchema(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		original_path TEXT,
		sha256 TEXT,
		mtime REAL NOT NULL,
		size INTEGER NOT NULL,
		text_content TEXT
	);

	CREATE TABLE IF NOT EXISTS procs (
		id INTEGER PRIMARY KEY,
		proc_name TEXT NOT NULL UNIQUE,
		path TEXT NOT NULL,
		parsed_json TEXT NOT NULL,
		sha256 TEXT
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY,
		type TEXT NOT NULL,
		key TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		canonical_path TEXT,
		original_path TEXT,
		confidence REAL DEFAULT 1.0
	);

	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY,
		src INTEGER NOT NULL REFERENCES nodes(id),
		dst INTEGER NOT NULL REFERENCES nodes(id),
		rel_type TEXT NOT NULL,
		confidence REAL DEFAULT 1.0,
		evidence_json TEXT,
		UNIQUE (src, dst, rel_type)
	);

	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		log_path TEXT NOT NULL UNIQUE,
		parsed_json TEXT NOT NULL,
		top_node_id INTEGER REFERENCES nodes(id),
		top_node_key TEXT,
		confidence REAL,
		hypotheses_json TEXT,
		similar_cases_json TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS case_cards (
		id INTEGER PRIMARY KEY,
		source_path TEXT,
		chunk_id INTEGER,
		content_hash TEXT,
		title TEXT,
		signals_json TEXT,
		root_cause TEXT,
		fix_summary TEXT,
		verify_commands_json TEXT,
		related_files_json TEXT,
		tags_json TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME,
		UNIQUE (source_path, chunk_id)
	);

	CREATE TABLE IF NOT EXISTS message_codes (
		code TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT,
		body TEXT NOT NULL,
		source_path TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (code, source_path)
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(kind);
	CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);
	CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src);
	CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst);
	CREATE INDEX IF NOT EXISTS idx_edges_rel ON edges(rel_type);
	CREATE INDEX IF NOT EXISTS idx_case_cards_hash ON case_cards(content_hash);
	CREATE INDEX IF NOT EXISTS idx_message_codes_code ON message_codes(code);
	`
