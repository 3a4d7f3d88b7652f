package storage

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// NewPostgresStore connects to a shared PostgreSQL database.
func NewPostgresStore(dsn string, logger *logrus.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &SQLStore{
		db:      db,
		dialect: DialectPostgres,
		logger:  logger,
	}
	if err := store.initSchema(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS artifacts (
		id BIGSERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		original_path TEXT,
		sha256 TEXT,
		mtime DOUBLE PRECISION NOT NULL,
		size BIGINT NOT NULL,
		text_content TEXT
	);

	CREATE TABLE IF NOT EXISTS procs (
		id BIGSERIAL PRIMARY KEY,
		proc_name TEXT NOT NULL UNIQUE,
		path TEXT NOT NULL,
		parsed_json TEXT NOT NULL,
		sha256 TEXT
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		key TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		canonical_path TEXT,
		original_path TEXT,
		confidence DOUBLE PRECISION DEFAULT 1.0
	);

	CREATE TABLE IF NOT EXISTS edges (
		id BIGSERIAL PRIMARY KEY,
		src BIGINT NOT NULL REFERENCES nodes(id),
		dst BIGINT NOT NULL REFERENCES nodes(id),
		rel_type TEXT NOT NULL,
		confidence DOUBLE PRECISION DEFAULT 1.0,
		evidence_json TEXT,
		UNIQUE (src, dst, rel_type)
	);

	CREATE TABLE IF NOT EXISTS incidents (
		id UUID PRIMARY KEY,
		log_path TEXT NOT NULL UNIQUE,
		parsed_json TEXT NOT NULL,
		top_node_id BIGINT REFERENCES nodes(id),
		top_node_key TEXT,
		confidence DOUBLE PRECISION,
		hypotheses_json TEXT,
		similar_cases_json TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS case_cards (
		id BIGSERIAL PRIMARY KEY,
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
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ,
		UNIQUE (source_path, chunk_id)
	);

	CREATE TABLE IF NOT EXISTS message_codes (
		code TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT,
		body TEXT NOT NULL,
		source_path TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
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
