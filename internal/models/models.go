// Package models holds the persisted records that are not part of the
// dependency graph itself.
package models

import "time"

// Artifact kinds assigned during scan. Files outside these fall back to the
// name of the scanned directory they were found in.
const (
	KindProcs   = "procs"
	KindScript  = "script"
	KindControl = "control"
	KindInsert  = "insert"
	KindDocdef  = "docdef"
)

// Artifact is one file from the snapshot.
type Artifact struct {
	ID           int64   `json:"id" db:"id"`
	Kind         string  `json:"kind" db:"kind"`
	Path         string  `json:"path" db:"path"` // snapshot-relative, forward slashes
	OriginalPath string  `json:"original_path,omitempty" db:"original_path"`
	SHA256       string  `json:"sha256,omitempty" db:"sha256"`
	MTime        float64 `json:"mtime" db:"mtime"`
	Size         int64   `json:"size" db:"size"`
	TextContent  string  `json:"-" db:"text_content"`
}

// ProcRecord is a parsed job definition keyed by lowercase proc name.
type ProcRecord struct {
	ID         int64  `json:"id" db:"id"`
	Name       string `json:"proc_name" db:"proc_name"`
	Path       string `json:"path" db:"path"`
	ParsedJSON string `json:"parsed_json" db:"parsed_json"`
	SHA256     string `json:"sha256,omitempty" db:"sha256"`
}

// CaseCard is one resolved problem extracted from an engineer's session
// history.
type CaseCard struct {
	ID             int64     `json:"id" db:"id"`
	SourcePath     string    `json:"source_path" db:"source_path"`
	ChunkID        int       `json:"chunk_id" db:"chunk_id"`
	ContentHash    string    `json:"content_hash" db:"content_hash"`
	Title          string    `json:"title,omitempty" db:"title"`
	Signals        []string  `json:"signals"`
	RootCause      string    `json:"root_cause,omitempty" db:"root_cause"`
	FixSummary     string    `json:"fix_summary,omitempty" db:"fix_summary"`
	VerifyCommands []string  `json:"verify_commands"`
	RelatedFiles   []string  `json:"related_files"`
	Tags           []string  `json:"tags"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// MessageCode is a vendor message definition from the knowledge base.
type MessageCode struct {
	Code       string    `json:"code" db:"code"`
	Severity   string    `json:"severity" db:"severity"` // I, W, E, F
	Title      string    `json:"title,omitempty" db:"title"`
	Body       string    `json:"body" db:"body"`
	SourcePath string    `json:"source_path" db:"source_path"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// SeverityName expands a one-letter message severity.
func SeverityName(s string) string {
	switch s {
	case "I":
		return "Info"
	case "W":
		return "Warning"
	case "E":
		return "Error"
	case "F":
		return "Fatal"
	default:
		return "Unknown"
	}
}
