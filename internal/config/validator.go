package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/jobtriage/internal/errors"
)

// ValidationContext specifies what configuration a command needs.
type ValidationContext string

const (
	// ValidationContextScan - scan writes the store
	ValidationContextScan ValidationContext = "scan"
	// ValidationContextExplain - explain reads the store and rules
	ValidationContextExplain ValidationContext = "explain"
	// ValidationContextPlan - plan reads the store
	ValidationContextPlan ValidationContext = "plan"
	// ValidationContextExport - export-neo4j needs a reachable Neo4j
	ValidationContextExport ValidationContext = "export"
	// ValidationContextAll - validate everything
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  ❌ %s\n", err))
	}
	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠️  %s\n", warn))
		}
	}
	return sb.String()
}

// Validate checks the settings the given command depends on.
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextScan:
		c.validateStorage(result)
		c.validateSnapshot(result)
	case ValidationContextExplain:
		c.validateStorage(result)
		c.validateSimilarity(result)
	case ValidationContextPlan:
		c.validateStorage(result)
		c.validatePlanner(result)
	case ValidationContextExport:
		c.validateStorage(result)
		c.validateNeo4j(result, true)
	case ValidationContextAll:
		c.validateStorage(result)
		c.validateSnapshot(result)
		c.validateSimilarity(result)
		c.validatePlanner(result)
		c.validateNeo4j(result, false)
	}

	return result
}

// Require returns a config error when validation for ctx fails.
func (c *Config) Require(ctx ValidationContext) error {
	result := c.Validate(ctx)
	if result.HasErrors() {
		return errors.ConfigErrorf("%s", strings.TrimSpace(result.Error())).
			WithContext("context", string(ctx))
	}
	return nil
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Type {
	case "sqlite", "":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("POSTGRES_DSN is required when storage.type is postgres")
		} else if _, err := url.Parse(c.Storage.PostgresDSN); err != nil {
			result.AddError("POSTGRES_DSN is invalid: %v", err)
		}
	default:
		result.AddError("storage.type must be sqlite or postgres, got %q", c.Storage.Type)
	}
}

func (c *Config) validateSnapshot(result *ValidationResult) {
	if len(c.Snapshot.ScanDirs) == 0 {
		result.AddError("snapshot.scan_dirs must list at least one directory")
	}
	if c.Snapshot.MaxTextSize <= 0 {
		result.AddError("snapshot.max_text_size must be positive")
	}
	if c.Snapshot.Workers <= 0 {
		result.AddWarning("snapshot.workers is %d, falling back to 1", c.Snapshot.Workers)
	}
}

func (c *Config) validateSimilarity(result *ValidationResult) {
	if c.Similarity.Threshold < 0 || c.Similarity.Threshold > 1 {
		result.AddError("similarity.threshold must be within [0,1], got %.2f", c.Similarity.Threshold)
	}
	if c.Similarity.Limit <= 0 {
		result.AddWarning("similarity.limit is %d, no similar cases will be shown", c.Similarity.Limit)
	}
}

func (c *Config) validatePlanner(result *ValidationResult) {
	if c.Planner.DefaultLimit <= 0 {
		result.AddError("planner.default_limit must be positive")
	}
	switch c.Planner.Language {
	case "en", "ru":
	default:
		result.AddWarning("planner.language %q is not translated, English will be used", c.Planner.Language)
	}
}

func (c *Config) validateNeo4j(result *ValidationResult, required bool) {
	add := result.AddWarning
	if required {
		add = result.AddError
	}

	if c.Neo4j.URI == "" {
		add("NEO4J_URI is not set")
	} else if u, err := url.Parse(c.Neo4j.URI); err != nil {
		result.AddError("NEO4J_URI is invalid: %v", err)
	} else if !strings.HasPrefix(u.Scheme, "bolt") && !strings.HasPrefix(u.Scheme, "neo4j") {
		result.AddError("NEO4J_URI scheme must be bolt:// or neo4j://, got %q", u.Scheme)
	}
	if c.Neo4j.User == "" {
		add("NEO4J_USER is not set")
	}
	if c.Neo4j.Password == "" {
		add("NEO4J_PASSWORD is not set (env, keychain or config file)")
	}
	if c.Neo4j.Database == "" {
		result.AddWarning("NEO4J_DATABASE is not set, will use 'neo4j' as default")
	}
}
