package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DBDirName is the per-snapshot directory holding the database and caches.
const DBDirName = ".jtriage"

// DBFileName is the default SQLite file inside DBDirName.
const DBFileName = "jtriage.db"

// Config holds all configuration settings
type Config struct {
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Snapshot   SnapshotConfig   `yaml:"snapshot" mapstructure:"snapshot"`
	Matching   MatchingConfig   `yaml:"matching" mapstructure:"matching"`
	Planner    PlannerConfig    `yaml:"planner" mapstructure:"planner"`
	Similarity SimilarityConfig `yaml:"similarity" mapstructure:"similarity"`
	Redaction  RedactionConfig  `yaml:"redaction" mapstructure:"redaction"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Neo4j      Neo4jConfig      `yaml:"neo4j" mapstructure:"neo4j"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "sqlite", "postgres"
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	// LocalPath overrides <snapshot>/.jtriage/jtriage.db when set.
	LocalPath string `yaml:"local_path" mapstructure:"local_path"`
}

type SnapshotConfig struct {
	ScanDirs               []string `yaml:"scan_dirs" mapstructure:"scan_dirs"`
	TextExtensions         []string `yaml:"text_extensions" mapstructure:"text_extensions"`
	MetadataOnlyExtensions []string `yaml:"metadata_only_extensions" mapstructure:"metadata_only_extensions"`
	MaxTextSize            int64    `yaml:"max_text_size" mapstructure:"max_text_size"`
	Workers                int      `yaml:"workers" mapstructure:"workers"`
}

type MatchingConfig struct {
	DebugLimit int `yaml:"debug_limit" mapstructure:"debug_limit"`
}

type PlannerConfig struct {
	DefaultLimit int    `yaml:"default_limit" mapstructure:"default_limit"`
	Language     string `yaml:"language" mapstructure:"language"` // "en", "ru"
}

type SimilarityConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	Limit     int     `yaml:"limit" mapstructure:"limit"`
}

type RedactionConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

type RulesConfig struct {
	// Path to an external-signal rules YAML; empty uses the embedded set.
	Path string `yaml:"path" mapstructure:"path"`
}

type CacheConfig struct {
	Directory string `yaml:"directory" mapstructure:"directory"`
}

type Neo4jConfig struct {
	URI       string `yaml:"uri" mapstructure:"uri"`
	User      string `yaml:"user" mapstructure:"user"`
	Password  string `yaml:"password" mapstructure:"password"`
	Database  string `yaml:"database" mapstructure:"database"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageConfig{
			Type: "sqlite",
		},
		Snapshot: SnapshotConfig{
			ScanDirs: []string{"procs", "master", "control", "insert", "docdef"},
			TextExtensions: []string{
				".procs", ".sh", ".pl", ".py", ".control", ".ins",
				".txt", ".md", ".cfg", ".conf", ".ini", ".sql", ".dfa",
			},
			MetadataOnlyExtensions: []string{".afp", ".pdf", ".zip", ".pgp", ".log"},
			MaxTextSize:            1024 * 1024,
			Workers:                8,
		},
		Matching: MatchingConfig{
			DebugLimit: 10,
		},
		Planner: PlannerConfig{
			DefaultLimit: 5,
			Language:     "en",
		},
		Similarity: SimilarityConfig{
			Threshold: 0.3,
			Limit:     3,
		},
		Cache: CacheConfig{
			Directory: filepath.Join(homeDir, ".jtriage", "cache"),
		},
		Neo4j: Neo4jConfig{
			URI:       "bolt://localhost:7687",
			User:      "neo4j",
			Database:  "neo4j",
			BatchSize: 500,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("snapshot", cfg.Snapshot)
	v.SetDefault("matching", cfg.Matching)
	v.SetDefault("planner", cfg.Planner)
	v.SetDefault("similarity", cfg.Similarity)
	v.SetDefault("redaction", cfg.Redaction)
	v.SetDefault("rules", cfg.Rules)
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("logging", cfg.Logging)

	v.SetEnvPrefix("JTRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(DBDirName)
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".jtriage"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Storage.LocalPath = expandPath(cfg.Storage.LocalPath)
	cfg.Cache.Directory = expandPath(cfg.Cache.Directory)
	cfg.Rules.Path = expandPath(cfg.Rules.Path)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides a variable that is already set, so earlier files win.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env", ".env.example"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	if parentEnv, err := findEnvFile(); err == nil {
		_ = godotenv.Load(parentEnv)
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".jtriage", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("JTRIAGE_DB"); path != "" {
		cfg.Storage.LocalPath = path
	}

	if n := GetInt("SCAN_WORKERS", 0); n > 0 {
		cfg.Snapshot.Workers = n
	}

	if threshold := os.Getenv("SIMILARITY_THRESHOLD"); threshold != "" {
		if f, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.Similarity.Threshold = f
		}
	}
	cfg.Redaction.Enabled = GetBool("REDACT_PII", cfg.Redaction.Enabled)

	if rules := os.Getenv("SIGNAL_RULES_PATH"); rules != "" {
		cfg.Rules.Path = rules
	}
	if dir := os.Getenv("CACHE_DIRECTORY"); dir != "" {
		cfg.Cache.Directory = dir
	}
	cfg.Planner.Language = GetString("PLAN_LANG", cfg.Planner.Language)

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Neo4j.User = user
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		cfg.Neo4j.Database = db
	}
	// Precedence: env var, then keychain, then config file.
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	} else if cfg.Neo4j.Password == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if stored, err := km.GetNeo4jPassword(); err == nil && stored != "" {
				cfg.Neo4j.Password = stored
			}
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.Logging.File = expandPath(file)
	}
}

// DBPath returns where the triage database for snapshot lives.
func (c *Config) DBPath(snapshot string) string {
	if c.Storage.LocalPath != "" {
		return c.Storage.LocalPath
	}
	return filepath.Join(snapshot, DBDirName, DBFileName)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file. The Neo4j password is never written.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	neo := c.Neo4j
	neo.Password = ""

	v.Set("storage", c.Storage)
	v.Set("snapshot", c.Snapshot)
	v.Set("matching", c.Matching)
	v.Set("planner", c.Planner)
	v.Set("similarity", c.Similarity)
	v.Set("redaction", c.Redaction)
	v.Set("rules", c.Rules)
	v.Set("cache", c.Cache)
	v.Set("neo4j", neo)
	v.Set("logging", c.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
