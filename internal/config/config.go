// Package config provides configuration for the veltab CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veltab/veltab/pkg/types"
)

// Source identifies the backend type a table is served by.
type Source string

const (
	SourceMemory Source = "memory"
	SourceCSV    Source = "csv"
	SourceSQLite Source = "sqlite"
	SourceJSONL  Source = "jsonl"
)

// Config holds the configuration for one veltab database.
type Config struct {
	// DefaultCollation names the database-wide collation: binary, nocase,
	// or a BCP-47 tag such as "de" or "sv-SE".
	DefaultCollation string `json:"default_collation" yaml:"default_collation"`

	// Storage configures the object store backing jsonl tables.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Tables lists the tables to register.
	Tables []TableConfig `json:"tables" yaml:"tables"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage root (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// PathStyle enables path-style addressing (required for MinIO)
	PathStyle bool `json:"path_style" yaml:"path_style"`
}

// TableConfig describes one table to register.
type TableConfig struct {
	// Name is the table name used in SQL
	Name string `json:"name" yaml:"name"`

	// Source is the backend type: memory, csv, sqlite, jsonl
	Source Source `json:"source" yaml:"source"`

	// Collation overrides the database default for this table
	Collation string `json:"collation" yaml:"collation"`

	// Schema lists the table's columns
	Schema []ColumnConfig `json:"schema" yaml:"schema"`

	// CSV configuration (for csv source)
	CSV CSVConfig `json:"csv" yaml:"csv"`

	// SQLite configuration (for sqlite source)
	SQLite SQLiteConfig `json:"sqlite" yaml:"sqlite"`

	// JSONL configuration (for jsonl source)
	JSONL JSONLConfig `json:"jsonl" yaml:"jsonl"`

	// Seed holds initial rows (for memory source)
	Seed []map[string]interface{} `json:"seed" yaml:"seed"`
}

// ColumnConfig describes one column.
type ColumnConfig struct {
	// Name is the column name
	Name string `json:"name" yaml:"name"`

	// Type is the column type: any, integer, float, text, bool, blob
	Type string `json:"type" yaml:"type"`

	// Indexed marks the column for backend-side pruning
	Indexed bool `json:"indexed" yaml:"indexed"`
}

// CSVConfig holds csv source configuration.
type CSVConfig struct {
	// Path is the CSV file path
	Path string `json:"path" yaml:"path"`

	// Delimiter is the field delimiter (default ",")
	Delimiter string `json:"delimiter" yaml:"delimiter"`
}

// SQLiteConfig holds sqlite source configuration.
type SQLiteConfig struct {
	// Path is the SQLite database file path
	Path string `json:"path" yaml:"path"`

	// Table is the table name inside the database (default: the table name)
	Table string `json:"table" yaml:"table"`
}

// JSONLConfig holds jsonl source configuration.
type JSONLConfig struct {
	// Prefix is the key prefix the table's segments live under
	// (default: tables/<name>)
	Prefix string `json:"prefix" yaml:"prefix"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DefaultCollation: "binary",
		Storage: StorageConfig{
			Type: "local",
			Path: "./data/veltab",
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides configuration from environment variables.
// Environment variables use the VELTAB_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("VELTAB_DEFAULT_COLLATION"); v != "" {
		cfg.DefaultCollation = v
	}
	if v := os.Getenv("VELTAB_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("VELTAB_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("VELTAB_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("VELTAB_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("VELTAB_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	seen := make(map[string]bool, len(c.Tables))
	for i := range c.Tables {
		t := &c.Tables[i]
		if t.Name == "" {
			return fmt.Errorf("tables[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate table name: %s", t.Name)
		}
		seen[t.Name] = true

		switch t.Source {
		case SourceMemory, SourceJSONL:
		case SourceCSV:
			if t.CSV.Path == "" {
				return fmt.Errorf("table %s: csv.path is required", t.Name)
			}
		case SourceSQLite:
			if t.SQLite.Path == "" {
				return fmt.Errorf("table %s: sqlite.path is required", t.Name)
			}
		default:
			return fmt.Errorf("table %s: invalid source: %s (must be memory, csv, sqlite, or jsonl)", t.Name, t.Source)
		}

		if len(t.Schema) == 0 {
			return fmt.Errorf("table %s: schema is required", t.Name)
		}
		for _, col := range t.Schema {
			if _, err := ParseColumnType(col.Type); err != nil {
				return fmt.Errorf("table %s, column %s: %w", t.Name, col.Name, err)
			}
		}
	}
	return nil
}

// ColumnDefs converts a table's column configuration into schema
// definitions. Validate must have passed first.
func (t *TableConfig) ColumnDefs() []types.ColumnDef {
	defs := make([]types.ColumnDef, len(t.Schema))
	for i, col := range t.Schema {
		ct, _ := ParseColumnType(col.Type)
		defs[i] = types.ColumnDef{Name: col.Name, Type: ct, Indexed: col.Indexed}
	}
	return defs
}

// ParseColumnType maps a config type name onto a column type. An empty name
// means any.
func ParseColumnType(name string) (types.ColumnType, error) {
	switch strings.ToLower(name) {
	case "", "any":
		return types.ColumnAny, nil
	case "integer", "int":
		return types.ColumnInteger, nil
	case "float", "real":
		return types.ColumnFloat, nil
	case "text", "string":
		return types.ColumnText, nil
	case "bool", "boolean":
		return types.ColumnBool, nil
	case "blob", "bytes":
		return types.ColumnBlob, nil
	default:
		return types.ColumnAny, fmt.Errorf("unknown column type: %s", name)
	}
}
