package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/veltab/veltab/internal/config"
)

func memTable(name string) config.TableConfig {
	return config.TableConfig{
		Name:   name,
		Source: config.SourceMemory,
		Schema: []config.ColumnConfig{
			{Name: "id", Type: "integer"},
			{Name: "label", Type: "text"},
		},
		Seed: []map[string]interface{}{
			{"id": int64(1), "label": "one"},
			{"id": int64(2), "label": "two"},
		},
	}
}

func TestOpenAndQuery(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = t.TempDir()
	cfg.Tables = []config.TableConfig{memTable("items")}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	row, err := a.Database().QueryOne(ctx, "SELECT label FROM items WHERE id = 2")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if row == nil || row["label"] != "two" {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestMixedSources(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "pets.csv")
	if err := os.WriteFile(csvPath, []byte("pet,legs\ncat,4\nspider,8\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "objects")
	cfg.Tables = []config.TableConfig{
		memTable("items"),
		{
			Name:   "pets",
			Source: config.SourceCSV,
			CSV:    config.CSVConfig{Path: csvPath},
			Schema: []config.ColumnConfig{
				{Name: "pet", Type: "text"},
				{Name: "legs", Type: "integer"},
			},
		},
		{
			Name:   "logs",
			Source: config.SourceJSONL,
			Schema: []config.ColumnConfig{
				{Name: "msg", Type: "text"},
			},
		},
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	db := a.Database()

	row, err := db.QueryOne(ctx, "SELECT pet FROM pets WHERE legs > 4")
	if err != nil || row == nil || row["pet"] != "spider" {
		t.Fatalf("csv table: row=%v err=%v", row, err)
	}

	if _, err := db.Exec(ctx, "INSERT INTO logs (msg) VALUES ('hello')"); err != nil {
		t.Fatalf("jsonl insert: %v", err)
	}
	row, err = db.QueryOne(ctx, "SELECT COUNT(*) FROM logs")
	if err != nil || row["count"] != int64(1) {
		t.Fatalf("jsonl count: row=%v err=%v", row, err)
	}
}

func TestTableCollationOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = t.TempDir()
	tbl := memTable("items")
	tbl.Collation = "nocase"
	cfg.Tables = []config.TableConfig{tbl}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	if err := a.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	row, err := a.Database().QueryOne(ctx, "SELECT id FROM items WHERE label = 'TWO'")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if row == nil || row["id"] != int64(2) {
		t.Fatalf("expected case-insensitive match, got %v", row)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Type = "carrier-pigeon"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestBadCollationName(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = t.TempDir()
	cfg.DefaultCollation = "not-a-locale-!!"

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if err := a.Open(context.Background()); err == nil {
		t.Fatal("expected collation error")
	}
}
