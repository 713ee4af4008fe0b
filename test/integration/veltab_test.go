// Package integration exercises the whole stack: YAML configuration, the
// app assembly layer, every backend, and the SQL surface of the database.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/veltab/veltab/internal/app"
	"github.com/veltab/veltab/internal/config"
	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/virtual"
)

// buildEnv writes a CSV file, a seeded SQLite database, and a YAML config
// binding one table to each backend, then opens the app over them.
func buildEnv(t *testing.T) *virtual.Database {
	t.Helper()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "countries.csv")
	csvData := "country,population\n" +
		"iceland,382000\n" +
		"norway,5500000\n" +
		"sweden,10500000\n"
	if err := os.WriteFile(csvPath, []byte(csvData), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	sqlitePath := filepath.Join(dir, "inventory.db")
	sdb, err := sql.Open("sqlite3", sqlitePath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := sdb.Exec(`CREATE TABLE stock (sku TEXT, qty INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if _, err := sdb.Exec(`INSERT INTO stock (sku, qty) VALUES (?, ?)`,
			fmt.Sprintf("sku-%d", i), i*10); err != nil {
			t.Fatalf("seed sqlite: %v", err)
		}
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	yaml := `
default_collation: binary
storage:
  type: local
  path: ` + filepath.Join(dir, "objects") + `
tables:
  - name: countries
    source: csv
    csv:
      path: ` + csvPath + `
    schema:
      - name: country
        type: text
      - name: population
        type: integer
  - name: stock
    source: sqlite
    sqlite:
      path: ` + sqlitePath + `
    schema:
      - name: sku
        type: text
      - name: qty
        type: integer
  - name: notes
    source: memory
    collation: nocase
    schema:
      - name: topic
        type: text
        indexed: true
      - name: body
        type: text
  - name: audit
    source: jsonl
    schema:
      - name: action
        type: text
      - name: count
        type: integer
`
	cfgPath := filepath.Join(dir, "veltab.yaml")
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	if err := a.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	return a.Database()
}

func TestQueryEveryBackend(t *testing.T) {
	db := buildEnv(t)
	ctx := context.Background()

	row, err := db.QueryOne(ctx, "SELECT country FROM countries WHERE population > ? ORDER BY population DESC", 1000000)
	if err != nil || row == nil || row["country"] != "sweden" {
		t.Fatalf("csv query: row=%v err=%v", row, err)
	}

	res, err := db.Query(ctx, "SELECT sku FROM stock WHERE qty >= 30 ORDER BY qty")
	if err != nil {
		t.Fatalf("sqlite query: %v", err)
	}
	if len(res.Rows) != 3 || res.Rows[0][0] != "sku-3" {
		t.Fatalf("sqlite rows: %v", res.Rows)
	}

	if _, err := db.Exec(ctx, "INSERT INTO notes (topic, body) VALUES ('Launch', 'ship it')"); err != nil {
		t.Fatalf("memory insert: %v", err)
	}
	// The notes table carries NOCASE, so the lookup ignores case.
	row, err = db.QueryOne(ctx, "SELECT body FROM notes WHERE topic = 'launch'")
	if err != nil || row == nil || row["body"] != "ship it" {
		t.Fatalf("memory nocase query: row=%v err=%v", row, err)
	}

	if _, err := db.Exec(ctx, "INSERT INTO audit (action, count) VALUES ('login', 7)"); err != nil {
		t.Fatalf("jsonl insert: %v", err)
	}
	row, err = db.QueryOne(ctx, "SELECT count FROM audit WHERE action = 'login'")
	if err != nil || row == nil || row["count"] != int64(7) {
		t.Fatalf("jsonl query: row=%v err=%v", row, err)
	}
}

func TestMutationLifecycle(t *testing.T) {
	db := buildEnv(t)
	ctx := context.Background()

	res, err := db.Exec(ctx, "UPDATE stock SET qty = 0 WHERE qty < ?", 30)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.RowsAffected != 2 {
		t.Fatalf("expected 2 updated, got %d", res.RowsAffected)
	}

	res, err = db.Exec(ctx, "DELETE FROM stock WHERE qty = 0")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.RowsAffected != 2 {
		t.Fatalf("expected 2 deleted, got %d", res.RowsAffected)
	}

	row, err := db.QueryOne(ctx, "SELECT COUNT(*) FROM stock")
	if err != nil || row["count"] != int64(3) {
		t.Fatalf("count=%v err=%v", row, err)
	}

	// CSV tables register no mutation callbacks.
	_, err = db.Exec(ctx, "DELETE FROM countries WHERE country = 'iceland'")
	if errors.GetCode(err) != errors.CodeMutationNotSupported {
		t.Fatalf("expected mutation refusal, got %v", err)
	}

	// Unfiltered mutations are refused on every backend.
	_, err = db.Exec(ctx, "DELETE FROM stock")
	if errors.GetCode(err) != errors.CodeUnfilteredMutation {
		t.Fatalf("expected unfiltered refusal, got %v", err)
	}
}

func TestCrossTableAlgebra(t *testing.T) {
	db := buildEnv(t)
	ctx := context.Background()

	// The lazy handle composes across backends through the same algebra.
	countries, err := db.Table("countries")
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	big, err := countries.Gt("population", 1000000)
	if err != nil {
		t.Fatalf("gt: %v", err)
	}
	n, err := big.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count=%d err=%v", n, err)
	}

	// The original handle is untouched by the derivation.
	all, err := countries.Count(ctx)
	if err != nil || all != 3 {
		t.Fatalf("count=%d err=%v", all, err)
	}
}

func TestStatsAccumulate(t *testing.T) {
	db := buildEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := db.Query(ctx, "SELECT * FROM stock WHERE qty > 10"); err != nil {
			t.Fatalf("query: %v", err)
		}
	}

	snap := db.Stats()
	if snap.Queries != 3 {
		t.Fatalf("expected 3 queries, got %d", snap.Queries)
	}
	if len(snap.TopPredicates) == 0 || snap.TopPredicates[0].Column != "qty" {
		t.Fatalf("expected qty as hottest predicate column: %+v", snap.TopPredicates)
	}
}

func TestParameterizedAcrossStatements(t *testing.T) {
	db := buildEnv(t)
	ctx := context.Background()

	if _, err := db.Exec(ctx, "INSERT INTO notes (topic, body) VALUES (?, ?)", "a", "b"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Exec(ctx, "UPDATE notes SET body = ? WHERE topic = ?", "c", "a"); err != nil {
		t.Fatalf("update: %v", err)
	}

	row, err := db.QueryOne(ctx, "SELECT body FROM notes WHERE topic = ?", "a")
	if err != nil || row == nil || row["body"] != "c" {
		t.Fatalf("row=%v err=%v", row, err)
	}

	_, err = db.Query(ctx, "SELECT * FROM notes WHERE topic = ?")
	if errors.GetCode(err) != errors.CodeParamCount {
		t.Fatalf("expected param count error, got %v", err)
	}
}
