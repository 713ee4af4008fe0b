package sqlitetab

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/sqlparser"
	"github.com/veltab/veltab/pkg/table"
	"github.com/veltab/veltab/pkg/types"
	"github.com/veltab/veltab/pkg/virtual"
)

var bookSchema = []types.ColumnDef{
	{Name: "title", Type: types.ColumnText},
	{Name: "year", Type: types.ColumnInteger},
	{Name: "in_print", Type: types.ColumnBool},
}

func openSeeded(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "books.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ddl := `CREATE TABLE books (title TEXT, year INTEGER, in_print INTEGER)`
	if _, err := db.Exec(ddl); err != nil {
		t.Fatalf("create table: %v", err)
	}
	seed := [][]interface{}{
		{"SICP", 1985, 1},
		{"TAOCP", 1968, 1},
		{"Dragon Book", 1986, 0},
	}
	for _, r := range seed {
		if _, err := db.Exec(`INSERT INTO books (title, year, in_print) VALUES (?, ?, ?)`, r...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func bookDB(t *testing.T) (*virtual.Database, *sql.DB) {
	t.Helper()
	sdb := openSeeded(t)
	vt, err := NewTable(sdb, "books", bookSchema)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	db := virtual.NewDatabase()
	if err := db.Register(vt); err != nil {
		t.Fatalf("register: %v", err)
	}
	return db, sdb
}

func TestQueryWithPushdown(t *testing.T) {
	db, _ := bookDB(t)
	ctx := context.Background()

	res, err := db.Query(ctx, "SELECT title FROM books WHERE in_print = TRUE AND year < ? ORDER BY year", 1990)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0][0] != "TAOCP" || res.Rows[1][0] != "SICP" {
		t.Fatalf("unexpected rows: %v", res.Rows)
	}
}

func TestOrderHintRecorded(t *testing.T) {
	db, _ := bookDB(t)
	ctx := context.Background()

	if _, err := db.Query(ctx, "SELECT title FROM books ORDER BY title"); err != nil {
		t.Fatalf("query: %v", err)
	}
	snap := db.Stats()
	if snap.OrderHintHits != 1 {
		t.Fatalf("expected the pushed-down order to be trusted, hits=%d misses=%d",
			snap.OrderHintHits, snap.OrderHintMisses)
	}
}

func TestBooleanCoercion(t *testing.T) {
	db, _ := bookDB(t)

	row, err := db.QueryOne(context.Background(), "SELECT in_print FROM books WHERE title = 'Dragon Book'")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if row["in_print"] != false {
		t.Fatalf("expected bool false, got %T %v", row["in_print"], row["in_print"])
	}
}

func TestMutations(t *testing.T) {
	db, sdb := bookDB(t)
	ctx := context.Background()

	res, err := db.Exec(ctx, "INSERT INTO books (title, year, in_print) VALUES (?, ?, ?)", "K&R", 1978, true)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.LastInsertID != int64(4) || res.RowsAffected != 1 {
		t.Fatalf("unexpected insert result: %+v", res)
	}

	res, err = db.Exec(ctx, "UPDATE books SET in_print = FALSE WHERE year < 1980")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.RowsAffected != 2 {
		t.Fatalf("expected 2 updated, got %d", res.RowsAffected)
	}

	res, err = db.Exec(ctx, "DELETE FROM books WHERE in_print = FALSE")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.RowsAffected != 3 {
		t.Fatalf("expected 3 deleted, got %d", res.RowsAffected)
	}

	var n int
	if err := sdb.QueryRow(`SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row left in sqlite, got %d", n)
	}
}

func TestNoPushdownUnderNoCase(t *testing.T) {
	sdb := openSeeded(t)
	vt, err := NewTable(sdb, "books", bookSchema, virtual.WithCollation(collate.NoCase()))
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	db := virtual.NewDatabase()
	if err := db.Register(vt); err != nil {
		t.Fatalf("register: %v", err)
	}

	// SQLite's bytewise = would drop this row; the engine's NOCASE keeps it,
	// which only works because the WHERE stays engine-side.
	row, err := db.QueryOne(context.Background(), "SELECT title FROM books WHERE title = 'sicp'")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if row == nil || row["title"] != "SICP" {
		t.Fatalf("expected case-insensitive match, got %v", row)
	}
}

func TestSelectRendersValidSQL(t *testing.T) {
	sdb := openSeeded(t)
	src := New(sdb, "books", bookSchema)

	stmt, err := sqlparser.Parse("SELECT * FROM books WHERE title LIKE 'S%' AND year IN (1985, 1968) ORDER BY year DESC")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	it, err := src.Select(context.Background(), stmt.(*sqlparser.SelectStatement), collate.Binary())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	rows, err := table.Drain(it)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if v, _ := rows[0].Value("title"); v != "SICP" {
		t.Fatalf("expected SICP, got %v", v)
	}
	if rows[0].ID() == nil {
		t.Fatal("expected rowid as row id")
	}
}

func TestBlobPredicateStaysEngineSide(t *testing.T) {
	sdb := openSeeded(t)
	src := New(sdb, "books", bookSchema)

	stmt := &sqlparser.SelectStatement{
		Columns: []sqlparser.SelectColumn{{Star: true}},
		From:    &sqlparser.TableRef{Name: "books"},
		Where: &sqlparser.BinaryExpr{
			Left:     &sqlparser.ColumnRef{Column: "title"},
			Operator: "=",
			Right:    &sqlparser.Literal{Value: []byte{0x01}},
		},
	}
	it, err := src.Select(context.Background(), stmt, collate.Binary())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	rows, err := table.Drain(it)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	// The blob predicate is not pushable, so the full table comes back.
	if len(rows) != 3 {
		t.Fatalf("expected unfiltered scan of 3 rows, got %d", len(rows))
	}
}

func TestErrorCategory(t *testing.T) {
	sdb := openSeeded(t)
	src := New(sdb, "no_such_table", bookSchema)

	_, err := src.Select(context.Background(), nil, collate.Binary())
	if errors.GetCode(err) != errors.CodeScanFailed {
		t.Fatalf("expected scan failure, got %v", err)
	}
}

func TestCountFastPath(t *testing.T) {
	db, sdb := bookDB(t)
	ctx := context.Background()

	tbl, err := db.Table("books")
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	n, err := tbl.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}

	// Rows added behind the engine's back are still visible: the count
	// comes straight from SQLite.
	if _, err := sdb.Exec(`INSERT INTO books (title, year, in_print) VALUES ('Gödel, Escher, Bach', 1979, 1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n, err = tbl.Count(ctx); err != nil || n != 4 {
		t.Fatalf("expected 4 rows after raw insert, got %d (%v)", n, err)
	}

	// A filtered count streams and re-counts instead.
	filtered, err := tbl.Lt("year", 1980)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if n, err = filtered.Count(ctx); err != nil || n != 2 {
		t.Fatalf("expected 2 pre-1980 books, got %d (%v)", n, err)
	}
}

func TestLoadFastPath(t *testing.T) {
	db, _ := bookDB(t)
	ctx := context.Background()

	tbl, err := db.Table("books")
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	row, err := tbl.Load(ctx, int64(2))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if row == nil {
		t.Fatal("expected a row for rowid 2")
	}
	if v, _ := row.Value("title"); v != "TAOCP" {
		t.Fatalf("expected TAOCP, got %v", v)
	}
	if v, _ := row.Value("in_print"); v != true {
		t.Fatalf("expected coerced bool, got %v", v)
	}

	row, err = tbl.Load(ctx, int64(99))
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if row != nil {
		t.Fatalf("expected nil for absent rowid, got %v", row)
	}
}

func TestOrGroupMatchesEngineSemantics(t *testing.T) {
	db, _ := bookDB(t)
	ctx := context.Background()

	tbl, err := db.Table("books")
	if err != nil {
		t.Fatalf("table: %v", err)
	}

	// Two real branches: the pushed-down WHERE and the engine must agree
	// on the union.
	both, err := tbl.Or(
		predicate.New().Where("title", predicate.Eq, "SICP"),
		predicate.New().Where("in_print", predicate.Eq, false),
	)
	if err != nil {
		t.Fatalf("or: %v", err)
	}
	if n, err := both.Count(ctx); err != nil || n != 2 {
		t.Fatalf("two-branch or: n=%d err=%v, want 2", n, err)
	}

	// A branch with no conditions matches every row. The group must not
	// reach SQLite as only the other branch, or rows vanish before the
	// engine sees them.
	all, err := tbl.Or(
		predicate.New().Where("year", predicate.Lt, 1980),
		predicate.New(),
	)
	if err != nil {
		t.Fatalf("or: %v", err)
	}
	if n, err := all.Count(ctx); err != nil || n != 3 {
		t.Fatalf("match-all or branch: n=%d err=%v, want 3", n, err)
	}
}
