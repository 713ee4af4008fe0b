// Package sqlitetab exposes a table inside a SQLite database file as a
// virtual table. The synthesized statement is used two ways: the WHERE tree
// is rendered back to SQL and pushed into SQLite when the collation is
// BINARY, and a single-column ORDER BY is pushed down together with an order
// assertion so the engine can skip its own sort.
//
// Pushdown never replaces engine evaluation. SQLite may return a superset
// (its LIKE is ASCII case-insensitive); the engine re-filters every row.
package sqlitetab

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/sqlparser"
	"github.com/veltab/veltab/pkg/table"
	"github.com/veltab/veltab/pkg/types"
	"github.com/veltab/veltab/pkg/virtual"
)

// Open opens a SQLite database file.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"open sqlite database", err)
	}
	return db, nil
}

// Source reads and writes one table in a SQLite database. Row ids are
// SQLite rowids.
type Source struct {
	db     *sql.DB
	table  string
	schema []types.ColumnDef
}

// New creates a source for the named table.
func New(db *sql.DB, tableName string, schema []types.ColumnDef) *Source {
	return &Source{
		db:     db,
		table:  tableName,
		schema: append([]types.ColumnDef(nil), schema...),
	}
}

// NewTable wraps a source in a fully mutable virtual table. The virtual
// table name and the SQLite table name coincide.
func NewTable(db *sql.DB, tableName string, schema []types.ColumnDef, opts ...virtual.TableOption) (*virtual.Table, error) {
	s := New(db, tableName, schema)
	opts = append([]virtual.TableOption{
		virtual.WithInsert(s.Insert),
		virtual.WithUpdate(s.Update),
		virtual.WithDelete(s.Delete),
		virtual.WithCount(s.Count),
		virtual.WithLoad(s.Load),
	}, opts...)
	return virtual.NewTable(tableName, schema, s.Select, opts...)
}

// Select streams the table, pushing down whatever parts of the statement
// SQLite can honor without changing the result set the engine sees.
func (s *Source) Select(ctx context.Context, stmt *sqlparser.SelectStatement, coll collate.Collation) (table.RowIter, error) {
	var sb strings.Builder
	sb.WriteString("SELECT rowid")
	columns := make([]string, 0, len(s.schema))
	for _, def := range s.schema {
		columns = append(columns, def.Name)
		sb.WriteString(", ")
		sb.WriteString(quoteIdent(def.Name))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(s.table))

	// Text comparison in SQLite is bytewise, so the rendered WHERE only
	// agrees with the engine under the BINARY collation. Under any other
	// collation SQLite could drop rows the engine would keep.
	if stmt != nil && stmt.Where != nil && coll.Name() == "BINARY" && pushable(stmt.Where) {
		sb.WriteString(" WHERE ")
		sb.WriteString(stmt.Where.String())
	}

	var hint *types.OrderInfo
	if stmt != nil && len(stmt.OrderBy) == 1 && coll.Name() == "BINARY" {
		o := stmt.OrderBy[0]
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quoteIdent(o.Column))
		if o.Desc {
			sb.WriteString(" DESC")
		}
		hint = &types.OrderInfo{Column: o.Column, Desc: o.Desc, Collation: "BINARY"}
	}

	rows, err := s.db.QueryContext(ctx, sb.String())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"sqlite query", err)
	}

	next := func() (*types.Row, error) {
		row, err := s.scanRow(rows, columns)
		if err != nil {
			rows.Close()
		}
		return row, err
	}
	if hint != nil {
		return table.NewOrderedFuncIter(next, rows.Close, hint), nil
	}
	return table.NewFuncIter(next, rows.Close), nil
}

func (s *Source) scanRow(rows *sql.Rows, columns []string) (*types.Row, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
				"sqlite iteration", err)
		}
		return nil, io.EOF
	}

	var rowid int64
	dests := make([]interface{}, len(columns)+1)
	dests[0] = &rowid
	holders := make([]interface{}, len(columns))
	for i := range holders {
		dests[i+1] = &holders[i]
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"sqlite scan", err)
	}

	values := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		values[col] = coerce(holders[i], s.schema[i].Type)
	}
	return types.NewRow(rowid, columns, values), nil
}

// Count lets SQLite count the table instead of streaming it.
func (s *Source) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(s.table)).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"sqlite count", err)
	}
	return n, nil
}

// Load fetches a single row by rowid, or nil when the rowid is gone.
func (s *Source) Load(ctx context.Context, id interface{}) (*types.Row, error) {
	var sb strings.Builder
	sb.WriteString("SELECT rowid")
	columns := make([]string, 0, len(s.schema))
	for _, def := range s.schema {
		columns = append(columns, def.Name)
		sb.WriteString(", ")
		sb.WriteString(quoteIdent(def.Name))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(s.table))
	sb.WriteString(" WHERE rowid = ?")

	rows, err := s.db.QueryContext(ctx, sb.String(), id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"sqlite load", err)
	}
	defer rows.Close()

	row, err := s.scanRow(rows, columns)
	if err == io.EOF {
		return nil, nil
	}
	return row, err
}

// Insert stores a row and returns its rowid.
func (s *Source) Insert(ctx context.Context, row *types.Row) (interface{}, error) {
	cols := row.Columns()
	if len(cols) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidSchema,
			"INSERT requires at least one column")
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		marks[i] = "?"
		args[i], _ = row.Value(col)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(s.table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"sqlite insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"sqlite insert id", err)
	}
	return id, nil
}

// Update rewrites the rows with the given rowids.
func (s *Source) Update(ctx context.Context, ids []interface{}, changes map[string]interface{}) (int64, error) {
	if len(ids) == 0 || len(changes) == 0 {
		return 0, nil
	}

	sets := make([]string, 0, len(changes))
	args := make([]interface{}, 0, len(changes)+len(ids))
	for _, def := range s.schema {
		v, ok := changes[def.Name]
		if !ok {
			continue
		}
		sets = append(sets, quoteIdent(def.Name)+" = ?")
		args = append(args, v)
	}
	args = append(args, ids...)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE rowid IN (%s)",
		quoteIdent(s.table), strings.Join(sets, ", "), marks(len(ids)))
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"sqlite update", err)
	}
	return res.RowsAffected()
}

// Delete removes the rows with the given rowids.
func (s *Source) Delete(ctx context.Context, ids []interface{}) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE rowid IN (%s)",
		quoteIdent(s.table), marks(len(ids)))
	res, err := s.db.ExecContext(ctx, stmt, ids...)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"sqlite delete", err)
	}
	return res.RowsAffected()
}

// coerce maps SQLite's storage classes onto the schema's Go representation.
// SQLite has no boolean type; integer 0/1 comes back as bool when the
// schema asks for one.
func coerce(v interface{}, t types.ColumnType) interface{} {
	if v == nil {
		return nil
	}
	switch t {
	case types.ColumnText:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	case types.ColumnBool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case types.ColumnBlob:
		if b, ok := v.([]byte); ok {
			// The driver reuses scan buffers between calls.
			out := make([]byte, len(b))
			copy(out, b)
			return out
		}
	}
	return v
}

// pushable reports whether the WHERE tree renders to SQL SQLite can take.
// Blob literals have no textual spelling in the renderer, so any tree
// containing one stays engine-side.
func pushable(e sqlparser.Expression) bool {
	switch v := e.(type) {
	case *sqlparser.Literal:
		_, isBlob := v.Value.([]byte)
		return !isBlob
	case *sqlparser.BinaryExpr:
		return pushable(v.Left) && pushable(v.Right)
	case *sqlparser.LikeExpr:
		return pushable(v.Expr) && pushable(v.Pattern)
	case *sqlparser.InExpr:
		if !pushable(v.Expr) {
			return false
		}
		for _, val := range v.Values {
			if !pushable(val) {
				return false
			}
		}
		return true
	case *sqlparser.BetweenExpr:
		return pushable(v.Expr) && pushable(v.Low) && pushable(v.High)
	case *sqlparser.IsNullExpr:
		return pushable(v.Expr)
	case *sqlparser.ParenExpr:
		return pushable(v.Expr)
	case *sqlparser.ColumnRef:
		return true
	default:
		return false
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func marks(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
