package virtual

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/internal/observability"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/sqlparser"
	"github.com/veltab/veltab/pkg/table"
	"github.com/veltab/veltab/pkg/types"
)

// Database is an explicit registry of virtual tables with SQL entry points.
// Zero global state: callers construct a Database and register tables on it.
type Database struct {
	mu     sync.RWMutex
	tables map[string]*Table
	coll   collate.Collation
	stats  *observability.QueryStats
}

// DatabaseOption configures a Database at construction.
type DatabaseOption func(*Database)

// WithDefaultCollation sets the collation used by tables that do not carry
// their own. The default is BINARY.
func WithDefaultCollation(c collate.Collation) DatabaseOption {
	return func(db *Database) { db.coll = c }
}

// NewDatabase creates an empty registry.
func NewDatabase(opts ...DatabaseOption) *Database {
	db := &Database{
		tables: make(map[string]*Table),
		coll:   collate.Binary(),
		stats:  observability.NewQueryStats(time.Hour),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Register adds a table to the registry. Registering the same name twice is
// an error.
func (db *Database) Register(vt *Table) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.tables[vt.name]; exists {
		return errors.NewValidationError(errors.CodeInvalidSchema,
			"table %q is already registered", vt.name)
	}
	db.tables[vt.name] = vt
	return nil
}

// Table returns the lazy algebra handle for a registered table. The handle
// is immutable; every filter call derives a new one.
func (db *Database) Table(name string) (table.Table, error) {
	vt, err := db.lookup(name)
	if err != nil {
		return nil, err
	}
	return db.algebra(vt), nil
}

// Stats returns a snapshot of query statistics.
func (db *Database) Stats() observability.Snapshot {
	return db.stats.Snapshot()
}

func (db *Database) lookup(name string) (*Table, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	vt, ok := db.tables[name]
	if !ok {
		return nil, errors.NewQueryError(errors.CodeTableNotFound, "no table named %q", name)
	}
	return vt, nil
}

func (db *Database) algebra(vt *Table) table.Table {
	coll := vt.collation(db.coll)
	return table.New(vt.schema, coll, vt.newMaterializer(coll),
		table.WithObserver(db.stats))
}

// Result holds the rows produced by Query, in projection order.
type Result struct {
	Columns []string
	Rows    [][]interface{}
}

// Query executes a SELECT statement with positional arguments bound to its
// ? placeholders.
func (db *Database) Query(ctx context.Context, sqlText string, args ...interface{}) (*Result, error) {
	stmt, err := db.parse(sqlText, args)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*sqlparser.SelectStatement)
	if !ok {
		return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax,
			"Query requires a SELECT statement; use Exec for mutations")
	}
	db.stats.RecordQuery()
	return db.evalSelect(ctx, sel, args)
}

// QueryOne executes a SELECT and returns the first row as a column→value
// map, or nil when nothing matched.
func (db *Database) QueryOne(ctx context.Context, sqlText string, args ...interface{}) (map[string]interface{}, error) {
	res, err := db.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	out := make(map[string]interface{}, len(res.Columns))
	for i, col := range res.Columns {
		out[col] = res.Rows[0][i]
	}
	return out, nil
}

// ExecResult reports the outcome of a mutation.
type ExecResult struct {
	// LastInsertID is the backend-assigned id of the inserted row; nil for
	// UPDATE and DELETE.
	LastInsertID interface{}
	// RowsAffected is the number of rows written or removed.
	RowsAffected int64
}

// Exec executes an INSERT, UPDATE, or DELETE statement.
func (db *Database) Exec(ctx context.Context, sqlText string, args ...interface{}) (*ExecResult, error) {
	stmt, err := db.parse(sqlText, args)
	if err != nil {
		return nil, err
	}

	switch s := stmt.(type) {
	case *sqlparser.InsertStatement:
		return db.execInsert(ctx, s, args)
	case *sqlparser.UpdateStatement:
		return db.execUpdate(ctx, s, args)
	case *sqlparser.DeleteStatement:
		return db.execDelete(ctx, s, args)
	default:
		return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax,
			"Exec requires INSERT, UPDATE, or DELETE; use Query for SELECT")
	}
}

func (db *Database) parse(sqlText string, args []interface{}) (sqlparser.Statement, error) {
	stmt, err := sqlparser.Parse(sqlText)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeParseError, "invalid statement", err)
	}
	if want := sqlparser.ParamCount(stmt); want != len(args) {
		return nil, errors.NewValidationError(errors.CodeParamCount,
			"statement wants %d arguments, got %d", want, len(args))
	}
	return stmt, nil
}

func (db *Database) evalSelect(ctx context.Context, sel *sqlparser.SelectStatement, args []interface{}) (*Result, error) {
	if sel.From == nil {
		return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax, "SELECT requires a FROM clause")
	}
	vt, err := db.lookup(sel.From.Name)
	if err != nil {
		return nil, err
	}

	t := db.algebra(vt)
	if sel.Where != nil {
		bound, err := bindExpr(sel.Where, args)
		if err != nil {
			return nil, err
		}
		low := newLowerer([]string{sel.From.Name, sel.From.Alias}, db.stats.RecordPredicate)
		t, err = low.lower(t, bound)
		if err != nil {
			return nil, err
		}
	}

	if sel.CountOnly() {
		n, err := t.Count(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Columns: []string{"count"}, Rows: [][]interface{}{{n}}}, nil
	}

	if sel.Distinct {
		t = t.Distinct()
	}
	if len(sel.OrderBy) > 0 {
		spec := &table.OrderSpec{}
		for _, o := range sel.OrderBy {
			spec.Columns = append(spec.Columns, table.OrderColumn{Name: o.Column, Desc: o.Desc})
		}
		t = t.Order(spec)
	}
	if sel.Offset != nil {
		t = t.Offset(int(*sel.Offset))
	}
	if sel.Limit != nil {
		t = t.Limit(int(*sel.Limit))
	}

	// Projection: a name list narrows the rows; * keeps the schema order.
	names := sel.ColumnNames()
	labels := names
	if names == nil {
		for _, def := range vt.schema {
			names = append(names, def.Name)
		}
		labels = names
	} else {
		schema := vt.schema
		labels = make([]string, len(names))
		for i, c := range sel.Columns {
			if _, ok := types.FindColumn(schema, c.Name); !ok {
				return nil, errors.NewQueryError(errors.CodeUnknownColumn,
					"unknown column %q", c.Name)
			}
			labels[i] = c.Name
			if c.Alias != "" {
				labels[i] = c.Alias
			}
		}
		t = t.Columns(names...)
	}

	it, err := t.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	res := &Result{Columns: labels}
	for {
		row, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(names))
		for i, name := range names {
			v, _ := row.Value(name)
			out[i] = v
		}
		res.Rows = append(res.Rows, out)
	}
	return res, nil
}

func (db *Database) execInsert(ctx context.Context, stmt *sqlparser.InsertStatement, args []interface{}) (*ExecResult, error) {
	vt, err := db.lookup(stmt.Table.Name)
	if err != nil {
		return nil, err
	}
	if vt.insertFn == nil {
		return nil, errors.NewQueryError(errors.CodeMutationNotSupported,
			"table %q does not support INSERT", vt.name)
	}

	values := make(map[string]interface{}, len(stmt.Columns))
	for i, col := range stmt.Columns {
		def, ok := types.FindColumn(vt.schema, col)
		if !ok {
			return nil, errors.NewValidationError(errors.CodeUnknownColumn,
				"unknown column %q", col)
		}
		bound, err := bindExpr(stmt.Values[i], args)
		if err != nil {
			return nil, err
		}
		val, err := literalValue(bound)
		if err != nil {
			return nil, err
		}
		if !def.Type.Accepts(val) {
			return nil, errors.NewValidationError(errors.CodeTypeMismatch,
				"column %q (%s) rejects %T value", col, def.Type, val)
		}
		values[col] = val
	}

	id, err := vt.insertFn(ctx, types.NewRow(nil, stmt.Columns, values))
	if err != nil {
		return nil, err
	}
	db.stats.RecordMutation()
	return &ExecResult{LastInsertID: id, RowsAffected: 1}, nil
}

func (db *Database) execUpdate(ctx context.Context, stmt *sqlparser.UpdateStatement, args []interface{}) (*ExecResult, error) {
	vt, err := db.lookup(stmt.Table.Name)
	if err != nil {
		return nil, err
	}
	if vt.updateFn == nil {
		return nil, errors.NewQueryError(errors.CodeMutationNotSupported,
			"table %q does not support UPDATE", vt.name)
	}
	if err := db.requireFilter(vt, stmt.Where, "UPDATE"); err != nil {
		return nil, err
	}

	changes := make(map[string]interface{}, len(stmt.Set))
	for _, asg := range stmt.Set {
		def, ok := types.FindColumn(vt.schema, asg.Column)
		if !ok {
			return nil, errors.NewValidationError(errors.CodeUnknownColumn,
				"unknown column %q", asg.Column)
		}
		bound, err := bindExpr(asg.Value, args)
		if err != nil {
			return nil, err
		}
		val, err := literalValue(bound)
		if err != nil {
			return nil, err
		}
		if !def.Type.Accepts(val) {
			return nil, errors.NewValidationError(errors.CodeTypeMismatch,
				"column %q (%s) rejects %T value", asg.Column, def.Type, val)
		}
		changes[asg.Column] = val
	}

	ids, err := db.resolveIDs(ctx, vt, stmt.Table, stmt.Where, args)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &ExecResult{}, nil
	}

	affected, err := vt.updateFn(ctx, ids, changes)
	if err != nil {
		return nil, err
	}
	db.stats.RecordMutation()
	return &ExecResult{RowsAffected: affected}, nil
}

func (db *Database) execDelete(ctx context.Context, stmt *sqlparser.DeleteStatement, args []interface{}) (*ExecResult, error) {
	vt, err := db.lookup(stmt.Table.Name)
	if err != nil {
		return nil, err
	}
	if vt.deleteFn == nil {
		return nil, errors.NewQueryError(errors.CodeMutationNotSupported,
			"table %q does not support DELETE", vt.name)
	}
	if err := db.requireFilter(vt, stmt.Where, "DELETE"); err != nil {
		return nil, err
	}

	ids, err := db.resolveIDs(ctx, vt, stmt.Table, stmt.Where, args)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &ExecResult{}, nil
	}

	affected, err := vt.deleteFn(ctx, ids)
	if err != nil {
		return nil, err
	}
	db.stats.RecordMutation()
	return &ExecResult{RowsAffected: affected}, nil
}

// requireFilter refuses a mutation without a WHERE clause unless the table
// opted in to unfiltered mutations.
func (db *Database) requireFilter(vt *Table, where sqlparser.Expression, verb string) error {
	if where == nil && !vt.allowUnfiltered {
		return errors.NewValidationError(errors.CodeUnfilteredMutation,
			"%s on %q without WHERE; register the table with WithUnfilteredMutations to allow this", verb, vt.name)
	}
	return nil
}

// resolveIDs evaluates the WHERE clause through the engine and collects the
// ids of matching rows. Mutation funcs only ever see resolved ids.
func (db *Database) resolveIDs(ctx context.Context, vt *Table, ref *sqlparser.TableRef, where sqlparser.Expression, args []interface{}) ([]interface{}, error) {
	t := db.algebra(vt)
	if where != nil {
		bound, err := bindExpr(where, args)
		if err != nil {
			return nil, err
		}
		low := newLowerer([]string{ref.Name, ref.Alias}, db.stats.RecordPredicate)
		t, err = low.lower(t, bound)
		if err != nil {
			return nil, err
		}
	}

	it, err := t.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ids []interface{}
	for {
		row, err := it.Next()
		if err == io.EOF {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		if id := row.ID(); id != nil {
			ids = append(ids, id)
		}
	}
}
