// Package virtual exposes backend row sources as lazily-evaluated tables and
// provides the SQL entry points over a registry of them.
//
// A backend implements at minimum a SelectFunc; mutation support is opt-in
// per function. The engine owns filtering, ordering, projection, and
// pagination semantics: a backend may apply any part of the statement it is
// handed as an optimization, but correctness never depends on it.
package virtual

import (
	"context"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/sqlparser"
	"github.com/veltab/veltab/pkg/table"
	"github.com/veltab/veltab/pkg/types"
)

// SelectFunc streams rows for a SELECT statement. The statement carries the
// accumulated WHERE and ORDER BY as pruning hints; returning a superset of
// the matching rows is always correct. It may be invoked more than once per
// logical query, and must return a fresh iterator each time.
type SelectFunc func(ctx context.Context, stmt *sqlparser.SelectStatement, coll collate.Collation) (table.RowIter, error)

// InsertFunc stores one row and returns its backend-assigned id.
type InsertFunc func(ctx context.Context, row *types.Row) (interface{}, error)

// UpdateFunc applies the column changes to the rows with the given ids and
// returns how many rows changed. The engine has already resolved the ids;
// the backend never re-evaluates the WHERE clause.
type UpdateFunc func(ctx context.Context, ids []interface{}, changes map[string]interface{}) (int64, error)

// DeleteFunc removes the rows with the given ids and returns how many were
// removed.
type DeleteFunc func(ctx context.Context, ids []interface{}) (int64, error)

// CountFunc counts the table's rows without streaming them. The engine
// consults it only for unfiltered counts.
type CountFunc func(ctx context.Context) (int64, error)

// LoadFunc looks a row up by its backend-assigned id, returning (nil, nil)
// when the id is absent.
type LoadFunc func(ctx context.Context, id interface{}) (*types.Row, error)

// Table describes one registered backend: its name, schema, and callbacks.
type Table struct {
	name            string
	schema          []types.ColumnDef
	coll            collate.Collation
	selectFn        SelectFunc
	insertFn        InsertFunc
	updateFn        UpdateFunc
	deleteFn        DeleteFunc
	countFn         CountFunc
	loadFn          LoadFunc
	allowUnfiltered bool
}

// TableOption configures a Table at construction.
type TableOption func(*Table)

// WithInsert enables INSERT support.
func WithInsert(fn InsertFunc) TableOption {
	return func(t *Table) { t.insertFn = fn }
}

// WithUpdate enables UPDATE support.
func WithUpdate(fn UpdateFunc) TableOption {
	return func(t *Table) { t.updateFn = fn }
}

// WithDelete enables DELETE support.
func WithDelete(fn DeleteFunc) TableOption {
	return func(t *Table) { t.deleteFn = fn }
}

// WithCount installs a native row counter. Without one, unfiltered COUNT
// statements stream and count every row.
func WithCount(fn CountFunc) TableOption {
	return func(t *Table) { t.countFn = fn }
}

// WithLoad installs a native id lookup. Without one, Load scans for the id.
func WithLoad(fn LoadFunc) TableOption {
	return func(t *Table) { t.loadFn = fn }
}

// WithCollation overrides the database default collation for this table.
func WithCollation(c collate.Collation) TableOption {
	return func(t *Table) { t.coll = c }
}

// WithUnfilteredMutations permits UPDATE and DELETE statements without a
// WHERE clause. Off by default: an accidental bare DELETE wipes the table.
func WithUnfilteredMutations() TableOption {
	return func(t *Table) { t.allowUnfiltered = true }
}

// NewTable builds a backend descriptor. The schema must be non-empty with
// unique column names, and selectFn is mandatory.
func NewTable(name string, schema []types.ColumnDef, selectFn SelectFunc, opts ...TableOption) (*Table, error) {
	if name == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidSchema, "table name must not be empty")
	}
	if selectFn == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidSchema,
			"table %q needs a select function", name)
	}
	if len(schema) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidSchema,
			"table %q needs at least one column", name)
	}
	seen := make(map[string]bool, len(schema))
	for _, def := range schema {
		if def.Name == "" {
			return nil, errors.NewValidationError(errors.CodeInvalidSchema,
				"table %q has a column without a name", name)
		}
		if seen[def.Name] {
			return nil, errors.NewValidationError(errors.CodeInvalidSchema,
				"table %q declares column %q twice", name, def.Name)
		}
		seen[def.Name] = true
	}

	t := &Table{
		name:     name,
		schema:   append([]types.ColumnDef(nil), schema...),
		selectFn: selectFn,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name returns the registered table name.
func (t *Table) Name() string { return t.name }

// Schema returns a copy of the column definitions.
func (t *Table) Schema() []types.ColumnDef {
	return append([]types.ColumnDef(nil), t.schema...)
}

// collation returns the table collation, falling back to the given default.
func (t *Table) collation(def collate.Collation) collate.Collation {
	if t.coll != nil {
		return t.coll
	}
	return def
}

// materializer adapts a backend descriptor to the engine's Materializer
// interface by synthesizing a SELECT statement from the accumulated query
// state.
type materializer struct {
	vt   *Table
	coll collate.Collation
}

func (m *materializer) Materialize(ctx context.Context, q *table.Query, extra ...string) (table.RowIter, error) {
	return m.vt.selectFn(ctx, synthesizeSelect(m.vt.name, q), m.coll)
}

// counterMaterializer adds the native row-count fast path.
type counterMaterializer struct{ *materializer }

func (m counterMaterializer) CountRows(ctx context.Context) (int64, error) {
	return m.vt.countFn(ctx)
}

// loaderMaterializer adds the native id-lookup fast path.
type loaderMaterializer struct{ *materializer }

func (m loaderMaterializer) LoadRow(ctx context.Context, id interface{}) (*types.Row, error) {
	return m.vt.loadFn(ctx, id)
}

// fullMaterializer carries both fast paths.
type fullMaterializer struct{ counterMaterializer }

func (m fullMaterializer) LoadRow(ctx context.Context, id interface{}) (*types.Row, error) {
	return m.vt.loadFn(ctx, id)
}

// newMaterializer picks the variant whose optional interfaces match the
// callbacks the backend registered, so the engine's type assertions only
// succeed when a real fast path exists.
func (t *Table) newMaterializer(coll collate.Collation) table.Materializer {
	m := &materializer{vt: t, coll: coll}
	switch {
	case t.countFn != nil && t.loadFn != nil:
		return fullMaterializer{counterMaterializer{m}}
	case t.countFn != nil:
		return counterMaterializer{m}
	case t.loadFn != nil:
		return loaderMaterializer{m}
	}
	return m
}
