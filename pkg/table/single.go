package table

import (
	"context"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/types"
)

// singleRow models a table with exactly one row and dynamically-typed
// columns, used for expressions evaluated without a FROM clause.
//
// There is nothing to defer for a singleton: a filter is evaluated against
// the one in-memory row at call time and collapses the chain to either the
// receiver or an empty table carrying the same schema.
type singleRow struct {
	row    *types.Row
	schema []types.ColumnDef
	coll   collate.Collation
}

// NewSingleRow builds a one-row table. Column types are inferred per value.
func NewSingleRow(coll collate.Collation, columns []string, values map[string]interface{}) Table {
	if coll == nil {
		coll = collate.Binary()
	}
	schema := make([]types.ColumnDef, len(columns))
	for i, c := range columns {
		schema[i] = types.ColumnDef{Name: c, Type: types.InferType(values[c])}
	}
	return &singleRow{
		row:    types.NewRow(int64(1), columns, values),
		schema: schema,
		coll:   coll,
	}
}

func (s *singleRow) Schema() []types.ColumnDef {
	out := make([]types.ColumnDef, len(s.schema))
	copy(out, s.schema)
	return out
}

func (s *singleRow) Collation() collate.Collation { return s.coll }

// Row returns the table's single row.
func (s *singleRow) Row() *types.Row { return s.row }

// filtered evaluates one condition against the row immediately.
func (s *singleRow) filtered(column string, op predicate.Operator, value interface{}) (Table, error) {
	cond := predicate.Condition{Column: column, Op: op, Value: value}
	if err := checkCondition(s.schema, cond); err != nil {
		return nil, err
	}
	matcher, err := newRowMatcher([]predicate.Condition{cond}, nil, s.coll)
	if err != nil {
		return nil, err
	}
	if matcher.matches(s.row) {
		return s, nil
	}
	return NewEmpty(s.schema, s.coll), nil
}

func (s *singleRow) Eq(column string, value interface{}) (Table, error) {
	return s.filtered(column, predicate.Eq, value)
}

func (s *singleRow) Lt(column string, value interface{}) (Table, error) {
	return s.filtered(column, predicate.Lt, value)
}

func (s *singleRow) Lte(column string, value interface{}) (Table, error) {
	return s.filtered(column, predicate.Lte, value)
}

func (s *singleRow) Gt(column string, value interface{}) (Table, error) {
	return s.filtered(column, predicate.Gt, value)
}

func (s *singleRow) Gte(column string, value interface{}) (Table, error) {
	return s.filtered(column, predicate.Gte, value)
}

func (s *singleRow) Like(column, pattern string) (Table, error) {
	return s.filtered(column, predicate.Like, pattern)
}

func (s *singleRow) In(column string, values []interface{}) (Table, error) {
	vs := make([]interface{}, len(values))
	copy(vs, values)
	return s.filtered(column, predicate.In, vs)
}

func (s *singleRow) Or(preds ...*predicate.Predicate) (Table, error) {
	if len(preds) == 0 {
		return s, nil
	}
	for _, p := range preds {
		if p == nil {
			return nil, errors.NewValidationError(errors.CodeInvalidSchema, "nil predicate")
		}
		if !p.IsBound() {
			return nil, errors.NewValidationError(errors.CodeUnboundParam,
				"cannot apply unbound predicate, missing: %v", p.UnboundParams())
		}
		for _, cond := range p.Conditions() {
			if err := checkCondition(s.schema, cond); err != nil {
				return nil, err
			}
		}
	}
	matcher, err := newRowMatcher(nil, [][]*predicate.Predicate{preds}, s.coll)
	if err != nil {
		return nil, err
	}
	if matcher.matches(s.row) {
		return s, nil
	}
	return NewEmpty(s.schema, s.coll), nil
}

// Union wraps rather than collapsing: the other side may hold any number of
// rows.
func (s *singleRow) Union(other Table) Table {
	return NewUnion(s, other)
}

func (s *singleRow) Except(other Table) Table {
	return s.asCore().Except(other)
}

func (s *singleRow) Distinct() Table { return s }

func (s *singleRow) Columns(names ...string) Table {
	cols := make([]string, 0, len(names))
	vals := make(map[string]interface{}, len(names))
	for _, n := range names {
		if v, ok := s.row.Value(n); ok {
			cols = append(cols, n)
			vals[n] = v
		}
	}
	return NewSingleRow(s.coll, cols, vals)
}

func (s *singleRow) Order(*OrderSpec) Table { return s }

func (s *singleRow) Limit(n int) Table {
	if n == 0 {
		return NewEmpty(s.schema, s.coll)
	}
	return s
}

func (s *singleRow) Offset(n int) Table {
	if n > 0 {
		return NewEmpty(s.schema, s.coll)
	}
	return s
}

func (s *singleRow) WithAlias(tableAlias string, columnAliases map[string]string) Table {
	return newAlias(s, tableAlias, columnAliases)
}

func (s *singleRow) Load(_ context.Context, id interface{}) (*types.Row, error) {
	if types.ValueEqual(s.row.ID(), id) {
		return s.row, nil
	}
	return nil, nil
}

func (s *singleRow) Count(context.Context) (int64, error) { return 1, nil }

func (s *singleRow) Exists(context.Context) (bool, error) { return true, nil }

func (s *singleRow) Has(_ context.Context, candidate *types.Row) (bool, error) {
	if candidate == nil {
		return false, nil
	}
	return fingerprint(s.row.Project(candidate.Columns()...)) == fingerprint(candidate), nil
}

func (s *singleRow) Rows(context.Context, ...string) (RowIter, error) {
	return NewSliceIter([]*types.Row{s.row}), nil
}

// asCore lifts the singleton into the lazy core for operations that need
// deferred evaluation.
func (s *singleRow) asCore() Table {
	return New(s.schema, s.coll, &singletonMaterializer{row: s.row})
}

type singletonMaterializer struct {
	row *types.Row
}

func (m *singletonMaterializer) Materialize(context.Context, *Query, ...string) (RowIter, error) {
	return NewSliceIter([]*types.Row{m.row}), nil
}
