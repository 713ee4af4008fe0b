package table

import (
	"context"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/types"
)

// emptyTable is a statically-known-empty result that retains its schema so
// later Columns/WithAlias calls in the same chain still type-check.
//
// Algebraic fixed point: filtering an empty set is always empty, so every
// filter and boolean operation validates its arguments and then returns the
// receiver unchanged, never constructing wrapper state or touching any
// backend.
type emptyTable struct {
	schema []types.ColumnDef
	coll   collate.Collation
}

// NewEmpty returns the empty table with the given schema.
func NewEmpty(schema []types.ColumnDef, coll collate.Collation) Table {
	if coll == nil {
		coll = collate.Binary()
	}
	return &emptyTable{schema: schema, coll: coll}
}

func (e *emptyTable) Schema() []types.ColumnDef {
	out := make([]types.ColumnDef, len(e.schema))
	copy(out, e.schema)
	return out
}

func (e *emptyTable) Collation() collate.Collation { return e.coll }

// filtered validates and returns the fixed point.
func (e *emptyTable) filtered(column string, op predicate.Operator, value interface{}) (Table, error) {
	if err := checkCondition(e.schema, predicate.Condition{Column: column, Op: op, Value: value}); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *emptyTable) Eq(column string, value interface{}) (Table, error) {
	return e.filtered(column, predicate.Eq, value)
}

func (e *emptyTable) Lt(column string, value interface{}) (Table, error) {
	return e.filtered(column, predicate.Lt, value)
}

func (e *emptyTable) Lte(column string, value interface{}) (Table, error) {
	return e.filtered(column, predicate.Lte, value)
}

func (e *emptyTable) Gt(column string, value interface{}) (Table, error) {
	return e.filtered(column, predicate.Gt, value)
}

func (e *emptyTable) Gte(column string, value interface{}) (Table, error) {
	return e.filtered(column, predicate.Gte, value)
}

func (e *emptyTable) Like(column, pattern string) (Table, error) {
	return e.filtered(column, predicate.Like, pattern)
}

func (e *emptyTable) In(column string, values []interface{}) (Table, error) {
	vs := make([]interface{}, len(values))
	copy(vs, values)
	return e.filtered(column, predicate.In, vs)
}

func (e *emptyTable) Or(preds ...*predicate.Predicate) (Table, error) {
	for _, p := range preds {
		if p == nil {
			return nil, errors.NewValidationError(errors.CodeInvalidSchema, "nil predicate")
		}
		if !p.IsBound() {
			return nil, errors.NewValidationError(errors.CodeUnboundParam,
				"cannot apply unbound predicate, missing: %v", p.UnboundParams())
		}
		for _, cond := range p.Conditions() {
			if err := checkCondition(e.schema, cond); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}

func (e *emptyTable) Union(other Table) Table {
	return NewUnion(e, other)
}

func (e *emptyTable) Except(Table) Table { return e }

func (e *emptyTable) Distinct() Table { return e }

func (e *emptyTable) Columns(names ...string) Table {
	kept := make([]types.ColumnDef, 0, len(names))
	for _, n := range names {
		if def, ok := types.FindColumn(e.schema, n); ok {
			kept = append(kept, def)
		}
	}
	return &emptyTable{schema: kept, coll: e.coll}
}

func (e *emptyTable) Order(*OrderSpec) Table { return e }

func (e *emptyTable) Limit(int) Table { return e }

func (e *emptyTable) Offset(int) Table { return e }

func (e *emptyTable) WithAlias(tableAlias string, columnAliases map[string]string) Table {
	return newAlias(e, tableAlias, columnAliases)
}

func (e *emptyTable) Load(context.Context, interface{}) (*types.Row, error) {
	return nil, nil
}

func (e *emptyTable) Count(context.Context) (int64, error) { return 0, nil }

func (e *emptyTable) Exists(context.Context) (bool, error) { return false, nil }

func (e *emptyTable) Has(context.Context, *types.Row) (bool, error) { return false, nil }

func (e *emptyTable) Rows(context.Context, ...string) (RowIter, error) {
	return NewSliceIter(nil), nil
}
