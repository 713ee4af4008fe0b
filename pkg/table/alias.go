package table

import (
	"context"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/types"
)

// aliasTable renames a table and/or its columns without altering row
// content. It carries no row logic of its own: every operation is forwarded
// to the wrapped table with renamed identifiers substituted where relevant.
type aliasTable struct {
	inner Table
	name  string
	toOld map[string]string // alias name -> wrapped name
	toNew map[string]string // wrapped name -> alias name
}

// newAlias wraps a table. columnAliases maps wrapped (old) column names to
// their new names; columns absent from the map keep their name.
func newAlias(inner Table, tableAlias string, columnAliases map[string]string) Table {
	toOld := make(map[string]string, len(columnAliases))
	toNew := make(map[string]string, len(columnAliases))
	for old, alias := range columnAliases {
		toOld[alias] = old
		toNew[old] = alias
	}
	return &aliasTable{inner: inner, name: tableAlias, toOld: toOld, toNew: toNew}
}

// Name returns the table alias, if any.
func (a *aliasTable) Name() string { return a.name }

func (a *aliasTable) Schema() []types.ColumnDef {
	schema := a.inner.Schema()
	for i := range schema {
		if alias, ok := a.toNew[schema[i].Name]; ok {
			schema[i].Name = alias
		}
	}
	return schema
}

func (a *aliasTable) Collation() collate.Collation { return a.inner.Collation() }

// resolve maps an alias-namespace column to the wrapped table's name. A
// column whose original name was aliased away no longer resolves.
func (a *aliasTable) resolve(column string) (string, error) {
	if old, ok := a.toOld[column]; ok {
		return old, nil
	}
	if alias, renamed := a.toNew[column]; renamed && alias != column {
		return "", errors.NewValidationError(errors.CodeUnknownColumn,
			"unknown column %q", column)
	}
	return column, nil
}

// wrap re-wraps a result of a forwarded operation.
func (a *aliasTable) wrap(inner Table) Table {
	return &aliasTable{inner: inner, name: a.name, toOld: a.toOld, toNew: a.toNew}
}

func (a *aliasTable) forward(column string, value interface{},
	op func(string, interface{}) (Table, error)) (Table, error) {
	orig, err := a.resolve(column)
	if err != nil {
		return nil, err
	}
	inner, err := op(orig, value)
	if err != nil {
		return nil, err
	}
	return a.wrap(inner), nil
}

func (a *aliasTable) Eq(column string, value interface{}) (Table, error) {
	return a.forward(column, value, a.inner.Eq)
}

func (a *aliasTable) Lt(column string, value interface{}) (Table, error) {
	return a.forward(column, value, a.inner.Lt)
}

func (a *aliasTable) Lte(column string, value interface{}) (Table, error) {
	return a.forward(column, value, a.inner.Lte)
}

func (a *aliasTable) Gt(column string, value interface{}) (Table, error) {
	return a.forward(column, value, a.inner.Gt)
}

func (a *aliasTable) Gte(column string, value interface{}) (Table, error) {
	return a.forward(column, value, a.inner.Gte)
}

func (a *aliasTable) Like(column, pattern string) (Table, error) {
	orig, err := a.resolve(column)
	if err != nil {
		return nil, err
	}
	inner, err := a.inner.Like(orig, pattern)
	if err != nil {
		return nil, err
	}
	return a.wrap(inner), nil
}

func (a *aliasTable) In(column string, values []interface{}) (Table, error) {
	orig, err := a.resolve(column)
	if err != nil {
		return nil, err
	}
	inner, err := a.inner.In(orig, values)
	if err != nil {
		return nil, err
	}
	return a.wrap(inner), nil
}

func (a *aliasTable) Or(preds ...*predicate.Predicate) (Table, error) {
	translated := make([]*predicate.Predicate, len(preds))
	for i, p := range preds {
		if p == nil {
			return nil, errors.NewValidationError(errors.CodeInvalidSchema, "nil predicate")
		}
		tp := predicate.New()
		for _, cond := range p.Conditions() {
			orig, err := a.resolve(cond.Column)
			if err != nil {
				return nil, err
			}
			tp = tp.Where(orig, cond.Op, cond.Value)
		}
		translated[i] = tp
	}
	inner, err := a.inner.Or(translated...)
	if err != nil {
		return nil, err
	}
	return a.wrap(inner), nil
}

func (a *aliasTable) Union(other Table) Table {
	return NewUnion(a, other)
}

// Except compares in the alias namespace: the wrapped chain is lifted into
// a fresh core so the other table's rows are matched against renamed rows.
func (a *aliasTable) Except(other Table) Table {
	return materialized(a).Except(other)
}

func (a *aliasTable) Distinct() Table {
	return a.wrap(a.inner.Distinct())
}

func (a *aliasTable) Columns(names ...string) Table {
	orig := make([]string, 0, len(names))
	for _, n := range names {
		o, err := a.resolve(n)
		if err != nil {
			continue // unknown columns are dropped, not errors
		}
		orig = append(orig, o)
	}
	return a.wrap(a.inner.Columns(orig...))
}

func (a *aliasTable) Order(spec *OrderSpec) Table {
	if spec == nil {
		return a.wrap(a.inner.Order(nil))
	}
	translated := &OrderSpec{Columns: make([]OrderColumn, len(spec.Columns))}
	for i, oc := range spec.Columns {
		name := oc.Name
		if orig, err := a.resolve(oc.Name); err == nil {
			name = orig
		}
		translated.Columns[i] = OrderColumn{Name: name, Desc: oc.Desc}
	}
	return a.wrap(a.inner.Order(translated))
}

func (a *aliasTable) Limit(n int) Table {
	return a.wrap(a.inner.Limit(n))
}

func (a *aliasTable) Offset(n int) Table {
	return a.wrap(a.inner.Offset(n))
}

func (a *aliasTable) WithAlias(tableAlias string, columnAliases map[string]string) Table {
	return newAlias(a, tableAlias, columnAliases)
}

func (a *aliasTable) Load(ctx context.Context, id interface{}) (*types.Row, error) {
	row, err := a.inner.Load(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.Rename(a.toNew), nil
}

func (a *aliasTable) Count(ctx context.Context) (int64, error) {
	return a.inner.Count(ctx)
}

func (a *aliasTable) Exists(ctx context.Context) (bool, error) {
	return a.inner.Exists(ctx)
}

func (a *aliasTable) Has(ctx context.Context, candidate *types.Row) (bool, error) {
	if candidate == nil {
		return false, nil
	}
	return a.inner.Has(ctx, candidate.Rename(a.toOld))
}

func (a *aliasTable) Rows(ctx context.Context, extraColumns ...string) (RowIter, error) {
	orig := make([]string, 0, len(extraColumns))
	for _, n := range extraColumns {
		if o, err := a.resolve(n); err == nil {
			orig = append(orig, o)
		}
	}
	it, err := a.inner.Rows(ctx, orig...)
	if err != nil {
		return nil, err
	}
	return &mapIter{src: it, fn: func(r *types.Row) *types.Row {
		return r.Rename(a.toNew)
	}}, nil
}
