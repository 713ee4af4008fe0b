package table

import (
	"context"
	"io"

	"github.com/veltab/veltab/pkg/types"
)

// NewUnion lazily concatenates two tables. The schema is the union of both
// input schemas; columns sharing a name but not a type degrade to ANY.
// Duplicates are kept — Distinct() collapses them explicitly, keeping plain
// unions linear in the row count.
func NewUnion(a, b Table) Table {
	return New(mergeSchemas(a.Schema(), b.Schema()), a.Collation(), &unionMaterializer{a: a, b: b})
}

func mergeSchemas(a, b []types.ColumnDef) []types.ColumnDef {
	merged := make([]types.ColumnDef, len(a))
	copy(merged, a)
	for _, def := range b {
		existing, ok := types.FindColumn(merged, def.Name)
		if !ok {
			merged = append(merged, def)
			continue
		}
		if existing.Type != def.Type {
			for i := range merged {
				if merged[i].Name == def.Name {
					merged[i].Type = types.ColumnAny
					merged[i].Indexed = false
				}
			}
		}
	}
	return merged
}

// unionMaterializer streams the left table to exhaustion, then the right.
// Each side applies its own accumulated state inside its Rows call; the
// union's own filters are layered on by the core.
type unionMaterializer struct {
	a, b Table
}

func (u *unionMaterializer) Materialize(ctx context.Context, _ *Query, _ ...string) (RowIter, error) {
	return &unionIter{ctx: ctx, pending: []Table{u.a, u.b}}, nil
}

// unionIter opens each side lazily so abandoning iteration mid-left never
// touches the right table's backend.
type unionIter struct {
	ctx     context.Context
	pending []Table
	cur     RowIter
}

func (u *unionIter) Next() (*types.Row, error) {
	for {
		if u.cur == nil {
			if len(u.pending) == 0 {
				return nil, io.EOF
			}
			it, err := u.pending[0].Rows(u.ctx)
			if err != nil {
				return nil, err
			}
			u.pending = u.pending[1:]
			u.cur = it
		}
		row, err := u.cur.Next()
		if err == io.EOF {
			u.cur.Close()
			u.cur = nil
			continue
		}
		return row, err
	}
}

func (u *unionIter) Close() error {
	u.pending = nil
	if u.cur != nil {
		err := u.cur.Close()
		u.cur = nil
		return err
	}
	return nil
}

// tableMaterializer adapts any Table into a Materializer, evaluating the
// wrapped table's full chain on materialization.
type tableMaterializer struct {
	t Table
}

func (m *tableMaterializer) Materialize(ctx context.Context, _ *Query, _ ...string) (RowIter, error) {
	return m.t.Rows(ctx)
}

func (m *tableMaterializer) CountRows(ctx context.Context) (int64, error) {
	return m.t.Count(ctx)
}

func (m *tableMaterializer) LoadRow(ctx context.Context, id interface{}) (*types.Row, error) {
	return m.t.Load(ctx, id)
}

// materialized lifts a Table into a fresh lazy core, treating the wrapped
// chain as an opaque row source.
func materialized(t Table) Table {
	return New(t.Schema(), t.Collation(), &tableMaterializer{t: t})
}
