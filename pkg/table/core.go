package table

import (
	"context"
	"io"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/types"
)

// Core is the shared lazy-iteration machinery behind every concrete table.
// It accumulates filter/order/pagination state as immutable value copies and
// defers all I/O to its Materializer. A concrete table only has to produce
// raw rows; the core applies whatever the materializer did not.
type Core struct {
	schema  []types.ColumnDef
	coll    collate.Collation
	mat     Materializer
	q       Query
	excepts []Table
	obs     Observer
}

// Option configures a Core-backed table.
type Option func(*Core)

// WithObserver attaches an observer for materialization decisions.
func WithObserver(obs Observer) Option {
	return func(c *Core) { c.obs = obs }
}

// New builds a table over a materializer. A nil collation defaults to
// BINARY.
func New(schema []types.ColumnDef, coll collate.Collation, mat Materializer, opts ...Option) Table {
	if coll == nil {
		coll = collate.Binary()
	}
	c := &Core{schema: schema, coll: coll, mat: mat}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// clone copies the table state. The schema and materializer are shared;
// both are immutable.
func (c *Core) clone() *Core {
	cp := &Core{schema: c.schema, coll: c.coll, mat: c.mat, q: c.q.clone(), obs: c.obs}
	cp.excepts = append([]Table(nil), c.excepts...)
	return cp
}

// Schema returns the table's column definitions.
func (c *Core) Schema() []types.ColumnDef {
	out := make([]types.ColumnDef, len(c.schema))
	copy(out, c.schema)
	return out
}

// Collation returns the collation text comparisons are made under.
func (c *Core) Collation() collate.Collation { return c.coll }

// checkCondition validates a condition's column and scalar against the
// schema. This runs at filter-call time so query construction errors are
// caught before any I/O.
func checkCondition(schema []types.ColumnDef, cond predicate.Condition) error {
	def, ok := types.FindColumn(schema, cond.Column)
	if !ok {
		return errors.NewValidationError(errors.CodeUnknownColumn,
			"unknown column %q", cond.Column)
	}

	switch cond.Op {
	case predicate.Like:
		if def.Type != types.ColumnText && def.Type != types.ColumnAny {
			return errors.NewValidationError(errors.CodeTypeMismatch,
				"LIKE requires a text column, %q is %s", cond.Column, def.Type)
		}
		if _, ok := cond.Value.(string); !ok {
			if _, isParam := cond.Value.(predicate.Param); !isParam {
				return errors.NewValidationError(errors.CodeTypeMismatch,
					"LIKE pattern for %q must be a string, got %T", cond.Column, cond.Value)
			}
		}
	case predicate.In:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return errors.NewValidationError(errors.CodeTypeMismatch,
				"IN for %q requires a value slice, got %T", cond.Column, cond.Value)
		}
		for _, v := range values {
			if _, isParam := v.(predicate.Param); isParam {
				continue
			}
			if !def.Type.Accepts(v) {
				return errors.NewValidationError(errors.CodeTypeMismatch,
					"column %q is %s, cannot filter with %T", cond.Column, def.Type, v)
			}
		}
	default:
		if _, isParam := cond.Value.(predicate.Param); isParam {
			return nil
		}
		if !def.Type.Accepts(cond.Value) {
			return errors.NewValidationError(errors.CodeTypeMismatch,
				"column %q is %s, cannot filter with %T", cond.Column, def.Type, cond.Value)
		}
	}
	return nil
}

// where appends one validated, bound condition.
func (c *Core) where(column string, op predicate.Operator, value interface{}) (Table, error) {
	cond := predicate.Condition{Column: column, Op: op, Value: value}
	if err := checkCondition(c.schema, cond); err != nil {
		return nil, err
	}
	// A raw filter call never carries placeholders; reject them the same
	// way an unbound predicate is rejected.
	if probe := predicate.New().Where(column, op, value); !probe.IsBound() {
		return nil, errors.NewValidationError(errors.CodeUnboundParam,
			"cannot filter with unbound parameters: %v", probe.UnboundParams())
	}
	cp := c.clone()
	cp.q.Conditions = append(cp.q.Conditions, cond)
	return cp, nil
}

func (c *Core) Eq(column string, value interface{}) (Table, error) {
	return c.where(column, predicate.Eq, value)
}

func (c *Core) Lt(column string, value interface{}) (Table, error) {
	return c.where(column, predicate.Lt, value)
}

func (c *Core) Lte(column string, value interface{}) (Table, error) {
	return c.where(column, predicate.Lte, value)
}

func (c *Core) Gt(column string, value interface{}) (Table, error) {
	return c.where(column, predicate.Gt, value)
}

func (c *Core) Gte(column string, value interface{}) (Table, error) {
	return c.where(column, predicate.Gte, value)
}

func (c *Core) Like(column, pattern string) (Table, error) {
	return c.where(column, predicate.Like, pattern)
}

func (c *Core) In(column string, values []interface{}) (Table, error) {
	vs := make([]interface{}, len(values))
	copy(vs, values)
	return c.where(column, predicate.In, vs)
}

// Or narrows to rows matching any of the given predicates. Applying an
// unbound predicate is a programming error and fails immediately.
func (c *Core) Or(preds ...*predicate.Predicate) (Table, error) {
	if len(preds) == 0 {
		return c, nil
	}
	group := make([]*predicate.Predicate, len(preds))
	for i, p := range preds {
		if p == nil {
			return nil, errors.NewValidationError(errors.CodeInvalidSchema, "nil predicate")
		}
		if !p.IsBound() {
			return nil, errors.NewValidationError(errors.CodeUnboundParam,
				"cannot apply unbound predicate, missing: %v", p.UnboundParams())
		}
		for _, cond := range p.Conditions() {
			if err := checkCondition(c.schema, cond); err != nil {
				return nil, err
			}
		}
		group[i] = p
	}
	cp := c.clone()
	cp.q.OrGroups = append(cp.q.OrGroups, group)
	return cp, nil
}

// Union lazily concatenates this table with another.
func (c *Core) Union(other Table) Table {
	return NewUnion(c, other)
}

// Except removes rows present in the other table's current row set,
// compared by value membership.
func (c *Core) Except(other Table) Table {
	cp := c.clone()
	cp.excepts = append(cp.excepts, other)
	return cp
}

// Distinct removes duplicate rows under the current projection.
func (c *Core) Distinct() Table {
	cp := c.clone()
	cp.q.Distinct = true
	return cp
}

// Columns projects onto the named columns; unknown names are dropped.
func (c *Core) Columns(names ...string) Table {
	cp := c.clone()
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := types.FindColumn(c.schema, n); ok {
			kept = append(kept, n)
		}
	}
	cp.q.Projection = kept
	return cp
}

// Order sets the requested ordering; nil clears it.
func (c *Core) Order(spec *OrderSpec) Table {
	cp := c.clone()
	cp.q.Order = spec.clone()
	return cp
}

// Limit caps the row count. Limit(0) is statically empty and collapses
// without any I/O; a negative n clears the limit.
func (c *Core) Limit(n int) Table {
	if n == 0 {
		return NewEmpty(c.schema, c.coll)
	}
	cp := c.clone()
	if n < 0 {
		cp.q.Limit = nil
	} else {
		cp.q.Limit = &n
	}
	return cp
}

// Offset skips the first n rows.
func (c *Core) Offset(n int) Table {
	cp := c.clone()
	if n < 0 {
		n = 0
	}
	cp.q.Offset = n
	return cp
}

// WithAlias renames the table and/or columns without altering row content.
func (c *Core) WithAlias(tableAlias string, columnAliases map[string]string) Table {
	return newAlias(c, tableAlias, columnAliases)
}

// Rows materializes the row set. The materializer produces raw rows; the
// core layers filtering, except-sets, ordering, projection, de-duplication
// and pagination on top, each as a lazy iterator stage except ordering,
// which buffers when no trustworthy backend order assertion exists.
func (c *Core) Rows(ctx context.Context, extraColumns ...string) (RowIter, error) {
	matcher, err := newRowMatcher(c.q.Conditions, c.q.OrGroups, c.coll)
	if err != nil {
		return nil, err
	}

	q := c.q.clone()
	it, err := c.mat.Materialize(ctx, &q, extraColumns...)
	if err != nil {
		return nil, err
	}
	hint := orderHint(it)

	out := it
	if !matcher.empty() {
		out = &filterIter{src: out, keep: func(r *types.Row) (bool, error) {
			return matcher.matches(r), nil
		}}
	}

	if len(c.excepts) > 0 {
		set, err := c.exceptSet(ctx)
		if err != nil {
			out.Close()
			return nil, err
		}
		out = &filterIter{src: out, keep: func(r *types.Row) (bool, error) {
			return !set.contains(r), nil
		}}
	}

	if c.q.Order != nil && len(c.q.Order.Columns) > 0 {
		hit := hintSatisfies(hint, c.q.Order, c.coll)
		if c.obs != nil {
			c.obs.RecordOrderHint(hit)
		}
		if !hit {
			// Fallback sort buffers the entire stream. Backends avoid
			// this cliff by asserting an order matching common queries.
			rows, err := Drain(out)
			if err != nil {
				return nil, err
			}
			sortRows(rows, c.q.Order, c.coll)
			out = NewSliceIter(rows)
		}
	}

	if proj := c.effectiveProjection(extraColumns); proj != nil {
		out = &mapIter{src: out, fn: func(r *types.Row) *types.Row {
			return r.Project(proj...)
		}}
	}

	if c.q.Distinct {
		seen := fingerprintSet{}
		out = &filterIter{src: out, keep: func(r *types.Row) (bool, error) {
			if seen.contains(r) {
				return false, nil
			}
			seen.add(r)
			return true, nil
		}}
	}

	if c.q.Offset > 0 || c.q.Limit != nil {
		out = &pageIter{src: out, offset: c.q.Offset, limit: c.q.Limit}
	}

	return out, nil
}

// effectiveProjection merges the requested projection with extra columns a
// terminal operation needs. Nil means all columns pass through.
func (c *Core) effectiveProjection(extra []string) []string {
	if c.q.Projection == nil {
		return nil
	}
	proj := make([]string, len(c.q.Projection))
	copy(proj, c.q.Projection)
	for _, e := range extra {
		found := false
		for _, p := range proj {
			if p == e {
				found = true
				break
			}
		}
		if !found {
			proj = append(proj, e)
		}
	}
	return proj
}

// exceptSet drains every except table into one fingerprint set.
func (c *Core) exceptSet(ctx context.Context) (fingerprintSet, error) {
	set := fingerprintSet{}
	for _, ex := range c.excepts {
		it, err := ex.Rows(ctx)
		if err != nil {
			return nil, err
		}
		rows, err := Drain(it)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			set.add(r)
		}
	}
	return set, nil
}

// plain reports whether no state is pending that would change a raw count.
func (c *Core) plain() bool {
	return len(c.q.Conditions) == 0 && len(c.q.OrGroups) == 0 &&
		len(c.excepts) == 0 && !c.q.Distinct &&
		c.q.Limit == nil && c.q.Offset == 0
}

// Count returns the number of rows in the current row set. When no state is
// pending and the materializer can count natively, iteration is skipped.
func (c *Core) Count(ctx context.Context) (int64, error) {
	if c.plain() {
		if counter, ok := c.mat.(Counter); ok {
			return counter.CountRows(ctx)
		}
	}

	// Ordering cannot change the count; drop it to avoid a pointless
	// buffered sort.
	cp := c.clone()
	cp.q.Order = nil

	it, err := cp.Rows(ctx)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var n int64
	for {
		_, err := it.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		n++
	}
}

// Exists reports whether the current row set is non-empty.
func (c *Core) Exists(ctx context.Context) (bool, error) {
	cp := c.clone()
	cp.q.Order = nil
	one := 1
	cp.q.Limit = &one

	it, err := cp.Rows(ctx)
	if err != nil {
		return false, err
	}
	defer it.Close()

	_, err = it.Next()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Has reports whether the candidate passes all current filters and a row
// with exactly its values is present in the current row set.
func (c *Core) Has(ctx context.Context, candidate *types.Row) (bool, error) {
	if candidate == nil {
		return false, nil
	}
	matcher, err := newRowMatcher(c.q.Conditions, c.q.OrGroups, c.coll)
	if err != nil {
		return false, err
	}
	if !matcher.matches(candidate) {
		return false, nil
	}

	cp := c.clone()
	cp.q.Order = nil

	it, err := cp.Rows(ctx)
	if err != nil {
		return false, err
	}
	defer it.Close()

	candCols := candidate.Columns()
	want := fingerprint(candidate)
	for {
		row, err := it.Next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if fingerprint(row.Project(candCols...)) == want {
			return true, nil
		}
	}
}

// Load looks a row up by identifier, bypassing all accumulated filters.
func (c *Core) Load(ctx context.Context, id interface{}) (*types.Row, error) {
	if loader, ok := c.mat.(Loader); ok {
		return loader.LoadRow(ctx, id)
	}

	it, err := c.mat.Materialize(ctx, &Query{})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for {
		row, err := it.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if types.ValueEqual(row.ID(), id) {
			return row, nil
		}
	}
}
