// Package table implements the lazy, immutable table algebra at the heart
// of the Veltab engine.
//
// A Table is a handle on a (possibly filtered, ordered, paginated) row set.
// Every operation returns a new Table value; the receiver is never mutated,
// and no row is materialized until the caller iterates Rows or invokes a
// terminal operation (Count, Exists, Has, Load). Concrete tables implement
// only the Materializer extension point; all filter, ordering, projection
// and pagination semantics live in the shared core.
package table

import (
	"context"

	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/types"
)

// Table is the operation contract every table-like value exposes.
//
// Filter methods (Eq, Lt, Lte, Gt, Gte, Like, In, Or) validate their column
// and scalar synchronously: filtering by an unknown column or by a scalar
// that does not match the column's declared type fails at the call site,
// never at materialization. All non-terminal operations are pure value
// transformations with no I/O.
type Table interface {
	// Schema returns the table's column definitions.
	Schema() []types.ColumnDef

	// Collation returns the collation text comparisons are made under.
	Collation() collate.Collation

	// Eq narrows to rows whose column equals the scalar.
	Eq(column string, value interface{}) (Table, error)

	// Lt narrows to rows whose column is less than the scalar.
	Lt(column string, value interface{}) (Table, error)

	// Lte narrows to rows whose column is less than or equal to the scalar.
	Lte(column string, value interface{}) (Table, error)

	// Gt narrows to rows whose column is greater than the scalar.
	Gt(column string, value interface{}) (Table, error)

	// Gte narrows to rows whose column is greater than or equal to the scalar.
	Gte(column string, value interface{}) (Table, error)

	// Like narrows to rows whose column matches a SQL pattern using the
	// % and _ wildcards. Matching is case-insensitive unless the table's
	// collation is BINARY.
	Like(column, pattern string) (Table, error)

	// In narrows to rows whose column equals any of the given values.
	In(column string, values []interface{}) (Table, error)

	// Or narrows to rows matching at least one of the given predicates,
	// still restricted to the current row set. Every predicate must be
	// fully bound.
	Or(preds ...*predicate.Predicate) (Table, error)

	// Union lazily concatenates this table with another of the same
	// shape. Duplicates are kept until Distinct is called.
	Union(other Table) Table

	// Except removes rows present in the other table's row set, compared
	// by value membership rather than identity.
	Except(other Table) Table

	// Distinct removes duplicate rows under the current projection.
	Distinct() Table

	// Columns projects onto the named columns. Unknown names are
	// silently dropped.
	Columns(names ...string) Table

	// Order sets the ordering; a nil spec clears it.
	Order(spec *OrderSpec) Table

	// Limit caps the row count. Limit(0) collapses to an empty table
	// without touching the backend; a negative n clears the limit.
	Limit(n int) Table

	// Offset skips the first n rows.
	Offset(n int) Table

	// Load looks a row up by identifier, bypassing filter evaluation.
	// Returns (nil, nil) when the identifier is absent.
	Load(ctx context.Context, id interface{}) (*types.Row, error)

	// Count returns the number of rows in the current row set.
	Count(ctx context.Context) (int64, error)

	// Exists reports whether the current row set is non-empty.
	Exists(ctx context.Context) (bool, error)

	// Has reports whether the candidate passes all current filters and a
	// row with exactly its values exists in the current row set.
	Has(ctx context.Context, candidate *types.Row) (bool, error)

	// WithAlias renames the table and/or columns (old name to new name)
	// without altering row content.
	WithAlias(tableAlias string, columnAliases map[string]string) Table

	// Rows materializes the current row set lazily. Extra column names
	// are appended to the projection. The caller must Close the iterator,
	// including when abandoning it before exhaustion.
	Rows(ctx context.Context, extraColumns ...string) (RowIter, error)
}

// OrderColumn names one column of an ordering and its direction.
type OrderColumn struct {
	Name string
	Desc bool
}

// OrderSpec is a requested row ordering over one or more columns.
type OrderSpec struct {
	Columns []OrderColumn
}

// OrderAsc builds an ascending OrderSpec over the given columns.
func OrderAsc(columns ...string) *OrderSpec {
	spec := &OrderSpec{}
	for _, c := range columns {
		spec.Columns = append(spec.Columns, OrderColumn{Name: c})
	}
	return spec
}

// OrderDesc builds a descending OrderSpec over the given columns.
func OrderDesc(columns ...string) *OrderSpec {
	spec := &OrderSpec{}
	for _, c := range columns {
		spec.Columns = append(spec.Columns, OrderColumn{Name: c, Desc: true})
	}
	return spec
}

// clone returns a deep copy of the spec.
func (s *OrderSpec) clone() *OrderSpec {
	if s == nil {
		return nil
	}
	cols := make([]OrderColumn, len(s.Columns))
	copy(cols, s.Columns)
	return &OrderSpec{Columns: cols}
}

// Query is the accumulated filter/order/pagination state handed to a
// Materializer. A materializer may consult it to optimize its scan (for
// example to skip reading unneeded columns) but is never required to honor
// it: the core re-applies every clause engine-side.
type Query struct {
	// Conditions is the conjunction of bound filter conditions.
	Conditions []predicate.Condition

	// OrGroups holds one group per Or call; a row must match at least
	// one predicate in every group.
	OrGroups [][]*predicate.Predicate

	// Order is the requested ordering, nil when unordered.
	Order *OrderSpec

	// Limit is the row cap, nil when unlimited.
	Limit *int

	// Offset is the number of leading rows to skip.
	Offset int

	// Projection lists the requested columns, nil for all.
	Projection []string

	// Distinct is true when duplicate rows are to be removed.
	Distinct bool
}

// clone returns a deep copy of the query state.
func (q *Query) clone() Query {
	cp := Query{
		Order:    q.Order.clone(),
		Offset:   q.Offset,
		Distinct: q.Distinct,
	}
	if q.Conditions != nil {
		cp.Conditions = make([]predicate.Condition, len(q.Conditions))
		copy(cp.Conditions, q.Conditions)
	}
	if q.OrGroups != nil {
		cp.OrGroups = make([][]*predicate.Predicate, len(q.OrGroups))
		for i, g := range q.OrGroups {
			group := make([]*predicate.Predicate, len(g))
			copy(group, g)
			cp.OrGroups[i] = group
		}
	}
	if q.Limit != nil {
		n := *q.Limit
		cp.Limit = &n
	}
	if q.Projection != nil {
		cp.Projection = make([]string, len(q.Projection))
		copy(cp.Projection, q.Projection)
	}
	return cp
}

// Materializer is the single extension point a concrete table implements:
// produce a lazy sequence of raw rows. The returned iterator may implement
// Ordered to assert a pre-existing sort order.
type Materializer interface {
	Materialize(ctx context.Context, q *Query, extraColumns ...string) (RowIter, error)
}

// Counter is an optional Materializer fast path for counting rows without
// iterating them. The core consults it only when no filter, pagination or
// de-duplication state is pending.
type Counter interface {
	CountRows(ctx context.Context) (int64, error)
}

// Loader is an optional Materializer fast path for identifier lookup.
type Loader interface {
	LoadRow(ctx context.Context, id interface{}) (*types.Row, error)
}

// Observer receives notifications about materialization decisions. The
// virtual database layer uses it to track order-hint effectiveness.
type Observer interface {
	// RecordOrderHint is called once per ordered materialization: hit is
	// true when a backend's order assertion made an engine sort
	// unnecessary.
	RecordOrderHint(hit bool)
}
