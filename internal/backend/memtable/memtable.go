// Package memtable provides an in-memory table backend. Rows live in a
// slice guarded by a RWMutex; indexed columns carry bloom filters so point
// lookups on a cold column can skip the scan entirely.
package memtable

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/veltab/veltab/internal/bloom"
	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/sqlparser"
	"github.com/veltab/veltab/pkg/table"
	"github.com/veltab/veltab/pkg/types"
	"github.com/veltab/veltab/pkg/virtual"
)

const (
	filterCapacity  = 4096
	filterTargetFPR = 0.01
)

// Store holds rows for one in-memory table.
type Store struct {
	mu      sync.RWMutex
	schema  []types.ColumnDef
	columns []string
	rows    []*types.Row
	filters map[string]*bloom.Filter // indexed column → filter
	stale   bool                     // filters need a rebuild

	pruned atomic.Int64 // scans skipped thanks to a filter
}

// New creates an empty store for the given schema. Columns marked Indexed
// get a bloom filter.
func New(schema []types.ColumnDef) *Store {
	s := &Store{
		schema:  append([]types.ColumnDef(nil), schema...),
		filters: make(map[string]*bloom.Filter),
	}
	for _, def := range schema {
		s.columns = append(s.columns, def.Name)
		if def.Indexed {
			s.filters[def.Name] = bloom.NewWithEstimates(filterCapacity, filterTargetFPR)
		}
	}
	return s
}

// NewTable builds a fully mutable virtual table backed by a fresh store.
// The store is returned alongside so callers can seed it.
func NewTable(name string, schema []types.ColumnDef, opts ...virtual.TableOption) (*virtual.Table, *Store, error) {
	s := New(schema)
	opts = append([]virtual.TableOption{
		virtual.WithInsert(s.Insert),
		virtual.WithUpdate(s.Update),
		virtual.WithDelete(s.Delete),
		virtual.WithCount(s.Count),
	}, opts...)
	vt, err := virtual.NewTable(name, schema, s.Select, opts...)
	if err != nil {
		return nil, nil, err
	}
	return vt, s, nil
}

// Seed bulk-loads rows, assigning each a fresh id. Missing columns are nil.
func (s *Store) Seed(rows []map[string]interface{}) error {
	for _, values := range rows {
		if _, err := s.Insert(context.Background(), types.NewRow(nil, s.columns, values)); err != nil {
			return err
		}
	}
	return nil
}

// Select streams a snapshot of the current rows. Equality and IN predicates
// on indexed columns are tested against the bloom filters first; a definite
// miss returns an empty iterator without touching the rows.
func (s *Store) Select(_ context.Context, stmt *sqlparser.SelectStatement, coll collate.Collation) (table.RowIter, error) {
	s.mu.Lock()
	if s.stale {
		s.rebuildFilters()
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if stmt != nil && s.definitelyEmpty(stmt.Where, coll) {
		s.pruned.Add(1)
		return table.NewSliceIter(nil), nil
	}

	snapshot := make([]*types.Row, len(s.rows))
	copy(snapshot, s.rows)
	return table.NewSliceIter(snapshot), nil
}

// definitelyEmpty reports whether a bloom filter proves no row can match.
// Caller holds at least the read lock.
func (s *Store) definitelyEmpty(where sqlparser.Expression, coll collate.Collation) bool {
	if where == nil || len(s.filters) == 0 {
		return false
	}
	binary := coll == nil || coll.Name() == "BINARY"
	for _, pred := range sqlparser.ExtractPredicates(where, nil) {
		if !sqlparser.CanUseBloomFilter(pred) {
			continue
		}
		filter, ok := s.filters[pred.Column]
		if !ok {
			continue
		}

		candidates := pred.Values
		if pred.Type == sqlparser.PredicateEquality {
			candidates = []interface{}{pred.Value}
		}
		anyPossible := false
		for _, v := range candidates {
			// Filters hash the stored bytes exactly. Under a folding
			// collation a case-differing row could still equal a text
			// candidate, so only BINARY may prune on strings.
			if _, isText := v.(string); isText && !binary {
				anyPossible = true
				break
			}
			if filter.ContainsValue(v) {
				anyPossible = true
				break
			}
		}
		// The predicate is a conjunct: all candidates absent means no
		// row can satisfy the whole WHERE clause.
		if !anyPossible {
			return true
		}
	}
	return false
}

// Insert stores the row under a fresh uuid and returns the id.
func (s *Store) Insert(_ context.Context, row *types.Row) (interface{}, error) {
	values := make(map[string]interface{}, len(s.columns))
	for _, col := range row.Columns() {
		def, ok := types.FindColumn(s.schema, col)
		if !ok {
			return nil, errors.NewValidationError(errors.CodeUnknownColumn,
				"unknown column %q", col)
		}
		v, _ := row.Value(col)
		if !def.Type.Accepts(v) {
			return nil, errors.NewValidationError(errors.CodeTypeMismatch,
				"column %q expects %s, got %T", col, def.Type, v)
		}
		values[col] = v
	}

	id := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, types.NewRow(id, s.columns, values))
	for col, filter := range s.filters {
		filter.AddValue(values[col])
	}
	return id, nil
}

// Update rewrites the rows with the given ids and returns how many changed.
func (s *Store) Update(_ context.Context, ids []interface{}, changes map[string]interface{}) (int64, error) {
	for col := range changes {
		if _, ok := types.FindColumn(s.schema, col); !ok {
			return 0, errors.NewValidationError(errors.CodeUnknownColumn,
				"unknown column %q", col)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[interface{}]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	var affected int64
	for i, row := range s.rows {
		if !idSet[row.ID()] {
			continue
		}
		values := make(map[string]interface{}, len(s.columns))
		for _, col := range s.columns {
			v, _ := row.Value(col)
			values[col] = v
		}
		for col, v := range changes {
			values[col] = v
		}
		s.rows[i] = types.NewRow(row.ID(), s.columns, values)
		affected++
	}

	if affected > 0 {
		// A changed value may orphan filter entries; rebuild lazily.
		s.stale = true
	}
	return affected, nil
}

// Delete removes the rows with the given ids.
func (s *Store) Delete(_ context.Context, ids []interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[interface{}]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	kept := s.rows[:0]
	var affected int64
	for _, row := range s.rows {
		if idSet[row.ID()] {
			affected++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept

	if affected > 0 {
		s.stale = true
	}
	return affected, nil
}

// Len returns the current row count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Count serves unfiltered counts without copying a snapshot.
func (s *Store) Count(context.Context) (int64, error) {
	return int64(s.Len()), nil
}

// PrunedScans returns how many selects a bloom filter short-circuited.
func (s *Store) PrunedScans() int64 {
	return s.pruned.Load()
}

// rebuildFilters reconstructs all bloom filters from the live rows. Caller
// holds the write lock.
func (s *Store) rebuildFilters() {
	for col := range s.filters {
		s.filters[col] = bloom.NewWithEstimates(max(filterCapacity, len(s.rows)), filterTargetFPR)
		for _, row := range s.rows {
			v, _ := row.Value(col)
			s.filters[col].AddValue(v)
		}
	}
	s.stale = false
}
