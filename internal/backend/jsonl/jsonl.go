// Package jsonl stores table rows as snappy-compressed JSON-lines segment
// objects in object storage. A table is a key prefix; each segment object
// under it holds a batch of rows, one JSON document per line with the row id
// in the _id field. Segments are fetched in parallel and rewritten whole on
// mutation, guarded by etags so concurrent writers fail loudly instead of
// clobbering each other.
package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/internal/storage"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/sqlparser"
	"github.com/veltab/veltab/pkg/table"
	"github.com/veltab/veltab/pkg/types"
	"github.com/veltab/veltab/pkg/virtual"
)

const idField = "_id"

// Store reads and writes one table's segments.
type Store struct {
	storage storage.ObjectStorage
	fetcher *storage.BatchFetcher
	prefix  string
	schema  []types.ColumnDef
	columns []string
}

// New creates a store for the table living under the given key prefix.
func New(st storage.ObjectStorage, prefix string, schema []types.ColumnDef) *Store {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	s := &Store{
		storage: st,
		fetcher: storage.NewBatchFetcher(st, 8),
		prefix:  prefix,
		schema:  append([]types.ColumnDef(nil), schema...),
	}
	for _, def := range schema {
		s.columns = append(s.columns, def.Name)
	}
	return s
}

// NewTable wraps a store in a fully mutable virtual table.
func NewTable(name string, st storage.ObjectStorage, prefix string, schema []types.ColumnDef, opts ...virtual.TableOption) (*virtual.Table, *Store, error) {
	s := New(st, prefix, schema)
	opts = append([]virtual.TableOption{
		virtual.WithInsert(s.Insert),
		virtual.WithUpdate(s.Update),
		virtual.WithDelete(s.Delete),
	}, opts...)
	vt, err := virtual.NewTable(name, schema, s.Select, opts...)
	if err != nil {
		return nil, nil, err
	}
	return vt, s, nil
}

// segment is one fetched and decoded object.
type segment struct {
	key  string
	etag string
	rows []*types.Row
}

// load fetches and decodes every segment under the prefix, in key order.
func (s *Store) load(ctx context.Context) ([]*segment, error) {
	keys, err := s.storage.List(ctx, s.prefix)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"list segments", err)
	}
	sort.Strings(keys)

	res, err := s.fetcher.Fetch(ctx, keys)
	if err != nil {
		return nil, err
	}
	for key, ferr := range res.Errors {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"fetch segment "+key, ferr)
	}

	segments := make([]*segment, 0, len(keys))
	for _, key := range keys {
		rows, err := s.decodeSegment(res.Objects[key])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
				"decode segment "+key, err)
		}
		segments = append(segments, &segment{key: key, etag: res.ETags[key], rows: rows})
	}
	return segments, nil
}

// Select streams every row of every segment. Segments carry no index to
// prune with, so the statement goes unused and the engine filters.
func (s *Store) Select(ctx context.Context, _ *sqlparser.SelectStatement, _ collate.Collation) (table.RowIter, error) {
	segments, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	var rows []*types.Row
	for _, seg := range segments {
		rows = append(rows, seg.rows...)
	}
	return table.NewSliceIter(rows), nil
}

// Append writes one new segment holding the given rows, assigning each a
// fresh id. This is the bulk-load path.
func (s *Store) Append(ctx context.Context, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([]*types.Row, 0, len(rows))
	for _, values := range rows {
		batch = append(batch, types.NewRow(uuid.New().String(), s.columns, values))
	}
	return s.writeSegment(ctx, batch)
}

// Insert writes the row into a fresh single-row segment and returns its id.
func (s *Store) Insert(ctx context.Context, row *types.Row) (interface{}, error) {
	values := make(map[string]interface{}, len(s.columns))
	for _, col := range row.Columns() {
		if _, ok := types.FindColumn(s.schema, col); !ok {
			return nil, errors.NewValidationError(errors.CodeUnknownColumn,
				"unknown column %q", col)
		}
		v, _ := row.Value(col)
		values[col] = v
	}

	id := uuid.New().String()
	if err := s.writeSegment(ctx, []*types.Row{types.NewRow(id, s.columns, values)}); err != nil {
		return nil, err
	}
	return id, nil
}

// Update rewrites every segment containing one of the ids.
func (s *Store) Update(ctx context.Context, ids []interface{}, changes map[string]interface{}) (int64, error) {
	return s.rewrite(ctx, ids, func(row *types.Row) *types.Row {
		values := make(map[string]interface{}, len(s.columns))
		for _, col := range s.columns {
			v, _ := row.Value(col)
			values[col] = v
		}
		for col, v := range changes {
			values[col] = v
		}
		return types.NewRow(row.ID(), s.columns, values)
	})
}

// Delete removes the rows with the given ids, dropping emptied segments.
func (s *Store) Delete(ctx context.Context, ids []interface{}) (int64, error) {
	return s.rewrite(ctx, ids, nil)
}

// rewrite applies transform to every row whose id is in ids; a nil transform
// removes the row. Only touched segments are rewritten, each conditionally
// on the etag it was fetched under.
func (s *Store) rewrite(ctx context.Context, ids []interface{}, transform func(*types.Row) *types.Row) (int64, error) {
	idSet := make(map[interface{}]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	segments, err := s.load(ctx)
	if err != nil {
		return 0, err
	}

	var affected int64
	for _, seg := range segments {
		touched := false
		kept := make([]*types.Row, 0, len(seg.rows))
		for _, row := range seg.rows {
			if !idSet[row.ID()] {
				kept = append(kept, row)
				continue
			}
			touched = true
			affected++
			if transform != nil {
				kept = append(kept, transform(row))
			}
		}
		if !touched {
			continue
		}

		if len(kept) == 0 {
			if err := s.storage.Delete(ctx, seg.key); err != nil {
				return 0, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
					"drop segment "+seg.key, err)
			}
			continue
		}
		data, err := s.encodeSegment(kept)
		if err != nil {
			return 0, err
		}
		if _, err := s.storage.PutIf(ctx, seg.key, data, seg.etag); err != nil {
			return 0, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
				"rewrite segment "+seg.key, err)
		}
	}
	return affected, nil
}

// Compact merges all segments into a single new segment and removes the
// old ones. Insert-heavy tables accumulate one object per row; compacting
// keeps the object count, and with it select latency, bounded.
func (s *Store) Compact(ctx context.Context) (int, error) {
	segments, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	if len(segments) <= 1 {
		return len(segments), nil
	}

	var rows []*types.Row
	for _, seg := range segments {
		rows = append(rows, seg.rows...)
	}
	if err := s.writeSegment(ctx, rows); err != nil {
		return 0, err
	}

	// The merged segment is durable; dropping the originals last means a
	// crash leaves duplicates behind, never losses.
	for _, seg := range segments {
		if err := s.storage.Delete(ctx, seg.key); err != nil {
			return 0, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
				"drop compacted segment "+seg.key, err)
		}
	}
	return len(segments), nil
}

func (s *Store) writeSegment(ctx context.Context, rows []*types.Row) error {
	data, err := s.encodeSegment(rows)
	if err != nil {
		return err
	}
	key := s.prefix + "seg-" + uuid.New().String() + ".jsonl.sz"
	if _, err := s.storage.Put(ctx, key, data); err != nil {
		return errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"write segment "+key, err)
	}
	return nil
}

func (s *Store) encodeSegment(rows []*types.Row) ([]byte, error) {
	var buf bytes.Buffer
	for _, row := range rows {
		doc := make(map[string]interface{}, len(s.columns)+1)
		doc[idField] = row.ID()
		for _, col := range s.columns {
			v, _ := row.Value(col)
			doc[col] = v
		}
		line, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.NewInternalError("encode row", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func (s *Store) decodeSegment(data []byte) ([]*types.Row, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, err
	}

	var rows []*types.Row
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	for dec.More() {
		var doc map[string]interface{}
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}

		id := doc[idField]
		values := make(map[string]interface{}, len(s.columns))
		for _, def := range s.schema {
			v, err := fromJSON(doc[def.Name], def.Type)
			if err != nil {
				return nil, err
			}
			values[def.Name] = v
		}
		rows = append(rows, types.NewRow(id, s.columns, values))
	}
	return rows, nil
}

// fromJSON maps a decoded JSON value onto the column's Go representation.
// Numbers arrive as json.Number because the decoder is configured with
// UseNumber; everything else decodes to its natural Go type.
func fromJSON(v interface{}, t types.ColumnType) (interface{}, error) {
	n, ok := v.(json.Number)
	if !ok {
		return v, nil
	}
	switch t {
	case types.ColumnInteger:
		return n.Int64()
	case types.ColumnFloat:
		return n.Float64()
	default:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	}
}
