// Package csvfile provides a read-only backend over CSV flat files. Every
// select re-opens the file and streams it record by record, so the engine's
// laziness carries through: a LIMIT query stops reading mid-file.
package csvfile

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/sqlparser"
	"github.com/veltab/veltab/pkg/table"
	"github.com/veltab/veltab/pkg/types"
	"github.com/veltab/veltab/pkg/virtual"
)

// Source reads one CSV file as a table. The first record must be a header
// naming the columns; header names are matched against the schema and
// columns absent from the schema are ignored.
type Source struct {
	path   string
	schema []types.ColumnDef
	comma  rune
}

// Option configures a Source.
type Option func(*Source)

// WithComma sets the field delimiter. The default is ','.
func WithComma(c rune) Option {
	return func(s *Source) { s.comma = c }
}

// New creates a source for the given file and schema.
func New(path string, schema []types.ColumnDef, opts ...Option) *Source {
	s := &Source{
		path:   path,
		schema: append([]types.ColumnDef(nil), schema...),
		comma:  ',',
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewTable wraps a source in a read-only virtual table.
func NewTable(name, path string, schema []types.ColumnDef, opts ...Option) (*virtual.Table, error) {
	return virtual.NewTable(name, schema, New(path, schema, opts...).Select)
}

// Select streams the file. The statement is ignored: CSV has no structure
// to prune with, so the engine does all the filtering.
func (s *Source) Select(_ context.Context, _ *sqlparser.SelectStatement, _ collate.Collation) (table.RowIter, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"open csv file", err)
	}

	r := csv.NewReader(f)
	r.Comma = s.comma
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return table.NewSliceIter(nil), nil
		}
		return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
			"read csv header", err)
	}

	// fields[i] is the schema column for record field i, nil when the file
	// carries a column the schema does not.
	fields := make([]*types.ColumnDef, len(header))
	var columns []string
	for i, name := range header {
		if def, ok := types.FindColumn(s.schema, name); ok {
			d := def
			fields[i] = &d
			columns = append(columns, name)
		}
	}

	var line int64
	next := func() (*types.Row, error) {
		record, err := r.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
				"read csv record", err)
		}
		line++

		values := make(map[string]interface{}, len(columns))
		for i, def := range fields {
			if def == nil || i >= len(record) {
				continue
			}
			v, err := convert(record[i], def.Type)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCategoryQuery, errors.CodeScanFailed,
					"column "+strconv.Quote(def.Name), err)
			}
			values[def.Name] = v
		}
		return types.NewRow(line, columns, values), nil
	}
	return table.NewFuncIter(next, f.Close), nil
}

// convert parses a CSV field into the column's Go representation. An empty
// field is nil except for text columns, where it is the empty string.
func convert(field string, t types.ColumnType) (interface{}, error) {
	if field == "" && t != types.ColumnText {
		return nil, nil
	}
	switch t {
	case types.ColumnInteger:
		return strconv.ParseInt(field, 10, 64)
	case types.ColumnFloat:
		return strconv.ParseFloat(field, 64)
	case types.ColumnBool:
		return strconv.ParseBool(field)
	case types.ColumnBlob:
		return []byte(field), nil
	default:
		return field, nil
	}
}
