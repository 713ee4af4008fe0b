package types

// Row is the unit of data produced by a backend: a backend-assigned
// identifier paired with an ordered column-to-value mapping.
//
// Rows are value objects. A backend must produce a fresh Row per logical
// record; the engine never mutates a Row in place. The identifier is the
// sole handle used for later update/delete calls.
type Row struct {
	id      interface{}
	columns []string
	values  map[string]interface{}
}

// NewRow builds a row from an identifier and column/value pairs. The column
// slice fixes iteration order; values for columns missing from the map read
// as nil. Both inputs are copied.
func NewRow(id interface{}, columns []string, values map[string]interface{}) *Row {
	cols := make([]string, len(columns))
	copy(cols, columns)
	vals := make(map[string]interface{}, len(values))
	for k, v := range values {
		vals[k] = v
	}
	return &Row{id: id, columns: cols, values: vals}
}

// ID returns the backend-assigned row identifier (string or int64).
func (r *Row) ID() interface{} {
	return r.id
}

// Columns returns the column names in their declared order.
func (r *Row) Columns() []string {
	cols := make([]string, len(r.columns))
	copy(cols, r.columns)
	return cols
}

// Len returns the number of columns in the row.
func (r *Row) Len() int {
	return len(r.columns)
}

// Value returns the value of the named column and whether the row has it.
func (r *Row) Value(name string) (interface{}, bool) {
	if v, ok := r.values[name]; ok {
		return v, true
	}
	for _, c := range r.columns {
		if c == name {
			return nil, true
		}
	}
	return nil, false
}

// Values returns column values in declared column order.
func (r *Row) Values() []interface{} {
	out := make([]interface{}, len(r.columns))
	for i, c := range r.columns {
		out[i] = r.values[c]
	}
	return out
}

// Project returns a copy of the row restricted to the named columns, in the
// given order. Unknown names are dropped.
func (r *Row) Project(names ...string) *Row {
	cols := make([]string, 0, len(names))
	vals := make(map[string]interface{}, len(names))
	for _, name := range names {
		if _, ok := r.Value(name); !ok {
			continue
		}
		cols = append(cols, name)
		vals[name] = r.values[name]
	}
	return &Row{id: r.id, columns: cols, values: vals}
}

// Rename returns a copy of the row with columns renamed per the old-to-new
// mapping. Columns absent from the mapping keep their name.
func (r *Row) Rename(mapping map[string]string) *Row {
	cols := make([]string, len(r.columns))
	vals := make(map[string]interface{}, len(r.columns))
	for i, c := range r.columns {
		name := c
		if renamed, ok := mapping[c]; ok {
			name = renamed
		}
		cols[i] = name
		vals[name] = r.values[c]
	}
	return &Row{id: r.id, columns: cols, values: vals}
}

// EqualValues reports whether two rows carry the same columns (in order)
// with equal values. Identifiers are ignored.
func (r *Row) EqualValues(other *Row) bool {
	if other == nil || len(r.columns) != len(other.columns) {
		return false
	}
	for i, c := range r.columns {
		if other.columns[i] != c {
			return false
		}
		if !ValueEqual(r.values[c], other.values[c]) {
			return false
		}
	}
	return true
}

// OrderInfo is a backend's assertion, made before the first row of a stream
// is consumed, that the stream is already sorted by a single column under a
// named collation. The engine trusts the assertion only when it exactly
// matches the requested order; any mismatch falls back to a buffered sort.
type OrderInfo struct {
	// Column is the column the stream is sorted by
	Column string

	// Desc is true for descending order
	Desc bool

	// Collation is the identity of the collation the sort was produced
	// under (e.g. "BINARY", "NOCASE", a BCP-47 tag)
	Collation string
}
