// Package types provides core data types for the Veltab engine.
package types

import "fmt"

// ColumnType is the semantic type of a column's values.
type ColumnType int

const (
	// ColumnAny accepts values of any type and disables type checking.
	ColumnAny ColumnType = iota

	// ColumnInteger holds int64 values.
	ColumnInteger

	// ColumnFloat holds float64 values.
	ColumnFloat

	// ColumnText holds string values.
	ColumnText

	// ColumnBool holds bool values.
	ColumnBool

	// ColumnBlob holds []byte values.
	ColumnBlob
)

// String returns the SQL-ish name of the column type.
func (t ColumnType) String() string {
	switch t {
	case ColumnAny:
		return "ANY"
	case ColumnInteger:
		return "INTEGER"
	case ColumnFloat:
		return "REAL"
	case ColumnText:
		return "TEXT"
	case ColumnBool:
		return "BOOLEAN"
	case ColumnBlob:
		return "BLOB"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Accepts reports whether a scalar value is admissible for this column type.
// Nil is admissible for every type. Integers are admissible for float
// columns since backends routinely decode whole numbers as int64.
func (t ColumnType) Accepts(v interface{}) bool {
	if v == nil {
		return true
	}
	switch t {
	case ColumnAny:
		return true
	case ColumnInteger:
		_, ok := normalizeInt(v)
		return ok
	case ColumnFloat:
		switch v.(type) {
		case float64, float32:
			return true
		}
		_, ok := normalizeInt(v)
		return ok
	case ColumnText:
		_, ok := v.(string)
		return ok
	case ColumnBool:
		_, ok := v.(bool)
		return ok
	case ColumnBlob:
		_, ok := v.([]byte)
		return ok
	}
	return false
}

// InferType returns the column type that best describes a value.
func InferType(v interface{}) ColumnType {
	switch v.(type) {
	case nil:
		return ColumnAny
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return ColumnInteger
	case float32, float64:
		return ColumnFloat
	case string:
		return ColumnText
	case bool:
		return ColumnBool
	case []byte:
		return ColumnBlob
	default:
		return ColumnAny
	}
}

// ColumnDef describes a single column in a table schema.
// A ColumnDef is created once per schema and never mutated.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name"`

	// Type is the semantic type of the column's values
	Type ColumnType `json:"type"`

	// Indexed indicates the backend maintains an index over this column
	Indexed bool `json:"indexed"`
}

// FindColumn returns the definition of the named column, or false if the
// schema does not contain it.
func FindColumn(schema []ColumnDef, name string) (ColumnDef, bool) {
	for _, def := range schema {
		if def.Name == name {
			return def, true
		}
	}
	return ColumnDef{}, false
}
