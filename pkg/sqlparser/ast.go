package sqlparser

import (
	"fmt"
	"strings"
)

// Statement is a parsed SQL statement.
type Statement interface {
	statementNode()
	String() string
}

// Expression is a node inside a WHERE clause or value list.
type Expression interface {
	expressionNode()
	String() string
}

// SelectStatement is a single-table SELECT.
type SelectStatement struct {
	Distinct bool
	Columns  []SelectColumn
	From     *TableRef
	Where    Expression
	OrderBy  []OrderByClause
	Limit    *int64
	Offset   *int64
}

func (s *SelectStatement) statementNode() {}

// CountOnly reports whether the statement is exactly SELECT COUNT(*).
func (s *SelectStatement) CountOnly() bool {
	return len(s.Columns) == 1 && s.Columns[0].Count
}

// Star reports whether the projection is the * wildcard.
func (s *SelectStatement) Star() bool {
	return len(s.Columns) == 1 && s.Columns[0].Star
}

// ColumnNames returns the projected column names, nil for * or COUNT(*).
func (s *SelectStatement) ColumnNames() []string {
	if s.Star() || s.CountOnly() {
		return nil
	}
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

func (s *SelectStatement) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = c.String()
	}
	sb.WriteString(strings.Join(cols, ", "))
	if s.From != nil {
		sb.WriteString(" FROM ")
		sb.WriteString(s.From.String())
	}
	if s.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.Where.String())
	}
	if len(s.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		orders := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			orders[i] = o.String()
		}
		sb.WriteString(strings.Join(orders, ", "))
	}
	if s.Limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *s.Limit)
	}
	if s.Offset != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *s.Offset)
	}
	return sb.String()
}

// SelectColumn is one projection item: a column name, optionally aliased,
// or the * wildcard, or COUNT(*).
type SelectColumn struct {
	Name  string
	Alias string
	Star  bool
	Count bool
}

func (c SelectColumn) String() string {
	switch {
	case c.Star:
		return "*"
	case c.Count:
		return "COUNT(*)"
	case c.Alias != "":
		return fmt.Sprintf("%s AS %s", c.Name, c.Alias)
	default:
		return c.Name
	}
}

// TableRef names the table a statement operates on.
type TableRef struct {
	Name  string
	Alias string
}

func (t *TableRef) String() string {
	if t.Alias != "" {
		return fmt.Sprintf("%s AS %s", t.Name, t.Alias)
	}
	return t.Name
}

// OrderByClause is one ORDER BY item.
type OrderByClause struct {
	Column string
	Desc   bool
}

func (o OrderByClause) String() string {
	if o.Desc {
		return o.Column + " DESC"
	}
	return o.Column + " ASC"
}

// InsertStatement is INSERT INTO t (cols) VALUES (exprs).
type InsertStatement struct {
	Table   *TableRef
	Columns []string
	Values  []Expression
}

func (s *InsertStatement) statementNode() {}

func (s *InsertStatement) String() string {
	vals := make([]string, len(s.Values))
	for i, v := range s.Values {
		vals[i] = v.String()
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.Table.String(), strings.Join(s.Columns, ", "), strings.Join(vals, ", "))
}

// Assignment is one column = expr pair in an UPDATE SET list.
type Assignment struct {
	Column string
	Value  Expression
}

func (a Assignment) String() string {
	return fmt.Sprintf("%s = %s", a.Column, a.Value.String())
}

// UpdateStatement is UPDATE t SET assignments [WHERE expr].
type UpdateStatement struct {
	Table *TableRef
	Set   []Assignment
	Where Expression
}

func (s *UpdateStatement) statementNode() {}

func (s *UpdateStatement) String() string {
	sets := make([]string, len(s.Set))
	for i, a := range s.Set {
		sets[i] = a.String()
	}
	out := fmt.Sprintf("UPDATE %s SET %s", s.Table.String(), strings.Join(sets, ", "))
	if s.Where != nil {
		out += " WHERE " + s.Where.String()
	}
	return out
}

// DeleteStatement is DELETE FROM t [WHERE expr].
type DeleteStatement struct {
	Table *TableRef
	Where Expression
}

func (s *DeleteStatement) statementNode() {}

func (s *DeleteStatement) String() string {
	out := "DELETE FROM " + s.Table.String()
	if s.Where != nil {
		out += " WHERE " + s.Where.String()
	}
	return out
}

// BinaryExpr is a binary operation such as a = b or x AND y. Operator is the
// upper-cased SQL spelling (=, <>, <, <=, >, >=, AND, OR).
type BinaryExpr struct {
	Left     Expression
	Operator string
	Right    Expression
}

func (b *BinaryExpr) expressionNode() {}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Operator, b.Right.String())
}

// ColumnRef is a reference to a column, optionally table-qualified.
type ColumnRef struct {
	Table  string
	Column string
}

func (c *ColumnRef) expressionNode() {}

func (c *ColumnRef) String() string {
	if c.Table != "" {
		return c.Table + "." + c.Column
	}
	return c.Column
}

// Literal is a constant value: string, int64, float64, bool, or nil.
type Literal struct {
	Value interface{}
}

func (l *Literal) expressionNode() {}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case nil:
		return "NULL"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Param is a positional ? placeholder. Index is 1-based in statement order.
type Param struct {
	Index int
}

func (p *Param) expressionNode() {}

func (p *Param) String() string { return "?" }

// LikeExpr is expr [NOT] LIKE pattern.
type LikeExpr struct {
	Expr    Expression
	Pattern Expression
	Not     bool
}

func (l *LikeExpr) expressionNode() {}

func (l *LikeExpr) String() string {
	if l.Not {
		return fmt.Sprintf("%s NOT LIKE %s", l.Expr.String(), l.Pattern.String())
	}
	return fmt.Sprintf("%s LIKE %s", l.Expr.String(), l.Pattern.String())
}

// InExpr is expr [NOT] IN (values).
type InExpr struct {
	Expr   Expression
	Values []Expression
	Not    bool
}

func (i *InExpr) expressionNode() {}

func (i *InExpr) String() string {
	values := make([]string, len(i.Values))
	for j, v := range i.Values {
		values[j] = v.String()
	}
	op := "IN"
	if i.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", i.Expr.String(), op, strings.Join(values, ", "))
}

// BetweenExpr is expr BETWEEN low AND high, inclusive on both ends.
type BetweenExpr struct {
	Expr Expression
	Low  Expression
	High Expression
}

func (b *BetweenExpr) expressionNode() {}

func (b *BetweenExpr) String() string {
	return fmt.Sprintf("%s BETWEEN %s AND %s", b.Expr.String(), b.Low.String(), b.High.String())
}

// IsNullExpr is expr IS [NOT] NULL.
type IsNullExpr struct {
	Expr Expression
	Not  bool
}

func (i *IsNullExpr) expressionNode() {}

func (i *IsNullExpr) String() string {
	if i.Not {
		return i.Expr.String() + " IS NOT NULL"
	}
	return i.Expr.String() + " IS NULL"
}

// ParenExpr preserves explicit grouping. BinaryExpr already parenthesizes
// its rendering, so String adds nothing.
type ParenExpr struct {
	Expr Expression
}

func (p *ParenExpr) expressionNode() {}

func (p *ParenExpr) String() string {
	return p.Expr.String()
}

// ParamCount returns the number of positional placeholders in the statement.
func ParamCount(stmt Statement) int {
	max := 0
	var walk func(Expression)
	walk = func(e Expression) {
		switch v := e.(type) {
		case *Param:
			if v.Index > max {
				max = v.Index
			}
		case *BinaryExpr:
			walk(v.Left)
			walk(v.Right)
		case *LikeExpr:
			walk(v.Expr)
			walk(v.Pattern)
		case *InExpr:
			walk(v.Expr)
			for _, val := range v.Values {
				walk(val)
			}
		case *BetweenExpr:
			walk(v.Expr)
			walk(v.Low)
			walk(v.High)
		case *IsNullExpr:
			walk(v.Expr)
		case *ParenExpr:
			walk(v.Expr)
		}
	}

	switch s := stmt.(type) {
	case *SelectStatement:
		if s.Where != nil {
			walk(s.Where)
		}
	case *InsertStatement:
		for _, v := range s.Values {
			walk(v)
		}
	case *UpdateStatement:
		for _, a := range s.Set {
			walk(a.Value)
		}
		if s.Where != nil {
			walk(s.Where)
		}
	case *DeleteStatement:
		if s.Where != nil {
			walk(s.Where)
		}
	}
	return max
}
