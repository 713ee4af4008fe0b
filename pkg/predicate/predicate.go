// Package predicate models bound and unbound filter conditions.
//
// A Predicate is a conjunction of (column, operator, value) conditions that
// exists independently of any table. Values may be placeholders awaiting a
// binding (for example from a join's outer row); a predicate must be fully
// bound before it can be applied to a table.
package predicate

import "fmt"

// Operator is the closed set of filter operators.
type Operator int

const (
	Eq Operator = iota
	Lt
	Lte
	Gt
	Gte
	Like
	In
)

// String returns the SQL spelling of the operator.
func (op Operator) String() string {
	switch op {
	case Eq:
		return "="
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Like:
		return "LIKE"
	case In:
		return "IN"
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

// Param is a named placeholder standing in for a value that will be bound
// later. Applying a predicate that still contains a Param is a programming
// error, not a data error.
type Param struct {
	Name string
}

// Placeholder returns a named parameter placeholder.
func Placeholder(name string) Param {
	return Param{Name: name}
}

// Condition is a single (column, operator, value) triple. For the In
// operator the value is a []interface{} whose elements may themselves be
// placeholders.
type Condition struct {
	Column string
	Op     Operator
	Value  interface{}
}

// bound reports whether the condition's value carries no placeholder.
func (c Condition) bound() bool {
	if _, ok := c.Value.(Param); ok {
		return false
	}
	if vs, ok := c.Value.([]interface{}); ok {
		for _, v := range vs {
			if _, ok := v.(Param); ok {
				return false
			}
		}
	}
	return true
}

// params appends the names of any placeholders in the condition.
func (c Condition) params(names []string) []string {
	if p, ok := c.Value.(Param); ok {
		return append(names, p.Name)
	}
	if vs, ok := c.Value.([]interface{}); ok {
		for _, v := range vs {
			if p, ok := v.(Param); ok {
				names = append(names, p.Name)
			}
		}
	}
	return names
}

// Predicate is an immutable conjunction of conditions. Every builder method
// returns a new predicate; the receiver is never mutated.
type Predicate struct {
	conds []Condition
}

// New returns an empty predicate. An empty predicate is bound and matches
// every row.
func New() *Predicate {
	return &Predicate{}
}

// Where returns a new predicate extended with one condition.
func (p *Predicate) Where(column string, op Operator, value interface{}) *Predicate {
	conds := make([]Condition, len(p.conds)+1)
	copy(conds, p.conds)
	conds[len(p.conds)] = Condition{Column: column, Op: op, Value: value}
	return &Predicate{conds: conds}
}

// Conditions returns the predicate's conditions in insertion order.
func (p *Predicate) Conditions() []Condition {
	out := make([]Condition, len(p.conds))
	copy(out, p.conds)
	return out
}

// Len returns the number of conditions.
func (p *Predicate) Len() int {
	return len(p.conds)
}

// IsBound reports whether every condition value is a concrete scalar.
func (p *Predicate) IsBound() bool {
	for _, c := range p.conds {
		if !c.bound() {
			return false
		}
	}
	return true
}

// UnboundParams returns the names of all placeholders still awaiting a
// value, in condition order.
func (p *Predicate) UnboundParams() []string {
	var names []string
	for _, c := range p.conds {
		names = c.params(names)
	}
	return names
}

// Bind returns a new predicate with every placeholder of the given name
// replaced by the value. Binding an absent name is a no-op.
func (p *Predicate) Bind(name string, value interface{}) *Predicate {
	conds := make([]Condition, len(p.conds))
	copy(conds, p.conds)
	for i, c := range conds {
		if prm, ok := c.Value.(Param); ok && prm.Name == name {
			conds[i].Value = value
			continue
		}
		if vs, ok := c.Value.([]interface{}); ok {
			replaced := make([]interface{}, len(vs))
			copy(replaced, vs)
			changed := false
			for j, v := range replaced {
				if prm, ok := v.(Param); ok && prm.Name == name {
					replaced[j] = value
					changed = true
				}
			}
			if changed {
				conds[i].Value = replaced
			}
		}
	}
	return &Predicate{conds: conds}
}

// String renders the predicate for diagnostics.
func (p *Predicate) String() string {
	s := ""
	for i, c := range p.conds {
		if i > 0 {
			s += " AND "
		}
		s += fmt.Sprintf("%s %s %v", c.Column, c.Op, c.Value)
	}
	return s
}
