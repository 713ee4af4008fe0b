package virtual

import (
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/sqlparser"
	"github.com/veltab/veltab/pkg/table"
)

// synthesizeSelect renders the engine's accumulated query state back into a
// SELECT statement for the backend. Projection, limit, offset, and distinct
// are deliberately left out: the backend must stream every column of every
// candidate row, and the engine applies those stages itself. WHERE and
// ORDER BY travel along purely as pruning and ordering hints.
func synthesizeSelect(tableName string, q *table.Query) *sqlparser.SelectStatement {
	stmt := &sqlparser.SelectStatement{
		Columns: []sqlparser.SelectColumn{{Star: true}},
		From:    &sqlparser.TableRef{Name: tableName},
	}

	var conjuncts []sqlparser.Expression
	for _, cond := range q.Conditions {
		conjuncts = append(conjuncts, conditionExpr(cond))
	}
	for _, group := range q.OrGroups {
		if expr := orGroupExpr(group); expr != nil {
			conjuncts = append(conjuncts, expr)
		}
	}
	stmt.Where = andJoin(conjuncts)

	if q.Order != nil {
		for _, oc := range q.Order.Columns {
			stmt.OrderBy = append(stmt.OrderBy, sqlparser.OrderByClause{
				Column: oc.Name,
				Desc:   oc.Desc,
			})
		}
	}
	return stmt
}

func conditionExpr(cond predicate.Condition) sqlparser.Expression {
	col := &sqlparser.ColumnRef{Column: cond.Column}

	switch cond.Op {
	case predicate.Eq:
		if cond.Value == nil {
			return &sqlparser.IsNullExpr{Expr: col}
		}
		return &sqlparser.BinaryExpr{Left: col, Operator: "=", Right: &sqlparser.Literal{Value: cond.Value}}
	case predicate.Lt:
		return &sqlparser.BinaryExpr{Left: col, Operator: "<", Right: &sqlparser.Literal{Value: cond.Value}}
	case predicate.Lte:
		return &sqlparser.BinaryExpr{Left: col, Operator: "<=", Right: &sqlparser.Literal{Value: cond.Value}}
	case predicate.Gt:
		return &sqlparser.BinaryExpr{Left: col, Operator: ">", Right: &sqlparser.Literal{Value: cond.Value}}
	case predicate.Gte:
		return &sqlparser.BinaryExpr{Left: col, Operator: ">=", Right: &sqlparser.Literal{Value: cond.Value}}
	case predicate.Like:
		return &sqlparser.LikeExpr{Expr: col, Pattern: &sqlparser.Literal{Value: cond.Value}}
	case predicate.In:
		values, _ := cond.Value.([]interface{})
		exprs := make([]sqlparser.Expression, len(values))
		for i, v := range values {
			exprs[i] = &sqlparser.Literal{Value: v}
		}
		return &sqlparser.InExpr{Expr: col, Values: exprs}
	default:
		// Filters validate operators at construction; an unknown one is
		// simply not rendered and the engine still re-filters.
		return nil
	}
}

// orGroupExpr renders one Or group: the disjunction of its predicates, each
// predicate being the conjunction of its conditions. A branch that renders
// to no conditions matches every row, which makes the whole disjunction
// match-all; the hint must then be omitted entirely, because keeping only
// the other branches would hand the backend a stricter filter than the
// engine applies.
func orGroupExpr(group []*predicate.Predicate) sqlparser.Expression {
	var branches []sqlparser.Expression
	for _, p := range group {
		var conds []sqlparser.Expression
		for _, c := range p.Conditions() {
			if e := conditionExpr(c); e != nil {
				conds = append(conds, e)
			}
		}
		branch := andJoin(conds)
		if branch == nil {
			return nil
		}
		branches = append(branches, branch)
	}

	var out sqlparser.Expression
	for _, b := range branches {
		if out == nil {
			out = b
			continue
		}
		out = &sqlparser.BinaryExpr{Left: out, Operator: "OR", Right: b}
	}
	return out
}

func andJoin(exprs []sqlparser.Expression) sqlparser.Expression {
	var out sqlparser.Expression
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if out == nil {
			out = e
			continue
		}
		out = &sqlparser.BinaryExpr{Left: out, Operator: "AND", Right: e}
	}
	return out
}
