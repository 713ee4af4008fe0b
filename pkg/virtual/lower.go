package virtual

import (
	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/sqlparser"
	"github.com/veltab/veltab/pkg/table"
)

// predicateRecorder is notified of each lowered condition, for query stats.
type predicateRecorder func(column, operator string)

// lowerer folds a bound WHERE expression onto a table through the algebra
// methods. qualifiers holds the identifiers a column reference may be
// prefixed with (table name and alias).
type lowerer struct {
	qualifiers map[string]bool
	record     predicateRecorder
}

func newLowerer(quals []string, record predicateRecorder) *lowerer {
	l := &lowerer{qualifiers: make(map[string]bool, len(quals))}
	for _, q := range quals {
		if q != "" {
			l.qualifiers[q] = true
		}
	}
	if record == nil {
		record = func(string, string) {}
	}
	l.record = record
	return l
}

// lower applies the expression to the table. The expression must already be
// bound (no placeholders).
func (l *lowerer) lower(t table.Table, expr sqlparser.Expression) (table.Table, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return l.lower(t, e.Expr)

	case *sqlparser.BinaryExpr:
		switch e.Operator {
		case "AND":
			left, err := l.lower(t, e.Left)
			if err != nil {
				return nil, err
			}
			return l.lower(left, e.Right)
		case "OR":
			preds, err := l.orBranches(expr)
			if err != nil {
				return nil, err
			}
			return t.Or(preds...)
		default:
			col, val, op, err := l.comparison(e)
			if err != nil {
				return nil, err
			}
			l.record(col, op.String())
			switch op {
			case predicate.Eq:
				return t.Eq(col, val)
			case predicate.Lt:
				return t.Lt(col, val)
			case predicate.Lte:
				return t.Lte(col, val)
			case predicate.Gt:
				return t.Gt(col, val)
			default:
				return t.Gte(col, val)
			}
		}

	case *sqlparser.LikeExpr:
		if e.Not {
			return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax, "NOT LIKE is not supported")
		}
		col, err := l.columnName(e.Expr)
		if err != nil {
			return nil, err
		}
		pattern, err := literalValue(e.Pattern)
		if err != nil {
			return nil, err
		}
		s, ok := pattern.(string)
		if !ok {
			return nil, errors.NewQueryError(errors.CodeTypeMismatch,
				"LIKE pattern must be a string, got %T", pattern)
		}
		l.record(col, "LIKE")
		return t.Like(col, s)

	case *sqlparser.InExpr:
		if e.Not {
			return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax, "NOT IN is not supported")
		}
		col, err := l.columnName(e.Expr)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(e.Values))
		for i, v := range e.Values {
			val, err := literalValue(v)
			if err != nil {
				return nil, err
			}
			values[i] = val
		}
		l.record(col, "IN")
		return t.In(col, values)

	case *sqlparser.BetweenExpr:
		col, err := l.columnName(e.Expr)
		if err != nil {
			return nil, err
		}
		low, err := literalValue(e.Low)
		if err != nil {
			return nil, err
		}
		high, err := literalValue(e.High)
		if err != nil {
			return nil, err
		}
		l.record(col, "BETWEEN")
		bounded, err := t.Gte(col, low)
		if err != nil {
			return nil, err
		}
		return bounded.Lte(col, high)

	case *sqlparser.IsNullExpr:
		if e.Not {
			return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax, "IS NOT NULL is not supported")
		}
		col, err := l.columnName(e.Expr)
		if err != nil {
			return nil, err
		}
		l.record(col, "IS NULL")
		return t.Eq(col, nil)

	default:
		return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax,
			"unsupported WHERE construct %q", expr.String())
	}
}

// orBranches flattens an OR tree into one predicate per branch. Each branch
// must be a conjunction of simple conditions.
func (l *lowerer) orBranches(expr sqlparser.Expression) ([]*predicate.Predicate, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return l.orBranches(e.Expr)
	case *sqlparser.BinaryExpr:
		if e.Operator == "OR" {
			left, err := l.orBranches(e.Left)
			if err != nil {
				return nil, err
			}
			right, err := l.orBranches(e.Right)
			if err != nil {
				return nil, err
			}
			return append(left, right...), nil
		}
	}

	p, err := l.branchPredicate(predicate.New(), expr)
	if err != nil {
		return nil, err
	}
	return []*predicate.Predicate{p}, nil
}

// branchPredicate folds one OR branch into a predicate.
func (l *lowerer) branchPredicate(p *predicate.Predicate, expr sqlparser.Expression) (*predicate.Predicate, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return l.branchPredicate(p, e.Expr)

	case *sqlparser.BinaryExpr:
		if e.Operator == "AND" {
			left, err := l.branchPredicate(p, e.Left)
			if err != nil {
				return nil, err
			}
			return l.branchPredicate(left, e.Right)
		}
		if e.Operator == "OR" {
			return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax,
				"nested OR groups are not supported")
		}
		col, val, op, err := l.comparison(e)
		if err != nil {
			return nil, err
		}
		l.record(col, op.String())
		return p.Where(col, op, val), nil

	case *sqlparser.LikeExpr:
		if e.Not {
			return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax, "NOT LIKE is not supported")
		}
		col, err := l.columnName(e.Expr)
		if err != nil {
			return nil, err
		}
		pattern, err := literalValue(e.Pattern)
		if err != nil {
			return nil, err
		}
		l.record(col, "LIKE")
		return p.Where(col, predicate.Like, pattern), nil

	case *sqlparser.InExpr:
		if e.Not {
			return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax, "NOT IN is not supported")
		}
		col, err := l.columnName(e.Expr)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(e.Values))
		for i, v := range e.Values {
			val, err := literalValue(v)
			if err != nil {
				return nil, err
			}
			values[i] = val
		}
		l.record(col, "IN")
		return p.Where(col, predicate.In, values), nil

	case *sqlparser.BetweenExpr:
		col, err := l.columnName(e.Expr)
		if err != nil {
			return nil, err
		}
		low, err := literalValue(e.Low)
		if err != nil {
			return nil, err
		}
		high, err := literalValue(e.High)
		if err != nil {
			return nil, err
		}
		l.record(col, "BETWEEN")
		return p.Where(col, predicate.Gte, low).Where(col, predicate.Lte, high), nil

	case *sqlparser.IsNullExpr:
		if e.Not {
			return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax, "IS NOT NULL is not supported")
		}
		col, err := l.columnName(e.Expr)
		if err != nil {
			return nil, err
		}
		l.record(col, "IS NULL")
		return p.Where(col, predicate.Eq, nil), nil

	default:
		return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax,
			"unsupported WHERE construct %q", expr.String())
	}
}

// comparison decomposes a binary comparison into column, value, and the
// algebra operator. A reversed comparison (value OP column) is flipped.
func (l *lowerer) comparison(e *sqlparser.BinaryExpr) (string, interface{}, predicate.Operator, error) {
	ops := map[string]predicate.Operator{
		"=": predicate.Eq, "<": predicate.Lt, "<=": predicate.Lte,
		">": predicate.Gt, ">=": predicate.Gte,
	}
	flipped := map[string]string{
		"=": "=", "<": ">", "<=": ">=", ">": "<", ">=": "<=",
	}

	op, ok := ops[e.Operator]
	if !ok {
		return "", nil, 0, errors.NewQueryError(errors.CodeUnsupportedSyntax,
			"operator %q is not supported", e.Operator)
	}

	if _, isCol := e.Left.(*sqlparser.ColumnRef); isCol {
		col, err := l.columnName(e.Left)
		if err != nil {
			return "", nil, 0, err
		}
		val, err := literalValue(e.Right)
		if err != nil {
			return "", nil, 0, err
		}
		return col, val, op, nil
	}

	if _, isCol := e.Right.(*sqlparser.ColumnRef); isCol {
		col, err := l.columnName(e.Right)
		if err != nil {
			return "", nil, 0, err
		}
		val, err := literalValue(e.Left)
		if err != nil {
			return "", nil, 0, err
		}
		return col, val, ops[flipped[e.Operator]], nil
	}

	return "", nil, 0, errors.NewQueryError(errors.CodeUnsupportedSyntax,
		"comparison %q has no column side", e.String())
}

// columnName resolves a column reference, validating its qualifier.
func (l *lowerer) columnName(expr sqlparser.Expression) (string, error) {
	col, ok := expr.(*sqlparser.ColumnRef)
	if !ok {
		return "", errors.NewQueryError(errors.CodeUnsupportedSyntax,
			"expected a column reference, got %q", expr.String())
	}
	if col.Table != "" && !l.qualifiers[col.Table] {
		return "", errors.NewQueryError(errors.CodeUnknownColumn,
			"unknown table qualifier %q", col.Table)
	}
	return col.Column, nil
}

// literalValue evaluates a bound value expression to its Go value.
func literalValue(expr sqlparser.Expression) (interface{}, error) {
	switch e := expr.(type) {
	case *sqlparser.Literal:
		return e.Value, nil
	case *sqlparser.ParenExpr:
		return literalValue(e.Expr)
	case *sqlparser.Param:
		return nil, errors.NewInternalError("placeholder survived binding", nil)
	default:
		return nil, errors.NewQueryError(errors.CodeUnsupportedSyntax,
			"expected a literal value, got %q", expr.String())
	}
}

// bindExpr replaces positional placeholders with literal arguments. args is
// the full argument list; indexes are 1-based.
func bindExpr(expr sqlparser.Expression, args []interface{}) (sqlparser.Expression, error) {
	if expr == nil {
		return nil, nil
	}
	switch e := expr.(type) {
	case *sqlparser.Param:
		if e.Index < 1 || e.Index > len(args) {
			return nil, errors.NewValidationError(errors.CodeParamCount,
				"no argument for placeholder %d", e.Index)
		}
		return &sqlparser.Literal{Value: args[e.Index-1]}, nil
	case *sqlparser.Literal, *sqlparser.ColumnRef:
		return expr, nil
	case *sqlparser.ParenExpr:
		inner, err := bindExpr(e.Expr, args)
		if err != nil {
			return nil, err
		}
		return &sqlparser.ParenExpr{Expr: inner}, nil
	case *sqlparser.BinaryExpr:
		left, err := bindExpr(e.Left, args)
		if err != nil {
			return nil, err
		}
		right, err := bindExpr(e.Right, args)
		if err != nil {
			return nil, err
		}
		return &sqlparser.BinaryExpr{Left: left, Operator: e.Operator, Right: right}, nil
	case *sqlparser.LikeExpr:
		inner, err := bindExpr(e.Expr, args)
		if err != nil {
			return nil, err
		}
		pattern, err := bindExpr(e.Pattern, args)
		if err != nil {
			return nil, err
		}
		return &sqlparser.LikeExpr{Expr: inner, Pattern: pattern, Not: e.Not}, nil
	case *sqlparser.InExpr:
		inner, err := bindExpr(e.Expr, args)
		if err != nil {
			return nil, err
		}
		values := make([]sqlparser.Expression, len(e.Values))
		for i, v := range e.Values {
			bound, err := bindExpr(v, args)
			if err != nil {
				return nil, err
			}
			values[i] = bound
		}
		return &sqlparser.InExpr{Expr: inner, Values: values, Not: e.Not}, nil
	case *sqlparser.BetweenExpr:
		inner, err := bindExpr(e.Expr, args)
		if err != nil {
			return nil, err
		}
		low, err := bindExpr(e.Low, args)
		if err != nil {
			return nil, err
		}
		high, err := bindExpr(e.High, args)
		if err != nil {
			return nil, err
		}
		return &sqlparser.BetweenExpr{Expr: inner, Low: low, High: high}, nil
	case *sqlparser.IsNullExpr:
		inner, err := bindExpr(e.Expr, args)
		if err != nil {
			return nil, err
		}
		return &sqlparser.IsNullExpr{Expr: inner, Not: e.Not}, nil
	default:
		return expr, nil
	}
}
