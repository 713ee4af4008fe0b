package sqlparser

// PredicateType classifies a predicate extracted from a WHERE clause.
type PredicateType int

const (
	PredicateEquality PredicateType = iota // column = value
	PredicateRange                         // column < value, column > value, etc.
	PredicateIn                            // column IN (v1, v2, ...)
	PredicateBetween                       // column BETWEEN low AND high
	PredicateLike                          // column LIKE pattern
	PredicateIsNull                        // column IS NULL / IS NOT NULL
)

// Predicate is a single conjunct lifted out of a WHERE clause with its
// placeholders resolved. Backends use these for pruning decisions; they are
// hints, not the filter itself, so an extractor that skips a predicate it
// cannot express is still correct.
type Predicate struct {
	Type     PredicateType
	Column   string
	Table    string
	Operator string
	Value    interface{}
	Values   []interface{}
	Low      interface{}
	High     interface{}
	Not      bool
}

type predicateExtractor struct {
	args       []interface{}
	predicates []Predicate
}

// ExtractPredicates lifts column/value predicates out of a WHERE expression,
// resolving positional placeholders against args (1-based). Disjunctions are
// not descended into: a predicate under OR does not constrain every row, so
// it must not drive pruning.
func ExtractPredicates(where Expression, args []interface{}) []Predicate {
	if where == nil {
		return nil
	}
	e := &predicateExtractor{args: args}
	e.extract(where)
	return e.predicates
}

func (e *predicateExtractor) extract(expr Expression) {
	switch ex := expr.(type) {
	case *BinaryExpr:
		e.extractBinary(ex)
	case *InExpr:
		e.extractIn(ex)
	case *BetweenExpr:
		e.extractBetween(ex)
	case *LikeExpr:
		e.extractLike(ex)
	case *IsNullExpr:
		e.extractIsNull(ex)
	case *ParenExpr:
		e.extract(ex.Expr)
	}
}

func (e *predicateExtractor) extractBinary(expr *BinaryExpr) {
	switch expr.Operator {
	case "AND":
		e.extract(expr.Left)
		e.extract(expr.Right)
	case "OR":
		// Skip: OR branches only constrain a subset of rows.
	case "=":
		e.extractComparison(expr, PredicateEquality)
	case "<", ">", "<=", ">=":
		e.extractComparison(expr, PredicateRange)
	}
}

func (e *predicateExtractor) extractComparison(expr *BinaryExpr, predType PredicateType) {
	if col, ok := expr.Left.(*ColumnRef); ok {
		if val, ok := e.resolve(expr.Right); ok {
			e.predicates = append(e.predicates, Predicate{
				Type:     predType,
				Column:   col.Column,
				Table:    col.Table,
				Operator: expr.Operator,
				Value:    val,
			})
			return
		}
	}

	// value OP column reads backwards; flip the operator.
	if col, ok := expr.Right.(*ColumnRef); ok {
		if val, ok := e.resolve(expr.Left); ok {
			op := expr.Operator
			switch op {
			case "<":
				op = ">"
			case ">":
				op = "<"
			case "<=":
				op = ">="
			case ">=":
				op = "<="
			}
			e.predicates = append(e.predicates, Predicate{
				Type:     predType,
				Column:   col.Column,
				Table:    col.Table,
				Operator: op,
				Value:    val,
			})
		}
	}
}

func (e *predicateExtractor) extractIn(expr *InExpr) {
	col, ok := expr.Expr.(*ColumnRef)
	if !ok {
		return
	}

	values := make([]interface{}, 0, len(expr.Values))
	for _, v := range expr.Values {
		val, ok := e.resolve(v)
		if !ok {
			return
		}
		values = append(values, val)
	}

	e.predicates = append(e.predicates, Predicate{
		Type:     PredicateIn,
		Column:   col.Column,
		Table:    col.Table,
		Operator: "IN",
		Values:   values,
		Not:      expr.Not,
	})
}

func (e *predicateExtractor) extractBetween(expr *BetweenExpr) {
	col, ok := expr.Expr.(*ColumnRef)
	if !ok {
		return
	}
	low, okLow := e.resolve(expr.Low)
	high, okHigh := e.resolve(expr.High)
	if !okLow || !okHigh {
		return
	}

	e.predicates = append(e.predicates, Predicate{
		Type:     PredicateBetween,
		Column:   col.Column,
		Table:    col.Table,
		Operator: "BETWEEN",
		Low:      low,
		High:     high,
	})
}

func (e *predicateExtractor) extractLike(expr *LikeExpr) {
	col, ok := expr.Expr.(*ColumnRef)
	if !ok {
		return
	}
	pattern, ok := e.resolve(expr.Pattern)
	if !ok {
		return
	}

	e.predicates = append(e.predicates, Predicate{
		Type:     PredicateLike,
		Column:   col.Column,
		Table:    col.Table,
		Operator: "LIKE",
		Value:    pattern,
		Not:      expr.Not,
	})
}

func (e *predicateExtractor) extractIsNull(expr *IsNullExpr) {
	col, ok := expr.Expr.(*ColumnRef)
	if !ok {
		return
	}
	e.predicates = append(e.predicates, Predicate{
		Type:     PredicateIsNull,
		Column:   col.Column,
		Table:    col.Table,
		Operator: "IS NULL",
		Not:      expr.Not,
	})
}

// resolve evaluates a value expression to a concrete Go value. The second
// return is false when the expression is not a literal or a placeholder with
// a bound argument.
func (e *predicateExtractor) resolve(expr Expression) (interface{}, bool) {
	switch ex := expr.(type) {
	case *Literal:
		return ex.Value, true
	case *Param:
		if ex.Index >= 1 && ex.Index <= len(e.args) {
			return e.args[ex.Index-1], true
		}
		return nil, false
	case *ParenExpr:
		return e.resolve(ex.Expr)
	}
	return nil, false
}

// CanUseBloomFilter reports whether a predicate can drive bloom filter
// pruning. Membership filters answer "definitely absent" only for point
// lookups.
func CanUseBloomFilter(p Predicate) bool {
	return (p.Type == PredicateEquality && p.Operator == "=") ||
		(p.Type == PredicateIn && !p.Not)
}
