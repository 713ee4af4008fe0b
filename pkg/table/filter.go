package table

import (
	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/predicate"
)

// ApplyPredicate lowers a bound predicate onto a table by folding each
// condition through the matching algebra method. This is the sole path by
// which join-style conditions reach a table's native filter methods instead
// of a naive row-by-row scan, and the one place that dispatches over the
// full operator set.
//
// The predicate must be fully bound; applying an unbound predicate is a
// programming error and fails with the unbound parameter names listed.
func ApplyPredicate(t Table, p *predicate.Predicate) (Table, error) {
	if p == nil {
		return t, nil
	}
	if !p.IsBound() {
		return nil, errors.NewValidationError(errors.CodeUnboundParam,
			"cannot apply unbound predicate, missing: %v", p.UnboundParams()).
			WithDetails(map[string]interface{}{"params": p.UnboundParams()})
	}

	var err error
	for _, cond := range p.Conditions() {
		switch cond.Op {
		case predicate.Eq:
			t, err = t.Eq(cond.Column, cond.Value)
		case predicate.Lt:
			t, err = t.Lt(cond.Column, cond.Value)
		case predicate.Lte:
			t, err = t.Lte(cond.Column, cond.Value)
		case predicate.Gt:
			t, err = t.Gt(cond.Column, cond.Value)
		case predicate.Gte:
			t, err = t.Gte(cond.Column, cond.Value)
		case predicate.Like:
			pattern, ok := cond.Value.(string)
			if !ok {
				return nil, errors.NewValidationError(errors.CodeTypeMismatch,
					"LIKE pattern for %q must be a string, got %T", cond.Column, cond.Value)
			}
			t, err = t.Like(cond.Column, pattern)
		case predicate.In:
			values, ok := cond.Value.([]interface{})
			if !ok {
				return nil, errors.NewValidationError(errors.CodeTypeMismatch,
					"IN for %q requires a value slice, got %T", cond.Column, cond.Value)
			}
			t, err = t.In(cond.Column, values)
		default:
			return nil, errors.NewInternalError("unhandled operator "+cond.Op.String(), nil)
		}
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}
