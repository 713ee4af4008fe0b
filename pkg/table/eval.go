package table

import (
	"regexp"
	"strings"

	"github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/types"
)

// rowMatcher evaluates accumulated filter state against a single row. LIKE
// patterns are compiled once per materialization, not once per row.
type rowMatcher struct {
	conds    []predicate.Condition
	orGroups [][]*predicate.Predicate
	coll     collate.Collation
	likeRes  map[string]*regexp.Regexp
}

func newRowMatcher(conds []predicate.Condition, orGroups [][]*predicate.Predicate, coll collate.Collation) (*rowMatcher, error) {
	m := &rowMatcher{
		conds:    conds,
		orGroups: orGroups,
		coll:     coll,
		likeRes:  make(map[string]*regexp.Regexp),
	}
	if err := m.compileLikes(conds); err != nil {
		return nil, err
	}
	for _, group := range orGroups {
		for _, p := range group {
			if err := m.compileLikes(p.Conditions()); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *rowMatcher) compileLikes(conds []predicate.Condition) error {
	for _, c := range conds {
		if c.Op != predicate.Like {
			continue
		}
		pattern, ok := c.Value.(string)
		if !ok {
			return errors.NewValidationError(errors.CodeTypeMismatch,
				"LIKE pattern for column %q must be a string, got %T", c.Column, c.Value)
		}
		if _, done := m.likeRes[pattern]; done {
			continue
		}
		re, err := compileLikePattern(pattern, m.coll)
		if err != nil {
			return err
		}
		m.likeRes[pattern] = re
	}
	return nil
}

// empty reports whether the matcher accepts every row.
func (m *rowMatcher) empty() bool {
	return len(m.conds) == 0 && len(m.orGroups) == 0
}

// matches evaluates the full conjunction: every condition and, per Or
// group, at least one of its predicates.
func (m *rowMatcher) matches(row *types.Row) bool {
	for _, c := range m.conds {
		if !m.matchCondition(c, row) {
			return false
		}
	}
	for _, group := range m.orGroups {
		matched := false
		for _, p := range group {
			if m.matchAll(p.Conditions(), row) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (m *rowMatcher) matchAll(conds []predicate.Condition, row *types.Row) bool {
	for _, c := range conds {
		if !m.matchCondition(c, row) {
			return false
		}
	}
	return true
}

func (m *rowMatcher) matchCondition(c predicate.Condition, row *types.Row) bool {
	val, ok := row.Value(c.Column)
	if !ok {
		return false
	}

	switch c.Op {
	case predicate.Eq:
		return m.equal(val, c.Value)
	case predicate.Lt:
		return m.comparable(val, c.Value) && m.compare(val, c.Value) < 0
	case predicate.Lte:
		return m.comparable(val, c.Value) && m.compare(val, c.Value) <= 0
	case predicate.Gt:
		return m.comparable(val, c.Value) && m.compare(val, c.Value) > 0
	case predicate.Gte:
		return m.comparable(val, c.Value) && m.compare(val, c.Value) >= 0
	case predicate.Like:
		s, sok := val.(string)
		pattern, pok := c.Value.(string)
		if !sok || !pok {
			return false
		}
		return m.likeRes[pattern].MatchString(s)
	case predicate.In:
		vs, vok := c.Value.([]interface{})
		if !vok {
			return false
		}
		for _, v := range vs {
			if m.equal(val, v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// comparable reports whether an ordering comparison is meaningful: SQL-like
// semantics make range comparisons against NULL always false.
func (m *rowMatcher) comparable(a, b interface{}) bool {
	return a != nil && b != nil
}

func (m *rowMatcher) compare(a, b interface{}) int {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return m.coll.Compare(as, bs)
		}
	}
	return types.CompareValues(a, b)
}

func (m *rowMatcher) equal(a, b interface{}) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return m.coll.Equal(as, bs)
		}
	}
	return types.ValueEqual(a, b)
}

// compileLikePattern translates a SQL LIKE pattern (% and _ wildcards) into
// an anchored regular expression. Matching is case-insensitive unless the
// collation is BINARY.
func compileLikePattern(pattern string, coll collate.Collation) (*regexp.Regexp, error) {
	var sb strings.Builder
	if coll == nil || coll.Name() != "BINARY" {
		sb.WriteString("(?is)")
	} else {
		sb.WriteString("(?s)")
	}
	sb.WriteString("\\A")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("\\z")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryValidation, errors.CodeTypeMismatch,
			"invalid LIKE pattern "+pattern, err)
	}
	return re, nil
}
