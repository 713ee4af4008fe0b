package table

import (
	"sort"

	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/types"
)

// sortRows orders rows in place per the spec. The sort is stable so that
// rows equal under every order column keep their backend insertion order.
func sortRows(rows []*types.Row, spec *OrderSpec, coll collate.Collation) {
	if spec == nil || len(spec.Columns) == 0 || len(rows) <= 1 {
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, oc := range spec.Columns {
			a, _ := rows[i].Value(oc.Name)
			b, _ := rows[j].Value(oc.Name)

			cmp := compareWithCollation(a, b, coll)
			if cmp == 0 {
				continue
			}
			if oc.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareWithCollation(a, b interface{}, coll collate.Collation) int {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return coll.Compare(as, bs)
		}
	}
	return types.CompareValues(a, b)
}

// hintSatisfies reports whether a backend order assertion covers the
// requested ordering. Composite orders are treated conservatively: even a
// hint matching the first order column triggers a full re-sort.
func hintSatisfies(hint *types.OrderInfo, spec *OrderSpec, coll collate.Collation) bool {
	if hint == nil || spec == nil || len(spec.Columns) != 1 {
		return false
	}
	oc := spec.Columns[0]
	if hint.Column != oc.Name || hint.Desc != oc.Desc {
		return false
	}
	return hint.Collation == coll.Name()
}
