package table

import (
	"context"
	"errors"
	"testing"

	veltaberr "github.com/veltab/veltab/internal/errors"
	"github.com/veltab/veltab/pkg/collate"
	"github.com/veltab/veltab/pkg/predicate"
	"github.com/veltab/veltab/pkg/types"
)

// memMaterializer is an in-memory row source that records how often it is
// asked to materialize.
type memMaterializer struct {
	rows  []*types.Row
	hint  *types.OrderInfo
	calls int
}

func (m *memMaterializer) Materialize(_ context.Context, _ *Query, _ ...string) (RowIter, error) {
	m.calls++
	return NewOrderedSliceIter(m.rows, m.hint), nil
}

var usersSchema = []types.ColumnDef{
	{Name: "id", Type: types.ColumnInteger, Indexed: true},
	{Name: "name", Type: types.ColumnText},
	{Name: "status", Type: types.ColumnText},
	{Name: "age", Type: types.ColumnInteger},
}

func userRow(id int64, name, status string, age int64) *types.Row {
	return types.NewRow(id, []string{"id", "name", "status", "age"}, map[string]interface{}{
		"id": id, "name": name, "status": status, "age": age,
	})
}

func usersTable() (Table, *memMaterializer) {
	mat := &memMaterializer{rows: []*types.Row{
		userRow(1, "ada", "active", 36),
		userRow(2, "grace", "inactive", 45),
		userRow(3, "alan", "active", 41),
		userRow(4, "edsger", "retired", 72),
	}}
	return New(usersSchema, collate.Binary(), mat), mat
}

func drainIDs(t *testing.T, tbl Table) []int64 {
	t.Helper()
	it, err := tbl.Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	rows, err := Drain(it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		v, _ := r.Value("id")
		ids = append(ids, v.(int64))
	}
	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEqFilter(t *testing.T) {
	tbl, _ := usersTable()
	filtered, err := tbl.Eq("status", "active")
	if err != nil {
		t.Fatalf("Eq: %v", err)
	}
	if got := drainIDs(t, filtered); !equalIDs(got, []int64{1, 3}) {
		t.Errorf("ids = %v, want [1 3]", got)
	}
	// The original table is unchanged.
	if got := drainIDs(t, tbl); !equalIDs(got, []int64{1, 2, 3, 4}) {
		t.Errorf("original table mutated: ids = %v", got)
	}
}

func TestRangeFilters(t *testing.T) {
	tbl, _ := usersTable()
	tests := []struct {
		name string
		op   func(string, interface{}) (Table, error)
		val  interface{}
		want []int64
	}{
		{"lt", tbl.Lt, int64(45), []int64{1, 3}},
		{"lte", tbl.Lte, int64(45), []int64{1, 2, 3}},
		{"gt", tbl.Gt, int64(45), []int64{4}},
		{"gte", tbl.Gte, int64(45), []int64{2, 4}},
	}
	for _, tt := range tests {
		filtered, err := tt.op("age", tt.val)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := drainIDs(t, filtered); !equalIDs(got, tt.want) {
			t.Errorf("%s: ids = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLike(t *testing.T) {
	tbl, _ := usersTable()
	tests := []struct {
		pattern string
		want    []int64
	}{
		{"a%", []int64{1, 3}},
		{"%a%", []int64{1, 2, 3}},
		{"_da", []int64{1}},
		{"ADA", nil}, // BINARY collation keeps LIKE case-sensitive
	}
	for _, tt := range tests {
		filtered, err := tbl.Like("name", tt.pattern)
		if err != nil {
			t.Fatalf("Like(%q): %v", tt.pattern, err)
		}
		if got := drainIDs(t, filtered); !equalIDs(got, tt.want) {
			t.Errorf("Like(%q): ids = %v, want %v", tt.pattern, got, tt.want)
		}
	}
}

func TestLikeNoCase(t *testing.T) {
	mat := &memMaterializer{rows: []*types.Row{userRow(1, "Ada", "active", 36)}}
	tbl := New(usersSchema, collate.NoCase(), mat)
	filtered, err := tbl.Like("name", "ada")
	if err != nil {
		t.Fatalf("Like: %v", err)
	}
	if got := drainIDs(t, filtered); !equalIDs(got, []int64{1}) {
		t.Errorf("NOCASE LIKE should match: ids = %v", got)
	}
}

func TestIn(t *testing.T) {
	tbl, _ := usersTable()
	filtered, err := tbl.In("id", []interface{}{int64(2), int64(4), int64(99)})
	if err != nil {
		t.Fatalf("In: %v", err)
	}
	if got := drainIDs(t, filtered); !equalIDs(got, []int64{2, 4}) {
		t.Errorf("ids = %v, want [2 4]", got)
	}
}

func TestOr(t *testing.T) {
	tbl, _ := usersTable()
	young := predicate.New().Where("age", predicate.Lt, int64(40))
	retired := predicate.New().Where("status", predicate.Eq, "retired")

	filtered, err := tbl.Or(young, retired)
	if err != nil {
		t.Fatalf("Or: %v", err)
	}
	if got := drainIDs(t, filtered); !equalIDs(got, []int64{1, 4}) {
		t.Errorf("ids = %v, want [1 4]", got)
	}
}

func TestOrRejectsUnboundPredicate(t *testing.T) {
	tbl, _ := usersTable()
	unbound := predicate.New().Where("age", predicate.Lt, predicate.Placeholder("cutoff"))
	_, err := tbl.Or(unbound)
	if err == nil {
		t.Fatal("expected error for unbound predicate")
	}
	if veltaberr.GetCode(err) != veltaberr.CodeUnboundParam {
		t.Errorf("code = %q, want UNBOUND_PARAM", veltaberr.GetCode(err))
	}
}

func TestConstructionErrors(t *testing.T) {
	tbl, mat := usersTable()

	_, err := tbl.Eq("nope", 1)
	if veltaberr.GetCode(err) != veltaberr.CodeUnknownColumn {
		t.Errorf("unknown column: code = %q, want UNKNOWN_COLUMN", veltaberr.GetCode(err))
	}

	_, err = tbl.Eq("age", "not a number")
	if veltaberr.GetCode(err) != veltaberr.CodeTypeMismatch {
		t.Errorf("type mismatch: code = %q, want TYPE_MISMATCH", veltaberr.GetCode(err))
	}

	_, err = tbl.Like("age", "4%")
	if veltaberr.GetCode(err) != veltaberr.CodeTypeMismatch {
		t.Errorf("LIKE on integer column: code = %q, want TYPE_MISMATCH", veltaberr.GetCode(err))
	}

	// Construction errors must be raised before any I/O.
	if mat.calls != 0 {
		t.Errorf("materializer invoked %d times during construction errors", mat.calls)
	}
}

func TestOrderWithCollation(t *testing.T) {
	mat := &memMaterializer{rows: []*types.Row{
		userRow(1, "banana", "active", 1),
		userRow(2, "Apple", "active", 2),
		userRow(3, "cherry", "active", 3),
	}}

	// Bytewise: uppercase first.
	binTbl := New(usersSchema, collate.Binary(), mat).Order(OrderAsc("name"))
	if got := drainIDs(t, binTbl); !equalIDs(got, []int64{2, 1, 3}) {
		t.Errorf("binary order ids = %v, want [2 1 3]", got)
	}

	// Case-insensitive: alphabetical.
	ncTbl := New(usersSchema, collate.NoCase(), mat).Order(OrderAsc("name"))
	if got := drainIDs(t, ncTbl); !equalIDs(got, []int64{2, 1, 3}) {
		t.Errorf("nocase order ids = %v, want [2 1 3]", got)
	}

	desc := New(usersSchema, collate.Binary(), mat).Order(OrderDesc("name"))
	if got := drainIDs(t, desc); !equalIDs(got, []int64{3, 1, 2}) {
		t.Errorf("desc order ids = %v, want [3 1 2]", got)
	}
}

func TestOrderNilClears(t *testing.T) {
	tbl, _ := usersTable()
	ordered := tbl.Order(OrderDesc("id")).Order(nil)
	if got := drainIDs(t, ordered); !equalIDs(got, []int64{1, 2, 3, 4}) {
		t.Errorf("ids = %v, want insertion order", got)
	}
}

func TestOrderHintTrusted(t *testing.T) {
	// The backend lies: rows are not ascending, but the hint claims they
	// are. If the engine trusts the hint it must not sort, so the lie is
	// observable in the output order.
	mat := &memMaterializer{
		rows: []*types.Row{
			userRow(3, "c", "x", 3),
			userRow(1, "a", "x", 1),
			userRow(2, "b", "x", 2),
		},
		hint: &types.OrderInfo{Column: "id", Collation: "BINARY"},
	}
	tbl := New(usersSchema, collate.Binary(), mat).Order(OrderAsc("id"))
	if got := drainIDs(t, tbl); !equalIDs(got, []int64{3, 1, 2}) {
		t.Errorf("engine re-sorted despite matching hint: ids = %v", got)
	}
	if mat.calls != 1 {
		t.Errorf("materializer invoked %d times, want 1", mat.calls)
	}

	// A collation mismatch invalidates the hint and forces a real sort.
	mat.calls = 0
	mat.hint = &types.OrderInfo{Column: "id", Collation: "NOCASE"}
	tbl = New(usersSchema, collate.Binary(), mat).Order(OrderAsc("id"))
	if got := drainIDs(t, tbl); !equalIDs(got, []int64{1, 2, 3}) {
		t.Errorf("mismatched hint must trigger sort: ids = %v", got)
	}
}

func TestLimitOffset(t *testing.T) {
	tbl, mat := usersTable()

	if got := drainIDs(t, tbl.Limit(2)); !equalIDs(got, []int64{1, 2}) {
		t.Errorf("limit(2) ids = %v", got)
	}
	if got := drainIDs(t, tbl.Offset(1).Limit(2)); !equalIDs(got, []int64{2, 3}) {
		t.Errorf("offset(1).limit(2) ids = %v", got)
	}
	if got := drainIDs(t, tbl.Limit(2).Limit(-1)); !equalIDs(got, []int64{1, 2, 3, 4}) {
		t.Errorf("limit clear ids = %v", got)
	}

	mat.calls = 0
	empty := tbl.Limit(0)
	if n, err := empty.Count(context.Background()); err != nil || n != 0 {
		t.Errorf("limit(0) count = %d, %v", n, err)
	}
	if mat.calls != 0 {
		t.Error("limit(0) must not touch the materializer")
	}
}

func TestColumnsProjection(t *testing.T) {
	tbl, _ := usersTable()
	projected := tbl.Columns("name", "ghost")
	it, err := projected.Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	rows, err := Drain(it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("row count = %d", len(rows))
	}
	cols := rows[0].Columns()
	if len(cols) != 1 || cols[0] != "name" {
		t.Errorf("columns = %v, want [name]", cols)
	}
}

func TestUnionAndDistinct(t *testing.T) {
	a, _ := usersTable()
	matB := &memMaterializer{rows: []*types.Row{
		userRow(3, "alan", "active", 41), // duplicate of a's row 3
		userRow(5, "barbara", "active", 39),
	}}
	b := New(usersSchema, collate.Binary(), matB)

	u := a.Union(b)
	if got := drainIDs(t, u); !equalIDs(got, []int64{1, 2, 3, 4, 3, 5}) {
		t.Errorf("union ids = %v", got)
	}

	// Duplicate elimination is explicit.
	if got := drainIDs(t, u.Distinct()); !equalIDs(got, []int64{1, 2, 3, 4, 5}) {
		t.Errorf("distinct ids = %v", got)
	}
}

func TestExcept(t *testing.T) {
	a, _ := usersTable()
	matB := &memMaterializer{rows: []*types.Row{
		userRow(2, "grace", "inactive", 45),
		userRow(4, "edsger", "retired", 72),
	}}
	b := New(usersSchema, collate.Binary(), matB)

	if got := drainIDs(t, a.Except(b)); !equalIDs(got, []int64{1, 3}) {
		t.Errorf("except ids = %v, want [1 3]", got)
	}
}

func TestCountExists(t *testing.T) {
	tbl, _ := usersTable()
	ctx := context.Background()

	if n, _ := tbl.Count(ctx); n != 4 {
		t.Errorf("count = %d, want 4", n)
	}

	active, _ := tbl.Eq("status", "active")
	if n, _ := active.Count(ctx); n != 2 {
		t.Errorf("filtered count = %d, want 2", n)
	}

	ok, _ := active.Exists(ctx)
	if !ok {
		t.Error("exists = false, want true")
	}

	none, _ := tbl.Eq("status", "ghost")
	if ok, _ := none.Exists(ctx); ok {
		t.Error("exists = true for no matches")
	}
}

func TestHas(t *testing.T) {
	tbl, _ := usersTable()
	ctx := context.Background()

	candidate := types.NewRow(nil, []string{"name", "status"}, map[string]interface{}{
		"name": "ada", "status": "active",
	})
	ok, err := tbl.Has(ctx, candidate)
	if err != nil || !ok {
		t.Errorf("Has = %v, %v; want true", ok, err)
	}

	// The candidate fails the accumulated filter, so Has is false even
	// though the row exists.
	inactive, _ := tbl.Eq("status", "inactive")
	ok, err = inactive.Has(ctx, candidate)
	if err != nil || ok {
		t.Errorf("Has = %v, %v; want false under filter", ok, err)
	}

	ghost := types.NewRow(nil, []string{"name"}, map[string]interface{}{"name": "nobody"})
	if ok, _ := tbl.Has(ctx, ghost); ok {
		t.Error("Has = true for absent row")
	}
}

func TestLoad(t *testing.T) {
	tbl, _ := usersTable()
	ctx := context.Background()

	// Load bypasses filters.
	filtered, _ := tbl.Eq("status", "active")
	row, err := filtered.Load(ctx, int64(2))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if row == nil {
		t.Fatal("Load returned nil for present id")
	}
	if name, _ := row.Value("name"); name != "grace" {
		t.Errorf("name = %v, want grace", name)
	}

	row, err = tbl.Load(ctx, int64(99))
	if err != nil || row != nil {
		t.Errorf("Load(99) = %v, %v; want nil, nil", row, err)
	}
}

func TestWithAlias(t *testing.T) {
	tbl, _ := usersTable()
	aliased := tbl.WithAlias("u", map[string]string{"name": "full_name"})

	if _, ok := types.FindColumn(aliased.Schema(), "full_name"); !ok {
		t.Fatal("schema missing aliased column")
	}

	filtered, err := aliased.Eq("full_name", "ada")
	if err != nil {
		t.Fatalf("Eq on alias: %v", err)
	}
	it, err := filtered.Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	rows, _ := Drain(it)
	if len(rows) != 1 {
		t.Fatalf("row count = %d, want 1", len(rows))
	}
	if v, ok := rows[0].Value("full_name"); !ok || v != "ada" {
		t.Errorf("full_name = %v, %v", v, ok)
	}

	// The old name no longer resolves.
	if _, err := aliased.Eq("name", "ada"); err == nil {
		t.Error("expected unknown column error for pre-alias name")
	}
}

func TestBackendErrorPropagates(t *testing.T) {
	boom := errors.New("disk on fire")
	mat := &failingMaterializer{err: boom}
	tbl := New(usersSchema, collate.Binary(), mat)

	it, err := tbl.Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	defer it.Close()
	_, err = it.Next()
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the backend error unchanged", err)
	}
}

type failingMaterializer struct {
	err error
}

func (f *failingMaterializer) Materialize(_ context.Context, _ *Query, _ ...string) (RowIter, error) {
	return NewFuncIter(func() (*types.Row, error) { return nil, f.err }, nil), nil
}
