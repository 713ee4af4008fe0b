package sqlparser

import (
	"strings"
	"testing"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{
			"SELECT * FROM users",
			[]TokenType{TokenSelect, TokenStar, TokenFrom, TokenIdent, TokenEOF},
		},
		{
			"SELECT id, name FROM users WHERE id = ?",
			[]TokenType{TokenSelect, TokenIdent, TokenComma, TokenIdent, TokenFrom, TokenIdent, TokenWhere, TokenIdent, TokenEq, TokenParam, TokenEOF},
		},
		{
			"SELECT COUNT(*) FROM users WHERE name LIKE 'a%'",
			[]TokenType{TokenSelect, TokenCount, TokenLParen, TokenStar, TokenRParen, TokenFrom, TokenIdent, TokenWhere, TokenIdent, TokenLike, TokenString, TokenEOF},
		},
		{
			"DELETE FROM users WHERE age >= 18",
			[]TokenType{TokenDelete, TokenFrom, TokenIdent, TokenWhere, TokenIdent, TokenGe, TokenNumber, TokenEOF},
		},
	}

	for _, tt := range tests {
		tokens := NewLexer(tt.input).Tokenize()

		if len(tokens) != len(tt.expected) {
			t.Errorf("input %q: expected %d tokens, got %d", tt.input, len(tt.expected), len(tokens))
			continue
		}
		for i, tok := range tokens {
			if tok.Type != tt.expected[i] {
				t.Errorf("input %q: token %d: expected %s, got %s", tt.input, i, tt.expected[i], tok.Type)
			}
		}
	}
}

func TestLexerStringEscapes(t *testing.T) {
	tokens := NewLexer("SELECT * FROM t WHERE name = 'O''Brien'").Tokenize()
	var str *Token
	for i := range tokens {
		if tokens[i].Type == TokenString {
			str = &tokens[i]
		}
	}
	if str == nil {
		t.Fatal("no string token found")
	}
	if str.Literal != "O'Brien" {
		t.Errorf("literal = %q, want O'Brien", str.Literal)
	}
}

func TestParseSimpleSelect(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sel, ok := stmt.(*SelectStatement)
	if !ok {
		t.Fatalf("expected SelectStatement, got %T", stmt)
	}
	if !sel.Star() {
		t.Error("expected star projection")
	}
	if sel.From == nil || sel.From.Name != "users" {
		t.Errorf("expected FROM users, got %v", sel.From)
	}
}

func TestParseSelectFull(t *testing.T) {
	input := "SELECT DISTINCT id, name AS n FROM users u WHERE age > 21 AND status = 'active' ORDER BY name DESC, id LIMIT 10 OFFSET 5"
	stmt, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel := stmt.(*SelectStatement)

	if !sel.Distinct {
		t.Error("expected DISTINCT")
	}
	if got := sel.ColumnNames(); len(got) != 2 || got[0] != "id" || got[1] != "name" {
		t.Errorf("columns = %v", got)
	}
	if sel.Columns[1].Alias != "n" {
		t.Errorf("alias = %q, want n", sel.Columns[1].Alias)
	}
	if sel.From.Alias != "u" {
		t.Errorf("table alias = %q, want u", sel.From.Alias)
	}

	and, ok := sel.Where.(*BinaryExpr)
	if !ok || and.Operator != "AND" {
		t.Fatalf("where = %v, want AND at top", sel.Where)
	}
	left := and.Left.(*BinaryExpr)
	if left.Operator != ">" || left.Left.(*ColumnRef).Column != "age" {
		t.Errorf("left branch = %v", left)
	}
	if lit := left.Right.(*Literal); lit.Value != int64(21) {
		t.Errorf("age bound = %v", lit.Value)
	}

	if len(sel.OrderBy) != 2 {
		t.Fatalf("order by items = %d", len(sel.OrderBy))
	}
	if sel.OrderBy[0].Column != "name" || !sel.OrderBy[0].Desc {
		t.Errorf("first order = %+v", sel.OrderBy[0])
	}
	if sel.OrderBy[1].Column != "id" || sel.OrderBy[1].Desc {
		t.Errorf("second order = %+v", sel.OrderBy[1])
	}
	if sel.Limit == nil || *sel.Limit != 10 {
		t.Errorf("limit = %v", sel.Limit)
	}
	if sel.Offset == nil || *sel.Offset != 5 {
		t.Errorf("offset = %v", sel.Offset)
	}
}

func TestParseCountStar(t *testing.T) {
	stmt, err := Parse("SELECT COUNT(*) FROM users WHERE status = 'active'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel := stmt.(*SelectStatement)
	if !sel.CountOnly() {
		t.Error("expected COUNT(*) projection")
	}
	if sel.Where == nil {
		t.Error("expected WHERE clause")
	}
}

func TestParsePositionalParams(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users WHERE age > ? AND name LIKE ? AND id IN (?, ?, 5)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := ParamCount(stmt); n != 4 {
		t.Errorf("param count = %d, want 4", n)
	}

	sel := stmt.(*SelectStatement)
	top := sel.Where.(*BinaryExpr)
	if top.Operator != "AND" {
		t.Fatalf("top operator = %q", top.Operator)
	}
	in, ok := top.Right.(*InExpr)
	if !ok {
		t.Fatalf("right branch = %T, want InExpr", top.Right)
	}
	if p, ok := in.Values[0].(*Param); !ok || p.Index != 3 {
		t.Errorf("first IN value = %v, want param 3", in.Values[0])
	}
	if p, ok := in.Values[1].(*Param); !ok || p.Index != 4 {
		t.Errorf("second IN value = %v, want param 4", in.Values[1])
	}
	if lit, ok := in.Values[2].(*Literal); !ok || lit.Value != int64(5) {
		t.Errorf("third IN value = %v, want literal 5", in.Values[2])
	}
}

func TestParseBetweenAndNull(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE a BETWEEN 1 AND 10 OR b IS NOT NULL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel := stmt.(*SelectStatement)
	or := sel.Where.(*BinaryExpr)
	if or.Operator != "OR" {
		t.Fatalf("top operator = %q", or.Operator)
	}
	between := or.Left.(*BetweenExpr)
	if between.Low.(*Literal).Value != int64(1) || between.High.(*Literal).Value != int64(10) {
		t.Errorf("between bounds wrong: %v", between)
	}
	isNull := or.Right.(*IsNullExpr)
	if !isNull.Not {
		t.Error("expected IS NOT NULL")
	}
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse("INSERT INTO users (name, age, active) VALUES (?, 30, TRUE)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ins := stmt.(*InsertStatement)
	if ins.Table.Name != "users" {
		t.Errorf("table = %q", ins.Table.Name)
	}
	if len(ins.Columns) != 3 || ins.Columns[0] != "name" {
		t.Errorf("columns = %v", ins.Columns)
	}
	if _, ok := ins.Values[0].(*Param); !ok {
		t.Errorf("first value = %T, want Param", ins.Values[0])
	}
	if lit := ins.Values[2].(*Literal); lit.Value != true {
		t.Errorf("active = %v, want true", lit.Value)
	}
}

func TestParseUpdate(t *testing.T) {
	stmt, err := Parse("UPDATE users SET name = ?, age = 31 WHERE id = 7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	upd := stmt.(*UpdateStatement)
	if len(upd.Set) != 2 {
		t.Fatalf("assignments = %d", len(upd.Set))
	}
	if upd.Set[0].Column != "name" {
		t.Errorf("first assignment column = %q", upd.Set[0].Column)
	}
	if upd.Set[1].Value.(*Literal).Value != int64(31) {
		t.Errorf("age value = %v", upd.Set[1].Value)
	}
	if upd.Where == nil {
		t.Error("expected WHERE")
	}
}

func TestParseDelete(t *testing.T) {
	stmt, err := Parse("DELETE FROM users WHERE status = 'stale';")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	del := stmt.(*DeleteStatement)
	if del.Table.Name != "users" {
		t.Errorf("table = %q", del.Table.Name)
	}
	if del.Where == nil {
		t.Error("expected WHERE")
	}

	// A bare DELETE parses; refusing it is the executor's job.
	stmt, err = Parse("DELETE FROM users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stmt.(*DeleteStatement).Where != nil {
		t.Error("expected nil WHERE")
	}
}

func TestParseNegativeNumbers(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE x > -5 AND y = -2.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel := stmt.(*SelectStatement)
	and := sel.Where.(*BinaryExpr)
	if v := and.Left.(*BinaryExpr).Right.(*Literal).Value; v != int64(-5) {
		t.Errorf("x bound = %v, want -5", v)
	}
	if v := and.Right.(*BinaryExpr).Right.(*Literal).Value; v != float64(-2.5) {
		t.Errorf("y bound = %v, want -2.5", v)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"DROP TABLE users",
		"SELECT FROM users",
		"SELECT *, id FROM users",
		"SELECT * FROM",
		"SELECT * FROM users WHERE",
		"SELECT * FROM users LIMIT abc",
		"INSERT INTO users (a, b) VALUES (1)",
		"UPDATE users WHERE id = 1",
		"SELECT * FROM users WHERE name = 'unterminated",
		"SELECT * FROM users; SELECT * FROM others",
	}
	for _, input := range tests {
		if _, err := Parse(input); err == nil {
			t.Errorf("input %q: expected parse error", input)
		}
	}
}

func TestStatementRoundTripString(t *testing.T) {
	tests := []string{
		"SELECT DISTINCT id, name FROM users WHERE age > 21 ORDER BY id ASC LIMIT 3",
		"INSERT INTO users (name) VALUES ('ada')",
		"UPDATE users SET age = 2 WHERE id = 1",
		"DELETE FROM users WHERE (a = 1 OR b = 2)",
	}
	for _, input := range tests {
		stmt, err := Parse(input)
		if err != nil {
			t.Fatalf("input %q: %v", input, err)
		}
		reparsed, err := Parse(stmt.String())
		if err != nil {
			t.Errorf("re-parse of %q failed: %v", stmt.String(), err)
			continue
		}
		if reparsed.String() != stmt.String() {
			t.Errorf("round trip mismatch: %q vs %q", stmt.String(), reparsed.String())
		}
	}
}

func TestInequalityRejectedAtParse(t *testing.T) {
	for _, input := range []string{
		"SELECT * FROM users WHERE name <> 'ada'",
		"SELECT * FROM users WHERE name != 'ada'",
	} {
		_, err := Parse(input)
		if err == nil {
			t.Fatalf("%q: expected parse error", input)
		}
		pe, ok := err.(*ParseError)
		if !ok {
			t.Fatalf("%q: error type %T", input, err)
		}
		// The failure names the operator and points at its token.
		if !strings.Contains(pe.Message, "not supported") || pe.Token.Type != TokenNe {
			t.Fatalf("%q: err = %v", input, err)
		}
	}
}

func TestIdentifiersAreASCII(t *testing.T) {
	if _, err := Parse("SELECT * FROM café"); err == nil {
		t.Fatal("expected error for non-ASCII identifier")
	}
	sel, err := Parse("SELECT c_2 FROM t_1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := sel.(*SelectStatement).ColumnNames(); len(got) != 1 || got[0] != "c_2" {
		t.Fatalf("columns = %v", got)
	}
}
