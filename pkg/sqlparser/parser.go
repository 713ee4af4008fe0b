package sqlparser

import (
	"fmt"
	"strconv"
)

// ParseError is a parsing failure with the offending token and its position.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %q)", e.Position, e.Message, e.Token.Literal)
}

// Parser parses one SQL statement into its AST.
type Parser struct {
	lexer      *Lexer
	curToken   Token
	peekToken  Token
	paramCount int
}

// NewParser creates a Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the input and returns the statement.
func Parse(input string) (Statement, error) {
	return NewParser(input).ParseStatement()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// expect consumes the current token if it matches, otherwise fails.
func (p *Parser) expect(t TokenType) error {
	if !p.curTokenIs(t) {
		return p.errorf("expected %s", t.String())
	}
	p.nextToken()
	return nil
}

// ParseStatement parses a single statement and requires the input to end
// after it, save for a trailing semicolon.
func (p *Parser) ParseStatement() (Statement, error) {
	var stmt Statement
	var err error

	switch p.curToken.Type {
	case TokenSelect:
		stmt, err = p.parseSelect()
	case TokenInsert:
		stmt, err = p.parseInsert()
	case TokenUpdate:
		stmt, err = p.parseUpdate()
	case TokenDelete:
		stmt, err = p.parseDelete()
	default:
		return nil, p.errorf("expected SELECT, INSERT, UPDATE, or DELETE")
	}
	if err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf("unexpected trailing input")
	}
	return stmt, nil
}

func (p *Parser) parseSelect() (*SelectStatement, error) {
	stmt := &SelectStatement{}
	p.nextToken() // SELECT

	if p.curTokenIs(TokenDistinct) {
		stmt.Distinct = true
		p.nextToken()
	}

	columns, err := p.parseSelectColumns()
	if err != nil {
		return nil, err
	}
	stmt.Columns = columns

	if p.curTokenIs(TokenFrom) {
		p.nextToken()
		ref, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		stmt.From = ref
	}

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		where, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.curTokenIs(TokenOrder) {
		p.nextToken()
		if err := p.expect(TokenBy); err != nil {
			return nil, err
		}
		orderBy, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = orderBy
	}

	if p.curTokenIs(TokenLimit) {
		p.nextToken()
		n, err := p.parseClauseNumber("LIMIT")
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n
	}

	if p.curTokenIs(TokenOffset) {
		p.nextToken()
		n, err := p.parseClauseNumber("OFFSET")
		if err != nil {
			return nil, err
		}
		stmt.Offset = &n
	}

	return stmt, nil
}

func (p *Parser) parseClauseNumber(clause string) (int64, error) {
	if !p.curTokenIs(TokenNumber) {
		return 0, p.errorf("expected number after %s", clause)
	}
	n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil || n < 0 {
		return 0, p.errorf("invalid %s value", clause)
	}
	p.nextToken()
	return n, nil
}

func (p *Parser) parseSelectColumns() ([]SelectColumn, error) {
	var columns []SelectColumn
	for {
		col, err := p.parseSelectColumn()
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	// * and COUNT(*) stand alone.
	if len(columns) > 1 {
		for _, c := range columns {
			if c.Star || c.Count {
				return nil, p.errorf("%s cannot be combined with other columns", c.String())
			}
		}
	}
	return columns, nil
}

func (p *Parser) parseSelectColumn() (SelectColumn, error) {
	col := SelectColumn{}

	switch p.curToken.Type {
	case TokenStar:
		col.Star = true
		p.nextToken()
		return col, nil
	case TokenCount:
		p.nextToken()
		if err := p.expect(TokenLParen); err != nil {
			return col, err
		}
		if err := p.expect(TokenStar); err != nil {
			return col, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return col, err
		}
		col.Count = true
		return col, nil
	case TokenIdent:
		col.Name = p.curToken.Literal
		p.nextToken()
	default:
		return col, p.errorf("expected column name")
	}

	if p.curTokenIs(TokenAs) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			return col, p.errorf("expected identifier after AS")
		}
		col.Alias = p.curToken.Literal
		p.nextToken()
	}
	return col, nil
}

func (p *Parser) parseTableRef() (*TableRef, error) {
	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected table name")
	}
	ref := &TableRef{Name: p.curToken.Literal}
	p.nextToken()

	if p.curTokenIs(TokenAs) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected identifier after AS")
		}
		ref.Alias = p.curToken.Literal
		p.nextToken()
	} else if p.curTokenIs(TokenIdent) {
		ref.Alias = p.curToken.Literal
		p.nextToken()
	}
	return ref, nil
}

func (p *Parser) parseOrderByList() ([]OrderByClause, error) {
	var clauses []OrderByClause
	for {
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected column name in ORDER BY")
		}
		clause := OrderByClause{Column: p.curToken.Literal}
		p.nextToken()

		if p.curTokenIs(TokenAsc) {
			p.nextToken()
		} else if p.curTokenIs(TokenDesc) {
			clause.Desc = true
			p.nextToken()
		}
		clauses = append(clauses, clause)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return clauses, nil
}

func (p *Parser) parseInsert() (*InsertStatement, error) {
	stmt := &InsertStatement{}
	p.nextToken() // INSERT
	if err := p.expect(TokenInto); err != nil {
		return nil, err
	}

	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.Table = ref

	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	for {
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected column name")
		}
		stmt.Columns = append(stmt.Columns, p.curToken.Literal)
		p.nextToken()
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if err := p.expect(TokenValues); err != nil {
		return nil, err
	}
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	for {
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		stmt.Values = append(stmt.Values, val)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if len(stmt.Columns) != len(stmt.Values) {
		return nil, p.errorf("%d columns but %d values", len(stmt.Columns), len(stmt.Values))
	}
	return stmt, nil
}

func (p *Parser) parseUpdate() (*UpdateStatement, error) {
	stmt := &UpdateStatement{}
	p.nextToken() // UPDATE

	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.Table = ref

	if err := p.expect(TokenSet); err != nil {
		return nil, err
	}
	for {
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected column name in SET")
		}
		asg := Assignment{Column: p.curToken.Literal}
		p.nextToken()
		if err := p.expect(TokenEq); err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		asg.Value = val
		stmt.Set = append(stmt.Set, asg)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		where, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (*DeleteStatement, error) {
	stmt := &DeleteStatement{}
	p.nextToken() // DELETE
	if err := p.expect(TokenFrom); err != nil {
		return nil, err
	}

	ref, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.Table = ref

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		where, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

// Operator precedence levels.
const (
	precLowest  = 0
	precOr      = 1
	precAnd     = 2
	precCompare = 3
)

func (p *Parser) precedence() int {
	switch p.curToken.Type {
	case TokenOr:
		return precOr
	case TokenAnd:
		return precAnd
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe,
		TokenLike, TokenIn, TokenBetween, TokenIs, TokenNot:
		return precCompare
	default:
		return precLowest
	}
}

func (p *Parser) parseExpression(precedence int) (Expression, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for !p.curTokenIs(TokenEOF) && precedence < p.precedence() {
		left, err = p.parseInfix(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) parsePrefix() (Expression, error) {
	switch p.curToken.Type {
	case TokenIdent:
		return p.parseColumnRef()
	case TokenNumber, TokenString, TokenNull, TokenTrue, TokenFalse, TokenParam, TokenMinus:
		return p.parseValue()
	case TokenLParen:
		p.nextToken()
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &ParenExpr{Expr: expr}, nil
	default:
		return nil, p.errorf("unexpected token in expression")
	}
}

func (p *Parser) parseColumnRef() (Expression, error) {
	name := p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenDot) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected column name after dot")
		}
		ref := &ColumnRef{Table: name, Column: p.curToken.Literal}
		p.nextToken()
		return ref, nil
	}
	return &ColumnRef{Column: name}, nil
}

// parseValue parses a literal, a placeholder, or a negated number.
func (p *Parser) parseValue() (Expression, error) {
	switch p.curToken.Type {
	case TokenNumber:
		return p.parseNumber(false)
	case TokenMinus:
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			return nil, p.errorf("expected number after -")
		}
		return p.parseNumber(true)
	case TokenString:
		val := p.curToken.Literal
		p.nextToken()
		return &Literal{Value: val}, nil
	case TokenNull:
		p.nextToken()
		return &Literal{Value: nil}, nil
	case TokenTrue:
		p.nextToken()
		return &Literal{Value: true}, nil
	case TokenFalse:
		p.nextToken()
		return &Literal{Value: false}, nil
	case TokenParam:
		p.paramCount++
		param := &Param{Index: p.paramCount}
		p.nextToken()
		return param, nil
	default:
		return nil, p.errorf("expected value")
	}
}

func (p *Parser) parseNumber(negative bool) (Expression, error) {
	literal := p.curToken.Literal
	if negative {
		literal = "-" + literal
	}

	if i, err := strconv.ParseInt(literal, 10, 64); err == nil {
		p.nextToken()
		return &Literal{Value: i}, nil
	}
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return nil, p.errorf("invalid number")
	}
	p.nextToken()
	return &Literal{Value: f}, nil
}

func (p *Parser) parseInfix(left Expression) (Expression, error) {
	switch p.curToken.Type {
	case TokenNe:
		// Inequality is outside the operator set; failing here pins the
		// error to the token instead of the whole WHERE tree.
		return nil, p.errorf("operator %s is not supported", p.curToken.Literal)
	case TokenAnd, TokenOr, TokenEq, TokenLt, TokenGt, TokenLe, TokenGe:
		op := p.curToken.Type.String()
		precedence := p.precedence()
		p.nextToken()
		right, err := p.parseExpression(precedence)
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Left: left, Operator: op, Right: right}, nil
	case TokenLike:
		return p.parseLike(left, false)
	case TokenIn:
		return p.parseIn(left, false)
	case TokenBetween:
		return p.parseBetween(left)
	case TokenIs:
		return p.parseIsNull(left)
	case TokenNot:
		p.nextToken()
		switch p.curToken.Type {
		case TokenLike:
			return p.parseLike(left, true)
		case TokenIn:
			return p.parseIn(left, true)
		default:
			return nil, p.errorf("expected LIKE or IN after NOT")
		}
	default:
		return left, nil
	}
}

func (p *Parser) parseLike(left Expression, not bool) (Expression, error) {
	p.nextToken() // LIKE
	pattern, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &LikeExpr{Expr: left, Pattern: pattern, Not: not}, nil
}

func (p *Parser) parseIn(left Expression, not bool) (Expression, error) {
	p.nextToken() // IN
	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var values []Expression
	for {
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, val)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &InExpr{Expr: left, Values: values, Not: not}, nil
}

func (p *Parser) parseBetween(left Expression) (Expression, error) {
	p.nextToken() // BETWEEN
	low, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenAnd); err != nil {
		return nil, err
	}
	high, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &BetweenExpr{Expr: left, Low: low, High: high}, nil
}

func (p *Parser) parseIsNull(left Expression) (Expression, error) {
	p.nextToken() // IS
	not := false
	if p.curTokenIs(TokenNot) {
		not = true
		p.nextToken()
	}
	if err := p.expect(TokenNull); err != nil {
		return nil, err
	}
	return &IsNullExpr{Expr: left, Not: not}, nil
}
