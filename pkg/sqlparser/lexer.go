// Package sqlparser parses the SQL dialect accepted by veltab virtual
// databases: single-table SELECT, INSERT, UPDATE, and DELETE statements with
// positional ? parameters.
package sqlparser

import (
	"fmt"
	"strings"
)

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenIdent
	TokenNumber
	TokenString
	TokenParam // positional ? placeholder

	// Keywords
	TokenSelect
	TokenInsert
	TokenUpdate
	TokenDelete
	TokenInto
	TokenValues
	TokenSet
	TokenFrom
	TokenWhere
	TokenOrder
	TokenBy
	TokenLimit
	TokenOffset
	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenBetween
	TokenLike
	TokenIs
	TokenNull
	TokenAs
	TokenAsc
	TokenDesc
	TokenDistinct
	TokenCount
	TokenTrue
	TokenFalse

	// Operators and punctuation
	TokenEq        // =
	TokenNe        // <> or !=
	TokenLt        // <
	TokenGt        // >
	TokenLe        // <=
	TokenGe        // >=
	TokenMinus     // -
	TokenStar      // *
	TokenComma     // ,
	TokenLParen    // (
	TokenRParen    // )
	TokenDot       // .
	TokenSemicolon // ;
)

// Token is a single lexical token with its position in the input.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type.String(), t.Literal, t.Pos)
}

// String returns the display name of a TokenType.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenError:     "ERROR",
	TokenIdent:     "IDENT",
	TokenNumber:    "NUMBER",
	TokenString:    "STRING",
	TokenParam:     "?",
	TokenSelect:    "SELECT",
	TokenInsert:    "INSERT",
	TokenUpdate:    "UPDATE",
	TokenDelete:    "DELETE",
	TokenInto:      "INTO",
	TokenValues:    "VALUES",
	TokenSet:       "SET",
	TokenFrom:      "FROM",
	TokenWhere:     "WHERE",
	TokenOrder:     "ORDER",
	TokenBy:        "BY",
	TokenLimit:     "LIMIT",
	TokenOffset:    "OFFSET",
	TokenAnd:       "AND",
	TokenOr:        "OR",
	TokenNot:       "NOT",
	TokenIn:        "IN",
	TokenBetween:   "BETWEEN",
	TokenLike:      "LIKE",
	TokenIs:        "IS",
	TokenNull:      "NULL",
	TokenAs:        "AS",
	TokenAsc:       "ASC",
	TokenDesc:      "DESC",
	TokenDistinct:  "DISTINCT",
	TokenCount:     "COUNT",
	TokenTrue:      "TRUE",
	TokenFalse:     "FALSE",
	TokenEq:        "=",
	TokenNe:        "<>",
	TokenLt:        "<",
	TokenGt:        ">",
	TokenLe:        "<=",
	TokenGe:        ">=",
	TokenMinus:     "-",
	TokenStar:      "*",
	TokenComma:     ",",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenDot:       ".",
	TokenSemicolon: ";",
}

var keywords = map[string]TokenType{
	"SELECT":   TokenSelect,
	"INSERT":   TokenInsert,
	"UPDATE":   TokenUpdate,
	"DELETE":   TokenDelete,
	"INTO":     TokenInto,
	"VALUES":   TokenValues,
	"SET":      TokenSet,
	"FROM":     TokenFrom,
	"WHERE":    TokenWhere,
	"ORDER":    TokenOrder,
	"BY":       TokenBy,
	"LIMIT":    TokenLimit,
	"OFFSET":   TokenOffset,
	"AND":      TokenAnd,
	"OR":       TokenOr,
	"NOT":      TokenNot,
	"IN":       TokenIn,
	"BETWEEN":  TokenBetween,
	"LIKE":     TokenLike,
	"IS":       TokenIs,
	"NULL":     TokenNull,
	"AS":       TokenAs,
	"ASC":      TokenAsc,
	"DESC":     TokenDesc,
	"DISTINCT": TokenDistinct,
	"COUNT":    TokenCount,
	"TRUE":     TokenTrue,
	"FALSE":    TokenFalse,
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

// NewLexer creates a Lexer over the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	startPos := l.pos
	var tok Token

	switch l.ch {
	case '=':
		tok = Token{Type: TokenEq, Literal: "=", Pos: startPos}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenLe, Literal: "<=", Pos: startPos}
		} else if l.peekChar() == '>' {
			l.readChar()
			tok = Token{Type: TokenNe, Literal: "<>", Pos: startPos}
		} else {
			tok = Token{Type: TokenLt, Literal: "<", Pos: startPos}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenGe, Literal: ">=", Pos: startPos}
		} else {
			tok = Token{Type: TokenGt, Literal: ">", Pos: startPos}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{Type: TokenNe, Literal: "!=", Pos: startPos}
		} else {
			tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
		}
	case '?':
		tok = Token{Type: TokenParam, Literal: "?", Pos: startPos}
	case '-':
		tok = Token{Type: TokenMinus, Literal: "-", Pos: startPos}
	case '*':
		tok = Token{Type: TokenStar, Literal: "*", Pos: startPos}
	case ',':
		tok = Token{Type: TokenComma, Literal: ",", Pos: startPos}
	case '(':
		tok = Token{Type: TokenLParen, Literal: "(", Pos: startPos}
	case ')':
		tok = Token{Type: TokenRParen, Literal: ")", Pos: startPos}
	case '.':
		tok = Token{Type: TokenDot, Literal: ".", Pos: startPos}
	case ';':
		tok = Token{Type: TokenSemicolon, Literal: ";", Pos: startPos}
	case '\'':
		tok = l.readString()
	case 0:
		tok = Token{Type: TokenEOF, Literal: "", Pos: startPos}
	default:
		if isLetter(l.ch) || l.ch == '_' {
			return l.readIdentifier()
		} else if isDigit(l.ch) {
			return l.readNumber()
		}
		tok = Token{Type: TokenError, Literal: string(l.ch), Pos: startPos}
	}

	l.readChar()
	return tok
}

func (l *Lexer) readIdentifier() Token {
	startPos := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[startPos:l.pos]

	if tokType, ok := keywords[strings.ToUpper(literal)]; ok {
		return Token{Type: tokType, Literal: strings.ToUpper(literal), Pos: startPos}
	}
	return Token{Type: TokenIdent, Literal: literal, Pos: startPos}
}

func (l *Lexer) readNumber() Token {
	startPos := l.pos
	hasDecimal := false
	for isDigit(l.ch) || (l.ch == '.' && !hasDecimal) {
		if l.ch == '.' {
			hasDecimal = true
		}
		l.readChar()
	}
	return Token{Type: TokenNumber, Literal: l.input[startPos:l.pos], Pos: startPos}
}

// readString reads a single-quoted literal. A doubled quote inside the
// literal is an escaped quote.
func (l *Lexer) readString() Token {
	startPos := l.pos
	l.readChar() // opening quote

	var sb strings.Builder
	for {
		if l.ch == 0 {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: startPos}
		}
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				sb.WriteByte('\'')
				l.readChar()
				l.readChar()
				continue
			}
			break
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}

	return Token{Type: TokenString, Literal: sb.String(), Pos: startPos}
}

// Tokenize returns all tokens from the input, ending with EOF or the first
// error token.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}

// isLetter accepts ASCII letters only. The lexer walks bytes, so a
// multi-byte rune can never begin or continue an identifier; it surfaces as
// an error token instead of being misread one byte at a time.
func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
