package parser

import (
	"fmt"

	"github.com/funvibe/foolvm/internal/diagnostics"
	"github.com/funvibe/foolvm/internal/parsetree"
	"github.com/funvibe/foolvm/internal/token"
)

// MaxRecursionDepth bounds expression nesting so hostile input cannot blow
// the Go stack.
const MaxRecursionDepth = 500

const (
	_ int = iota
	LOWEST
	LOGIC_OR    // ||
	LOGIC_AND   // &&
	EQUALS      // == !=
	LESSGREATER // < <= > >=
	SUM         // + -
	PRODUCT     // * / %
	PREFIX      // -x !x
	CALL        // f(x)
)

var precedences = map[token.TokenType]int{
	token.OR:       LOGIC_OR,
	token.AND:      LOGIC_AND,
	token.EQ:       EQUALS,
	token.NOT_EQ:   EQUALS,
	token.LT:       LESSGREATER,
	token.LTE:      LESSGREATER,
	token.GT:       LESSGREATER,
	token.GTE:      LESSGREATER,
	token.PLUS:     SUM,
	token.MINUS:    SUM,
	token.ASTERISK: PRODUCT,
	token.SLASH:    PRODUCT,
	token.PERCENT:  PRODUCT,
	token.LPAREN:   CALL,
}

type (
	prefixParseFn func() *parsetree.Node
	infixParseFn  func(*parsetree.Node) *parsetree.Node
)

// Parser is a Pratt parser over a token slice. Each parse function starts
// with curToken on the first token of its construct and leaves curToken on
// the construct's last token.
type Parser struct {
	tokens []token.Token
	pos    int

	curToken  token.Token
	peekToken token.Token

	errors diagnostics.List

	depth      int
	inFunction bool

	prefixParseFns map[token.TokenType]prefixParseFn
	infixParseFns  map[token.TokenType]infixParseFn
}

// New creates a parser over tokens. The stream must end with an EOF token.
func New(tokens []token.Token) *Parser {
	p := &Parser{tokens: tokens}

	p.prefixParseFns = map[token.TokenType]prefixParseFn{
		token.IDENT:  p.parseIdentifier,
		token.INT:    p.parseIntegerLiteral,
		token.TRUE:   p.parseBoolean,
		token.FALSE:  p.parseBoolean,
		token.MINUS:  p.parsePrefixExpression,
		token.BANG:   p.parsePrefixExpression,
		token.LPAREN: p.parseGroupedExpression,
	}

	p.infixParseFns = make(map[token.TokenType]infixParseFn)
	for tt := range precedences {
		if tt != token.LPAREN {
			p.infixParseFns[tt] = p.parseInfixExpression
		}
	}
	p.infixParseFns[token.LPAREN] = p.parseCallExpression

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the syntax errors found so far, sorted by position.
func (p *Parser) Errors() []*diagnostics.DiagnosticError {
	return p.errors.Errors()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	if p.pos < len(p.tokens) {
		p.peekToken = p.tokens[p.pos]
		p.pos++
	} else {
		p.peekToken = token.Token{Type: token.EOF, Line: p.curToken.Line, Column: p.curToken.Column}
	}
}

func (p *Parser) curTokenIs(t token.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t token.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t token.TokenType) {
	p.errorf(p.peekToken, "expected %s, got %s", describe(t), describeToken(p.peekToken))
}

func (p *Parser) errorf(tok token.Token, format string, args ...interface{}) {
	p.errors.Addf(diagnostics.ErrS001, tok.Pos(), format, args...)
}

func (p *Parser) peekPrecedence() int {
	if p, ok := precedences[p.peekToken.Type]; ok {
		return p
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if p, ok := precedences[p.curToken.Type]; ok {
		return p
	}
	return LOWEST
}

// synchronize skips the remainder of a malformed statement. It stops on a
// ';', before a '}', or before a token that starts a new statement.
func (p *Parser) synchronize() {
	if p.curTokenIs(token.RBRACE) {
		return
	}
	for !p.curTokenIs(token.EOF) && !p.curTokenIs(token.SEMICOLON) {
		switch p.peekToken.Type {
		case token.RBRACE, token.EOF, token.FUN, token.VAR, token.IF, token.WHILE, token.RETURN:
			return
		}
		p.nextToken()
	}
}

func describe(t token.TokenType) string {
	switch t {
	case token.IDENT:
		return "identifier"
	case token.INT:
		return "integer literal"
	case token.EOF:
		return "end of input"
	}
	if lexeme, ok := keywordLexemes[t]; ok {
		return fmt.Sprintf("'%s'", lexeme)
	}
	return fmt.Sprintf("'%s'", string(t))
}

func describeToken(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of input"
	case token.IDENT:
		return fmt.Sprintf("identifier %q", tok.Lexeme)
	case token.INT:
		return fmt.Sprintf("integer %s", tok.Lexeme)
	}
	return fmt.Sprintf("'%s'", tok.Lexeme)
}

var keywordLexemes = map[token.TokenType]string{
	token.FUN:       "fun",
	token.VAR:       "var",
	token.IF:        "if",
	token.ELSE:      "else",
	token.WHILE:     "while",
	token.RETURN:    "return",
	token.TRUE:      "true",
	token.FALSE:     "false",
	token.TYPE_INT:  "int",
	token.TYPE_BOOL: "bool",
	token.TYPE_VOID: "void",
}
