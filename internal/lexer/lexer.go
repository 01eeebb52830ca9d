package lexer

import (
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/funvibe/foolvm/internal/diagnostics"
	"github.com/funvibe/foolvm/internal/token"
)

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int  // current line number
	column       int  // current column number
}

func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = len(l.input)
		l.readPosition = len(l.input) + 1
		l.column++
		return
	}

	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.position >= len(l.input)
}

// NextToken scans the next token. Malformed input yields an ILLEGAL token
// whose Literal holds the error message.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespaceAndComments()

	line, col := l.line, l.column
	if l.atEOF() {
		return token.Token{Type: token.EOF, Line: line, Column: col}
	}

	two := func(tt token.TokenType) token.Token {
		lexeme := string(l.ch) + string(l.peekChar())
		l.readChar()
		l.readChar()
		return token.Token{Type: tt, Lexeme: lexeme, Literal: lexeme, Line: line, Column: col}
	}
	one := func(tt token.TokenType) token.Token {
		tok := newToken(tt, l.ch, line, col)
		l.readChar()
		return tok
	}

	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			return two(token.EQ)
		}
		return one(token.ASSIGN)
	case '!':
		if l.peekChar() == '=' {
			return two(token.NOT_EQ)
		}
		return one(token.BANG)
	case '<':
		if l.peekChar() == '=' {
			return two(token.LTE)
		}
		return one(token.LT)
	case '>':
		if l.peekChar() == '=' {
			return two(token.GTE)
		}
		return one(token.GT)
	case '&':
		if l.peekChar() == '&' {
			return two(token.AND)
		}
		return l.illegal(line, col, "unexpected character '&' (did you mean '&&'?)")
	case '|':
		if l.peekChar() == '|' {
			return two(token.OR)
		}
		return l.illegal(line, col, "unexpected character '|' (did you mean '||'?)")
	case '+':
		return one(token.PLUS)
	case '-':
		return one(token.MINUS)
	case '*':
		return one(token.ASTERISK)
	case '/':
		return one(token.SLASH)
	case '%':
		return one(token.PERCENT)
	case ',':
		return one(token.COMMA)
	case ';':
		return one(token.SEMICOLON)
	case ':':
		return one(token.COLON)
	case '(':
		return one(token.LPAREN)
	case ')':
		return one(token.RPAREN)
	case '{':
		return one(token.LBRACE)
	case '}':
		return one(token.RBRACE)
	}

	if isLetter(l.ch) {
		ident := l.readIdentifier()
		return token.Token{Type: token.LookupIdent(ident), Lexeme: ident, Literal: ident, Line: line, Column: col}
	}
	if isDigit(l.ch) {
		return l.readNumber(line, col)
	}

	return l.illegal(line, col, fmt.Sprintf("unexpected character %q", l.ch))
}

// Tokenize scans the whole input. Lexical errors are returned as
// diagnostics and the offending characters are skipped.
func (l *Lexer) Tokenize() ([]token.Token, []*diagnostics.DiagnosticError) {
	var tokens []token.Token
	var errs []*diagnostics.DiagnosticError
	for {
		tok := l.NextToken()
		if tok.Type == token.ILLEGAL {
			msg, _ := tok.Literal.(string)
			errs = append(errs, diagnostics.NewError(diagnostics.ErrS001, tok.Pos(), "%s", msg))
			continue
		}
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens, errs
		}
	}
}

func (l *Lexer) illegal(line, col int, msg string) token.Token {
	lexeme := string(l.ch)
	l.readChar()
	return token.Token{Type: token.ILLEGAL, Lexeme: lexeme, Literal: msg, Line: line, Column: col}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEOF() {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.position
	for !l.atEOF() && (isLetter(l.ch) || isDigit(l.ch)) {
		l.readChar()
	}
	return l.input[start:l.position]
}

func (l *Lexer) readNumber(line, col int) token.Token {
	start := l.position
	for !l.atEOF() && isDigit(l.ch) {
		l.readChar()
	}
	lexeme := l.input[start:l.position]
	if !l.atEOF() && isLetter(l.ch) {
		for !l.atEOF() && (isLetter(l.ch) || isDigit(l.ch)) {
			l.readChar()
		}
		bad := l.input[start:l.position]
		return token.Token{Type: token.ILLEGAL, Lexeme: bad, Literal: fmt.Sprintf("malformed number %q", bad), Line: line, Column: col}
	}
	value, err := strconv.ParseInt(lexeme, 10, 64)
	if err != nil {
		return token.Token{Type: token.ILLEGAL, Lexeme: lexeme, Literal: fmt.Sprintf("integer literal %s out of range", lexeme), Line: line, Column: col}
	}
	return token.Token{Type: token.INT, Lexeme: lexeme, Literal: value, Line: line, Column: col}
}

func newToken(tokenType token.TokenType, ch rune, line, col int) token.Token {
	return token.Token{Type: tokenType, Lexeme: string(ch), Literal: string(ch), Line: line, Column: col}
}

func isLetter(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
