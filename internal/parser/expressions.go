package parser

import (
	"github.com/funvibe/foolvm/internal/parsetree"
	"github.com/funvibe/foolvm/internal/token"
)

func (p *Parser) parseExpression(precedence int) *parsetree.Node {
	p.depth++
	defer func() { p.depth-- }()

	if p.depth > MaxRecursionDepth {
		p.errorf(p.curToken, "expression too complex: recursion depth limit exceeded")
		return nil
	}

	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken)
		return nil
	}
	leftExp := prefix()
	if leftExp == nil {
		return nil
	}

	for !p.peekTokenIs(token.SEMICOLON) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
		if leftExp == nil {
			return nil
		}
	}

	return leftExp
}

func (p *Parser) noPrefixParseFnError(tok token.Token) {
	if tok.Type == token.EOF {
		p.errorf(tok, "unexpected end of input, expected expression")
		return
	}
	p.errorf(tok, "unexpected %s, expected expression", describeToken(tok))
}

func (p *Parser) parseIdentifier() *parsetree.Node {
	return parsetree.New(parsetree.Ident, p.curToken)
}

func (p *Parser) parseIntegerLiteral() *parsetree.Node {
	return parsetree.New(parsetree.IntLit, p.curToken)
}

func (p *Parser) parseBoolean() *parsetree.Node {
	return parsetree.New(parsetree.BoolLit, p.curToken)
}

func (p *Parser) parsePrefixExpression() *parsetree.Node {
	node := parsetree.New(parsetree.Unary, p.curToken)
	p.nextToken()
	operand := p.parseExpression(PREFIX)
	if operand == nil {
		return nil
	}
	node.Children = append(node.Children, operand)
	return node
}

func (p *Parser) parseInfixExpression(left *parsetree.Node) *parsetree.Node {
	node := parsetree.New(parsetree.Binary, p.curToken)
	precedence := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}
	node.Children = append(node.Children, left, right)
	return node
}

func (p *Parser) parseGroupedExpression() *parsetree.Node {
	node := parsetree.New(parsetree.Paren, p.curToken)
	p.nextToken()
	exp := p.parseExpression(LOWEST)
	if exp == nil {
		return nil
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	node.Children = append(node.Children, exp)
	return node
}

// parseCallExpression is entered with curToken on '('. Only a plain name
// may be called.
func (p *Parser) parseCallExpression(callee *parsetree.Node) *parsetree.Node {
	if callee.Rule != parsetree.Ident {
		p.errorf(p.curToken, "only named functions can be called")
		return nil
	}
	call := parsetree.New(parsetree.Call, callee.Token)

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return call
	}

	p.nextToken()
	for {
		arg := p.parseExpression(LOWEST)
		if arg == nil {
			return nil
		}
		call.Children = append(call.Children, arg)
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
		p.nextToken()
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return call
}
