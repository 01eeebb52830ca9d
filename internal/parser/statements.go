package parser

import (
	"github.com/funvibe/foolvm/internal/parsetree"
	"github.com/funvibe/foolvm/internal/token"
)

// ParseProgram parses the whole token stream. A tree is always returned;
// malformed statements are dropped and reported through Errors.
func (p *Parser) ParseProgram() *parsetree.Node {
	program := parsetree.New(parsetree.Program, p.curToken)

	for !p.curTokenIs(token.EOF) {
		var item *parsetree.Node
		if p.curTokenIs(token.FUN) {
			item = p.parseFunctionDeclaration()
		} else {
			item = p.parseStatement()
		}
		if item != nil {
			program.Children = append(program.Children, item)
		} else {
			p.synchronize()
		}
		p.nextToken()
	}

	return program
}

func (p *Parser) parseStatement() *parsetree.Node {
	switch p.curToken.Type {
	case token.VAR:
		return p.parseVarDeclaration()
	case token.LBRACE:
		return p.parseBlock()
	case token.IF:
		return p.parseIfStatement()
	case token.WHILE:
		return p.parseWhileStatement()
	case token.RETURN:
		return p.parseReturnStatement()
	case token.FUN:
		p.errorf(p.curToken, "functions may only be declared at top level")
		p.skipNestedFunction()
		return nil
	case token.IDENT:
		if p.peekTokenIs(token.ASSIGN) {
			return p.parseAssignment()
		}
	}
	return p.parseExpressionStatement()
}

// fun name(params) [: type] { ... }
func (p *Parser) parseFunctionDeclaration() *parsetree.Node {
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	fn := parsetree.New(parsetree.FunDecl, p.curToken)

	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	params := p.parseParameters()
	if params == nil {
		return nil
	}
	fn.Children = append(fn.Children, params)

	if p.peekTokenIs(token.COLON) {
		p.nextToken()
		p.nextToken()
		ret := p.parseType()
		if ret == nil {
			return nil
		}
		fn.Children = append(fn.Children, ret)
	}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	p.inFunction = true
	body := p.parseBlock()
	p.inFunction = false
	if body == nil {
		return nil
	}
	fn.Children = append(fn.Children, body)
	return fn
}

// parseParameters starts on '(' and ends on ')'.
func (p *Parser) parseParameters() *parsetree.Node {
	params := parsetree.New(parsetree.Params, p.curToken)

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return params
	}

	for {
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		param := parsetree.New(parsetree.Param, p.curToken)
		if p.peekTokenIs(token.COLON) {
			p.nextToken()
			p.nextToken()
			typ := p.parseType()
			if typ == nil {
				return nil
			}
			param.Children = append(param.Children, typ)
		}
		params.Children = append(params.Children, param)

		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return params
}

func (p *Parser) parseType() *parsetree.Node {
	switch p.curToken.Type {
	case token.TYPE_INT, token.TYPE_BOOL, token.TYPE_VOID:
		return parsetree.New(parsetree.TypeRef, p.curToken)
	}
	p.errorf(p.curToken, "expected type, got %s", describeToken(p.curToken))
	return nil
}

// var name [: type] = expr ;
func (p *Parser) parseVarDeclaration() *parsetree.Node {
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	decl := parsetree.New(parsetree.VarDecl, p.curToken)

	if p.peekTokenIs(token.COLON) {
		p.nextToken()
		p.nextToken()
		typ := p.parseType()
		if typ == nil {
			return nil
		}
		decl.Children = append(decl.Children, typ)
	}

	if !p.expectPeek(token.ASSIGN) {
		return nil
	}
	p.nextToken()
	value := p.parseExpression(LOWEST)
	if value == nil {
		return nil
	}
	decl.Children = append(decl.Children, value)

	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	return decl
}

// parseBlock starts on '{' and ends on the matching '}'.
func (p *Parser) parseBlock() *parsetree.Node {
	block := parsetree.New(parsetree.Block, p.curToken)
	p.nextToken()

	for !p.curTokenIs(token.RBRACE) {
		if p.curTokenIs(token.EOF) {
			p.errorf(p.curToken, "expected '}' to close block opened at %s", block.Token.Pos())
			return nil
		}
		stmt := p.parseStatement()
		if stmt != nil {
			block.Children = append(block.Children, stmt)
		} else {
			p.synchronize()
		}
		p.nextToken()
	}

	return block
}

// if (cond) stmt [else stmt]
func (p *Parser) parseIfStatement() *parsetree.Node {
	node := parsetree.New(parsetree.If, p.curToken)

	cond := p.parseCondition()
	if cond == nil {
		return nil
	}
	p.nextToken()
	then := p.parseStatement()
	if then == nil {
		return nil
	}
	node.Children = append(node.Children, cond, then)

	if p.peekTokenIs(token.ELSE) {
		p.nextToken()
		p.nextToken()
		alt := p.parseStatement()
		if alt == nil {
			return nil
		}
		node.Children = append(node.Children, alt)
	}
	return node
}

// while (cond) stmt
func (p *Parser) parseWhileStatement() *parsetree.Node {
	node := parsetree.New(parsetree.While, p.curToken)

	cond := p.parseCondition()
	if cond == nil {
		return nil
	}
	p.nextToken()
	body := p.parseStatement()
	if body == nil {
		return nil
	}
	node.Children = append(node.Children, cond, body)
	return node
}

// parseCondition parses "( expr )" following the current keyword.
func (p *Parser) parseCondition() *parsetree.Node {
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	p.nextToken()
	cond := p.parseExpression(LOWEST)
	if cond == nil {
		return nil
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return cond
}

// return [expr] ;
func (p *Parser) parseReturnStatement() *parsetree.Node {
	node := parsetree.New(parsetree.Return, p.curToken)

	if !p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
		value := p.parseExpression(LOWEST)
		if value == nil {
			return nil
		}
		node.Children = append(node.Children, value)
	}
	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}

	if !p.inFunction {
		p.errorf(node.Token, "return outside function")
		return nil
	}
	return node
}

// name = expr ;
func (p *Parser) parseAssignment() *parsetree.Node {
	node := parsetree.New(parsetree.Assign, p.curToken)
	p.nextToken() // '='
	p.nextToken()

	value := p.parseExpression(LOWEST)
	if value == nil {
		return nil
	}
	node.Children = append(node.Children, value)

	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	return node
}

func (p *Parser) parseExpressionStatement() *parsetree.Node {
	node := parsetree.New(parsetree.ExprStmt, p.curToken)

	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}
	node.Children = append(node.Children, expr)

	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}
	return node
}

// skipNestedFunction consumes a misplaced function declaration up to and
// including its body so the enclosing block stays balanced.
func (p *Parser) skipNestedFunction() {
	for !p.curTokenIs(token.LBRACE) && !p.curTokenIs(token.EOF) {
		p.nextToken()
	}
	depth := 0
	for !p.curTokenIs(token.EOF) {
		switch p.curToken.Type {
		case token.LBRACE:
			depth++
		case token.RBRACE:
			depth--
		}
		if depth == 0 {
			return
		}
		p.nextToken()
	}
}
