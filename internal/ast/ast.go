// Package ast defines the abstract syntax tree of the source language.
//
// The node set is closed: every Stmt and Expr implementation lives in this
// package, and consumers switch over the concrete types.
package ast

import (
	"github.com/funvibe/foolvm/internal/token"
	"github.com/funvibe/foolvm/internal/typesystem"
)

// Node is implemented by every AST node.
type Node interface {
	Pos() token.Position
	node()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Program is the root node; it owns the entire tree.
type Program struct {
	File       string
	Functions  []*FunctionDecl
	Statements []Stmt // top-level code, in source order

	// Decls holds the functions and top-level statements interleaved as
	// they appear in the file.
	Decls []Node
}

// TypeName is an explicit type annotation.
type TypeName struct {
	Token token.Token
	Type  typesystem.Type
}

// Param is a function parameter. Type is nil when omitted.
type Param struct {
	Name *Identifier
	Type *TypeName
}

// FunctionDecl is a top-level function. ReturnType is nil when omitted.
type FunctionDecl struct {
	Token      token.Token // the 'fun' keyword
	Name       *Identifier
	Params     []*Param
	ReturnType *TypeName
	Body       *Block
}

// VarDecl declares a variable. Type is nil when omitted.
type VarDecl struct {
	Token token.Token // the 'var' keyword
	Name  *Identifier
	Type  *TypeName
	Value Expr
}

type Block struct {
	Token      token.Token // '{'
	Statements []Stmt
}

type If struct {
	Token token.Token
	Cond  Expr
	Then  Stmt
	Else  Stmt // nil without an else branch
}

type While struct {
	Token token.Token
	Cond  Expr
	Body  Stmt
}

// Return is a return statement. Value is nil for a bare return.
type Return struct {
	Token token.Token
	Value Expr
}

// Assign stores a value into an existing variable or parameter.
type Assign struct {
	Target *Identifier
	Value  Expr
}

// ExprStmt evaluates an expression for its effect.
type ExprStmt struct {
	X Expr
}

type BinaryExpr struct {
	Token token.Token // the operator
	Op    token.TokenType
	Left  Expr
	Right Expr
}

type UnaryExpr struct {
	Token   token.Token
	Op      token.TokenType
	Operand Expr
}

type Call struct {
	Callee *Identifier
	Args   []Expr
}

// Literal is an integer or boolean constant. Booleans hold 0 or 1.
type Literal struct {
	Token token.Token
	Type  typesystem.Type
	Value int64
}

type Identifier struct {
	Token token.Token
	Name  string
}

func (p *Program) Pos() token.Position {
	return token.Position{Line: 1, Column: 1}
}
func (d *FunctionDecl) Pos() token.Position { return d.Token.Pos() }
func (d *VarDecl) Pos() token.Position      { return d.Token.Pos() }
func (b *Block) Pos() token.Position        { return b.Token.Pos() }
func (s *If) Pos() token.Position           { return s.Token.Pos() }
func (s *While) Pos() token.Position        { return s.Token.Pos() }
func (s *Return) Pos() token.Position       { return s.Token.Pos() }
func (s *Assign) Pos() token.Position       { return s.Target.Pos() }
func (s *ExprStmt) Pos() token.Position     { return s.X.Pos() }
func (e *BinaryExpr) Pos() token.Position   { return e.Token.Pos() }
func (e *UnaryExpr) Pos() token.Position    { return e.Token.Pos() }
func (e *Call) Pos() token.Position         { return e.Callee.Pos() }
func (e *Literal) Pos() token.Position      { return e.Token.Pos() }
func (e *Identifier) Pos() token.Position   { return e.Token.Pos() }

func (*Program) node()      {}
func (*FunctionDecl) node() {}
func (*VarDecl) node()      {}
func (*Block) node()        {}
func (*If) node()           {}
func (*While) node()        {}
func (*Return) node()       {}
func (*Assign) node()       {}
func (*ExprStmt) node()     {}
func (*BinaryExpr) node()   {}
func (*UnaryExpr) node()    {}
func (*Call) node()         {}
func (*Literal) node()      {}
func (*Identifier) node()   {}

func (*VarDecl) stmtNode()  {}
func (*Block) stmtNode()    {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*Return) stmtNode()   {}
func (*Assign) stmtNode()   {}
func (*ExprStmt) stmtNode() {}

func (*BinaryExpr) exprNode() {}
func (*UnaryExpr) exprNode()  {}
func (*Call) exprNode()       {}
func (*Literal) exprNode()    {}
func (*Identifier) exprNode() {}

// ReturnsValue reports whether any return statement in the function body
// carries a value.
func (d *FunctionDecl) ReturnsValue() bool {
	found := false
	Inspect(d.Body, func(n Node) bool {
		if r, ok := n.(*Return); ok && r.Value != nil {
			found = true
		}
		return !found
	})
	return found
}

// Inspect traverses the tree rooted at n in depth-first order, calling f for
// every node. Children are skipped when f returns false.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Program:
		for _, fn := range n.Functions {
			Inspect(fn, f)
		}
		for _, s := range n.Statements {
			Inspect(s, f)
		}
	case *FunctionDecl:
		Inspect(n.Name, f)
		for _, p := range n.Params {
			Inspect(p.Name, f)
		}
		Inspect(n.Body, f)
	case *VarDecl:
		Inspect(n.Name, f)
		Inspect(n.Value, f)
	case *Block:
		for _, s := range n.Statements {
			Inspect(s, f)
		}
	case *If:
		Inspect(n.Cond, f)
		Inspect(n.Then, f)
		if n.Else != nil {
			Inspect(n.Else, f)
		}
	case *While:
		Inspect(n.Cond, f)
		Inspect(n.Body, f)
	case *Return:
		if n.Value != nil {
			Inspect(n.Value, f)
		}
	case *Assign:
		Inspect(n.Target, f)
		Inspect(n.Value, f)
	case *ExprStmt:
		Inspect(n.X, f)
	case *BinaryExpr:
		Inspect(n.Left, f)
		Inspect(n.Right, f)
	case *UnaryExpr:
		Inspect(n.Operand, f)
	case *Call:
		Inspect(n.Callee, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *Literal, *Identifier:
	}
}
