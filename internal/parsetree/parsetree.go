// Package parsetree holds the concrete syntax tree produced by the source
// parser. Each node records the grammar rule that produced it, the token
// that anchors it, and its children in source order.
package parsetree

import (
	"fmt"
	"strings"

	"github.com/funvibe/foolvm/internal/token"
)

type Rule int

const (
	Program Rule = iota
	FunDecl
	Params
	Param
	TypeRef
	VarDecl
	Block
	If
	While
	Return
	Assign
	ExprStmt
	Binary
	Unary
	Call
	IntLit
	BoolLit
	Ident
	Paren
)

var ruleNames = map[Rule]string{
	Program:  "Program",
	FunDecl:  "FunDecl",
	Params:   "Params",
	Param:    "Param",
	TypeRef:  "TypeRef",
	VarDecl:  "VarDecl",
	Block:    "Block",
	If:       "If",
	While:    "While",
	Return:   "Return",
	Assign:   "Assign",
	ExprStmt: "ExprStmt",
	Binary:   "Binary",
	Unary:    "Unary",
	Call:     "Call",
	IntLit:   "IntLit",
	BoolLit:  "BoolLit",
	Ident:    "Ident",
	Paren:    "Paren",
}

func (r Rule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Rule(%d)", int(r))
}

// Node is one parse-tree production.
//
// Shapes, by rule:
//
//	Program   children: FunDecl | statement ...
//	FunDecl   token: name     children: Params, [TypeRef], Block
//	Params    children: Param ...
//	Param     token: name     children: [TypeRef]
//	TypeRef   token: type keyword
//	VarDecl   token: name     children: [TypeRef], expr
//	Block     token: '{'      children: statement ...
//	If        token: 'if'     children: cond, then, [else]
//	While     token: 'while'  children: cond, body
//	Return    token: 'return' children: [expr]
//	Assign    token: name     children: expr
//	ExprStmt  token: first    children: expr
//	Binary    token: operator children: left, right
//	Unary     token: operator children: operand
//	Call      token: callee   children: arg ...
//	Paren     token: '('      children: expr
type Node struct {
	Rule     Rule
	Token    token.Token
	Children []*Node
}

func New(rule Rule, tok token.Token, children ...*Node) *Node {
	return &Node{Rule: rule, Token: tok, Children: children}
}

// Child returns the first child produced by rule, or nil.
func (n *Node) Child(rule Rule) *Node {
	for _, c := range n.Children {
		if c.Rule == rule {
			return c
		}
	}
	return nil
}

// Last returns the last child.
func (n *Node) Last() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[len(n.Children)-1]
}

// String renders the tree as an s-expression, used in parser tests.
func (n *Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

// labelled lists the rules whose token text is printed by String.
var labelled = map[Rule]bool{
	FunDecl: true,
	Param:   true,
	TypeRef: true,
	VarDecl: true,
	Assign:  true,
	Binary:  true,
	Unary:   true,
	Call:    true,
	IntLit:  true,
	BoolLit: true,
	Ident:   true,
}

func (n *Node) write(sb *strings.Builder) {
	sb.WriteString("(")
	sb.WriteString(n.Rule.String())
	if labelled[n.Rule] && n.Token.Lexeme != "" {
		sb.WriteString(" ")
		sb.WriteString(n.Token.Lexeme)
	}
	for _, c := range n.Children {
		sb.WriteString(" ")
		c.write(sb)
	}
	sb.WriteString(")")
}
