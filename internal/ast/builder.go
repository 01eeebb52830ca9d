package ast

import (
	"fmt"

	"github.com/funvibe/foolvm/internal/parsetree"
	"github.com/funvibe/foolvm/internal/token"
	"github.com/funvibe/foolvm/internal/typesystem"
)

// Build converts a parse tree into an AST. Each production maps to exactly
// one node; no semantic checks are made. A tree shape the parser cannot
// produce is a parser bug and panics.
func Build(tree *parsetree.Node) *Program {
	if tree.Rule != parsetree.Program {
		panic(fmt.Sprintf("ast.Build: root is %s, want Program", tree.Rule))
	}
	prog := &Program{}
	for _, child := range tree.Children {
		if child.Rule == parsetree.FunDecl {
			fn := buildFunction(child)
			prog.Functions = append(prog.Functions, fn)
			prog.Decls = append(prog.Decls, fn)
			continue
		}
		stmt := buildStmt(child)
		prog.Statements = append(prog.Statements, stmt)
		prog.Decls = append(prog.Decls, stmt)
	}
	return prog
}

func buildFunction(n *parsetree.Node) *FunctionDecl {
	fn := &FunctionDecl{Token: n.Token, Name: ident(n.Token)}
	for _, c := range n.Children {
		switch c.Rule {
		case parsetree.Params:
			for _, p := range c.Children {
				param := &Param{Name: ident(p.Token)}
				if len(p.Children) > 0 {
					param.Type = typeName(p.Children[0])
				}
				fn.Params = append(fn.Params, param)
			}
		case parsetree.TypeRef:
			fn.ReturnType = typeName(c)
		case parsetree.Block:
			fn.Body = buildBlock(c)
		default:
			unexpected(c)
		}
	}
	return fn
}

func buildStmt(n *parsetree.Node) Stmt {
	switch n.Rule {
	case parsetree.VarDecl:
		decl := &VarDecl{Token: n.Token, Name: ident(n.Token)}
		if t := n.Child(parsetree.TypeRef); t != nil {
			decl.Type = typeName(t)
		}
		decl.Value = buildExpr(n.Last())
		return decl
	case parsetree.Block:
		return buildBlock(n)
	case parsetree.If:
		s := &If{Token: n.Token, Cond: buildExpr(n.Children[0]), Then: buildStmt(n.Children[1])}
		if len(n.Children) > 2 {
			s.Else = buildStmt(n.Children[2])
		}
		return s
	case parsetree.While:
		return &While{Token: n.Token, Cond: buildExpr(n.Children[0]), Body: buildStmt(n.Children[1])}
	case parsetree.Return:
		s := &Return{Token: n.Token}
		if len(n.Children) > 0 {
			s.Value = buildExpr(n.Children[0])
		}
		return s
	case parsetree.Assign:
		return &Assign{Target: ident(n.Token), Value: buildExpr(n.Children[0])}
	case parsetree.ExprStmt:
		return &ExprStmt{X: buildExpr(n.Children[0])}
	}
	unexpected(n)
	return nil
}

func buildBlock(n *parsetree.Node) *Block {
	b := &Block{Token: n.Token}
	for _, c := range n.Children {
		b.Statements = append(b.Statements, buildStmt(c))
	}
	return b
}

func buildExpr(n *parsetree.Node) Expr {
	switch n.Rule {
	case parsetree.Binary:
		return &BinaryExpr{
			Token: n.Token,
			Op:    n.Token.Type,
			Left:  buildExpr(n.Children[0]),
			Right: buildExpr(n.Children[1]),
		}
	case parsetree.Unary:
		return &UnaryExpr{Token: n.Token, Op: n.Token.Type, Operand: buildExpr(n.Children[0])}
	case parsetree.Call:
		call := &Call{Callee: ident(n.Token)}
		for _, a := range n.Children {
			call.Args = append(call.Args, buildExpr(a))
		}
		return call
	case parsetree.IntLit:
		return &Literal{Token: n.Token, Type: typesystem.Int, Value: n.Token.Literal.(int64)}
	case parsetree.BoolLit:
		lit := &Literal{Token: n.Token, Type: typesystem.Bool}
		if n.Token.Type == token.TRUE {
			lit.Value = 1
		}
		return lit
	case parsetree.Ident:
		return ident(n.Token)
	case parsetree.Paren:
		return buildExpr(n.Children[0])
	}
	unexpected(n)
	return nil
}

func ident(tok token.Token) *Identifier {
	return &Identifier{Token: tok, Name: tok.Lexeme}
}

func typeName(n *parsetree.Node) *TypeName {
	t, ok := typesystem.FromName(n.Token.Lexeme)
	if !ok {
		unexpected(n)
	}
	return &TypeName{Token: n.Token, Type: t}
}

func unexpected(n *parsetree.Node) {
	panic(fmt.Sprintf("ast.Build: unexpected %s at %s", n.Rule, n.Token.Pos()))
}
