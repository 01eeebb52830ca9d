// Package prettyprinter renders an AST back to canonical source text.
package prettyprinter

import (
	"bytes"
	"strconv"

	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/token"
	"github.com/funvibe/foolvm/internal/typesystem"
)

// Operator precedence (higher = binds tighter). All binary operators are
// left-associative.
var operatorPrecedence = map[token.TokenType]int{
	token.OR:       1,
	token.AND:      2,
	token.EQ:       3,
	token.NOT_EQ:   3,
	token.LT:       4,
	token.GT:       4,
	token.LTE:      4,
	token.GTE:      4,
	token.PLUS:     5,
	token.MINUS:    5,
	token.ASTERISK: 6,
	token.SLASH:    6,
	token.PERCENT:  6,
}

const unaryPrecedence = 7

func getPrecedence(op token.TokenType) int {
	if p, ok := operatorPrecedence[op]; ok {
		return p
	}
	return unaryPrecedence
}

type CodePrinter struct {
	buf    bytes.Buffer
	indent int
}

func NewCodePrinter() *CodePrinter {
	return &CodePrinter{}
}

// Print formats a whole program in source order. Functions are set off
// from their neighbours by a blank line.
func Print(prog *ast.Program) string {
	p := NewCodePrinter()
	p.PrintProgram(prog)
	return p.String()
}

func (p *CodePrinter) String() string {
	return p.buf.String()
}

func (p *CodePrinter) write(s string) {
	p.buf.WriteString(s)
}

func (p *CodePrinter) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.buf.WriteString("    ")
	}
}

func (p *CodePrinter) newline() {
	p.buf.WriteByte('\n')
}

func (p *CodePrinter) PrintProgram(prog *ast.Program) {
	prevFunc := false
	for i, decl := range prog.Decls {
		fn, isFunc := decl.(*ast.FunctionDecl)
		if i > 0 && (isFunc || prevFunc) {
			p.newline()
		}
		if isFunc {
			p.printFunction(fn)
		} else {
			p.printStmt(decl.(ast.Stmt))
		}
		p.newline()
		prevFunc = isFunc
	}
}

func (p *CodePrinter) printFunction(fn *ast.FunctionDecl) {
	p.write("fun ")
	p.write(fn.Name.Name)
	p.write("(")
	for i, param := range fn.Params {
		if i > 0 {
			p.write(", ")
		}
		p.write(param.Name.Name)
		p.printAnnotation(param.Type)
	}
	p.write(")")
	p.printAnnotation(fn.ReturnType)
	p.write(" ")
	p.printBlock(fn.Body)
}

func (p *CodePrinter) printAnnotation(t *ast.TypeName) {
	if t == nil {
		return
	}
	p.write(": ")
	p.write(t.Type.String())
}

// printStmt prints s starting at the current column, without a trailing
// newline.
func (p *CodePrinter) printStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		p.write("var ")
		p.write(s.Name.Name)
		p.printAnnotation(s.Type)
		p.write(" = ")
		p.printExpr(s.Value, 0, false)
		p.write(";")

	case *ast.Assign:
		p.write(s.Target.Name)
		p.write(" = ")
		p.printExpr(s.Value, 0, false)
		p.write(";")

	case *ast.ExprStmt:
		p.printExpr(s.X, 0, false)
		p.write(";")

	case *ast.Return:
		if s.Value == nil {
			p.write("return;")
			return
		}
		p.write("return ")
		p.printExpr(s.Value, 0, false)
		p.write(";")

	case *ast.Block:
		p.printBlock(s)

	case *ast.If:
		p.write("if (")
		p.printExpr(s.Cond, 0, false)
		p.write(")")
		p.printBody(s.Then)
		if s.Else == nil {
			return
		}
		if _, ok := s.Then.(*ast.Block); ok {
			p.write(" else")
		} else {
			p.newline()
			p.writeIndent()
			p.write("else")
		}
		p.printBody(s.Else)

	case *ast.While:
		p.write("while (")
		p.printExpr(s.Cond, 0, false)
		p.write(")")
		p.printBody(s.Body)
	}
}

// printBody prints the statement controlled by if/else/while. Blocks and
// else-if chains stay on the line; anything else goes on its own line.
func (p *CodePrinter) printBody(s ast.Stmt) {
	switch s.(type) {
	case *ast.Block, *ast.If:
		p.write(" ")
		p.printStmt(s)
	default:
		p.indent++
		p.newline()
		p.writeIndent()
		p.printStmt(s)
		p.indent--
	}
}

func (p *CodePrinter) printBlock(b *ast.Block) {
	if len(b.Statements) == 0 {
		p.write("{ }")
		return
	}
	p.write("{")
	p.newline()
	p.indent++
	for _, s := range b.Statements {
		p.writeIndent()
		p.printStmt(s)
		p.newline()
	}
	p.indent--
	p.writeIndent()
	p.write("}")
}

// printExpr prints an expression, adding parentheses only if needed
func (p *CodePrinter) printExpr(expr ast.Expr, parentPrec int, isRight bool) {
	switch e := expr.(type) {
	case *ast.BinaryExpr:
		prec := getPrecedence(e.Op)
		needParens := prec < parentPrec || (prec == parentPrec && isRight)
		if needParens {
			p.write("(")
		}
		p.printExpr(e.Left, prec, false)
		p.write(" ")
		p.write(string(e.Op))
		p.write(" ")
		p.printExpr(e.Right, prec, true)
		if needParens {
			p.write(")")
		}

	case *ast.UnaryExpr:
		p.write(string(e.Op))
		p.printExpr(e.Operand, unaryPrecedence, false)

	case *ast.Call:
		p.write(e.Callee.Name)
		p.write("(")
		for i, arg := range e.Args {
			if i > 0 {
				p.write(", ")
			}
			p.printExpr(arg, 0, false)
		}
		p.write(")")

	case *ast.Literal:
		if e.Type == typesystem.Bool {
			p.write(strconv.FormatBool(e.Value != 0))
		} else {
			p.write(strconv.FormatInt(e.Value, 10))
		}

	case *ast.Identifier:
		p.write(e.Name)
	}
}
