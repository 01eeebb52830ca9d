package codegen

import (
	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/symbols"
	"github.com/funvibe/foolvm/internal/token"
)

var binaryOps = map[token.TokenType]bytecode.Opcode{
	token.PLUS:     bytecode.OP_ADD,
	token.MINUS:    bytecode.OP_SUB,
	token.ASTERISK: bytecode.OP_MUL,
	token.SLASH:    bytecode.OP_DIV,
	token.PERCENT:  bytecode.OP_MOD,
	token.EQ:       bytecode.OP_EQ,
	token.NOT_EQ:   bytecode.OP_NE,
	token.LT:       bytecode.OP_LT,
	token.LTE:      bytecode.OP_LE,
	token.GT:       bytecode.OP_GT,
	token.GTE:      bytecode.OP_GE,
}

// compileExpression emits e so that it leaves exactly one value on the
// operand stack.
func (c *Compiler) compileExpression(e ast.Expr) {
	before := c.depth

	switch e := e.(type) {
	case *ast.Literal:
		c.emitConst(e.Value)

	case *ast.Identifier:
		sym := c.symbol(e)
		switch {
		case sym.Kind == symbols.FunctionSymbol:
			c.pos = e.Pos()
			c.violation("function '%s' used as a value", sym.Name)
		case sym.Global:
			c.emit(bytecode.OP_PUSH_GLOBAL, sym.Slot, 0)
		default:
			c.emit(bytecode.OP_PUSH_LOCAL, sym.Slot, 0)
		}

	case *ast.UnaryExpr:
		c.compileExpression(e.Operand)
		switch e.Op {
		case token.MINUS:
			c.emit(bytecode.OP_NEG, 0, 0)
		case token.BANG:
			c.emit(bytecode.OP_NOT, 0, 0)
		default:
			c.pos = e.Pos()
			c.violation("unknown unary operator %s", e.Op)
		}

	case *ast.BinaryExpr:
		c.compileBinary(e)

	case *ast.Call:
		c.compileCall(e)

	default:
		c.violation("unexpected expression %T", e)
	}

	if c.depth != before+1 {
		c.pos = e.Pos()
		c.violation("expression changed stack depth by %d, want 1", c.depth-before)
	}
}

func (c *Compiler) compileBinary(e *ast.BinaryExpr) {
	switch e.Op {
	case token.AND:
		c.compileShortCircuit(e, bytecode.OP_JUMP_IF_ZERO, 0)
		return
	case token.OR:
		c.compileShortCircuit(e, bytecode.OP_JUMP_IF_NONZERO, 1)
		return
	}

	op, ok := binaryOps[e.Op]
	if !ok {
		c.pos = e.Pos()
		c.violation("unknown binary operator %s", e.Op)
	}
	c.compileExpression(e.Left)
	c.compileExpression(e.Right)
	c.pos = e.Pos()
	c.emit(op, 0, 0)
}

// compileShortCircuit emits
//
//	left; jump_if short; right; jump end; short: push_const result; end:
//
// Both paths reach end with one value on the stack.
func (c *Compiler) compileShortCircuit(e *ast.BinaryExpr, jump bytecode.Opcode, result int64) {
	before := c.depth
	short := c.newLabel()
	end := c.newLabel()

	c.compileExpression(e.Left)
	c.pos = e.Pos()
	c.emitJump(jump, short)
	c.compileExpression(e.Right)
	c.emitJump(bytecode.OP_JUMP, end)

	c.bind(short)
	c.depth = before
	c.emitConst(result)
	c.bind(end)
}

// compileCall pushes the arguments left to right and calls. A value
// function leaves one result, a void function none.
func (c *Compiler) compileCall(call *ast.Call) {
	sym := c.symbol(call.Callee)
	if sym.Kind != symbols.FunctionSymbol || sym.Signature == nil {
		c.pos = call.Pos()
		c.violation("call of non-function '%s'", sym.Name)
	}
	if len(call.Args) != sym.Signature.Arity() {
		c.pos = call.Pos()
		c.violation("call of '%s' with %d arguments, want %d", sym.Name, len(call.Args), sym.Signature.Arity())
	}

	for _, arg := range call.Args {
		c.compileExpression(arg)
	}
	c.pos = call.Pos()

	if sym.Signature.Builtin {
		c.emit(bytecode.OP_PRINT, 0, 0)
		return
	}
	c.emitCall(sym.Slot, len(call.Args), c.functions[sym.Slot].Returns)
}
