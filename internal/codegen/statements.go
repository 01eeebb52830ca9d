package codegen

import (
	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/symbols"
)

// compileStatement emits stmt. Every statement leaves the stack depth
// unchanged.
func (c *Compiler) compileStatement(stmt ast.Stmt) {
	before := c.depth
	c.pos = stmt.Pos()

	switch s := stmt.(type) {
	case *ast.VarDecl:
		c.compileExpression(s.Value)
		c.emitStore(c.symbol(s.Name))

	case *ast.Assign:
		c.compileExpression(s.Value)
		c.emitStore(c.symbol(s.Target))

	case *ast.ExprStmt:
		c.compileExpressionStatement(s)

	case *ast.Block:
		for _, inner := range s.Statements {
			c.compileStatement(inner)
		}

	case *ast.If:
		c.compileIf(s)

	case *ast.While:
		c.compileWhile(s)

	case *ast.Return:
		c.compileReturn(s)
		// Code after a return is unreachable; continue from the depth
		// the statement started at.
		c.depth = before

	default:
		c.violation("unexpected statement %T", stmt)
	}

	if c.depth != before {
		c.pos = stmt.Pos()
		c.violation("statement changed stack depth from %d to %d", before, c.depth)
	}
}

// compileExpressionStatement evaluates an expression and discards its value.
// Calls to void functions leave nothing to discard.
func (c *Compiler) compileExpressionStatement(s *ast.ExprStmt) {
	before := c.depth
	if call, ok := s.X.(*ast.Call); ok {
		c.compileCall(call)
	} else {
		c.compileExpression(s.X)
	}
	switch c.depth - before {
	case 0:
	case 1:
		c.emit(bytecode.OP_POP, 0, 0)
	default:
		c.violation("expression statement left %d values", c.depth-before)
	}
}

func (c *Compiler) emitStore(sym *symbols.Symbol) {
	if sym.Kind == symbols.FunctionSymbol {
		c.violation("store into function '%s'", sym.Name)
	}
	if sym.Global {
		c.emit(bytecode.OP_STORE_GLOBAL, sym.Slot, 0)
	} else {
		c.emit(bytecode.OP_STORE_LOCAL, sym.Slot, 0)
	}
}

//	cond; jump_if_zero else; then; jump end; else: alt; end:
func (c *Compiler) compileIf(s *ast.If) {
	elseLabel := c.newLabel()
	c.compileExpression(s.Cond)
	c.emitJump(bytecode.OP_JUMP_IF_ZERO, elseLabel)
	c.compileStatement(s.Then)

	if s.Else == nil {
		c.bind(elseLabel)
		return
	}

	endLabel := c.newLabel()
	c.emitJump(bytecode.OP_JUMP, endLabel)
	c.bind(elseLabel)
	c.compileStatement(s.Else)
	c.bind(endLabel)
}

//	start: cond; jump_if_zero end; body; jump start; end:
func (c *Compiler) compileWhile(s *ast.While) {
	startLabel := c.newLabel()
	endLabel := c.newLabel()

	c.bind(startLabel)
	c.compileExpression(s.Cond)
	c.emitJump(bytecode.OP_JUMP_IF_ZERO, endLabel)
	c.compileStatement(s.Body)
	c.emitJump(bytecode.OP_JUMP, startLabel)
	c.bind(endLabel)
}

// compileReturn leaves the return value, if any, on the stack and jumps to
// the shared epilogue, so every return path reaches RET with the same depth.
func (c *Compiler) compileReturn(s *ast.Return) {
	if c.function == nil {
		c.violation("return outside function")
	}
	if s.Value != nil {
		c.compileExpression(s.Value)
	}
	want := 0
	if c.functions[c.function.Slot].Returns == 1 {
		want = 1
	}
	if c.depth != want {
		c.violation("return in '%s' leaves %d values, function returns %d", c.function.Name, c.depth, want)
	}
	c.emitJump(bytecode.OP_JUMP, c.epilogue)
}
