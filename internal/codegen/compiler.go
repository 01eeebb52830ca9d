// Package codegen lowers a checked AST to stack machine instructions.
//
// Jump and call targets are emitted against symbolic labels and patched in
// a single finalization pass once every address is known. The compiler
// tracks the static operand stack depth through the opcode table and treats
// any imbalance as an internal error.
package codegen

import (
	"github.com/tliron/commonlog"

	"github.com/funvibe/foolvm/internal/analyzer"
	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/config"
	"github.com/funvibe/foolvm/internal/symbols"
	"github.com/funvibe/foolvm/internal/token"
	"github.com/funvibe/foolvm/internal/typesystem"
)

var log = commonlog.GetLogger("foolvm.codegen")

type label int

type fixup struct {
	pc    int
	label label
}

// Compiler compiles one analyzed program.
type Compiler struct {
	info *analyzer.Info
	cfg  *config.Config

	code       []bytecode.Instruction
	lines      []int
	constants  []int64
	constIndex map[int64]int

	labels []int // label -> address, -1 until bound
	fixups []fixup

	functions  []bytecode.Function
	funcLabels []label // function table index -> entry label

	depth    int            // static operand stack depth
	function *symbols.Symbol // function being compiled, nil at top level
	epilogue label
	pos      token.Position
}

// NewCompiler creates a compiler for a program whose analysis reported no
// errors. A nil cfg means config.Default().
func NewCompiler(info *analyzer.Info, cfg *config.Config) *Compiler {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Compiler{
		info:       info,
		cfg:        cfg,
		constIndex: make(map[int64]int),
	}
}

// Generate compiles prog in one call.
func Generate(prog *ast.Program, info *analyzer.Info, cfg *config.Config) (*bytecode.Program, error) {
	return NewCompiler(info, cfg).Compile(prog)
}

// Compile emits top-level code at address 0 followed by every function.
// Internal errors are returned as *InvariantViolation.
func (c *Compiler) Compile(prog *ast.Program) (out *bytecode.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			iv, ok := r.(*InvariantViolation)
			if !ok {
				panic(r)
			}
			log.Errorf("%s", iv)
			out, err = nil, iv
		}
	}()

	c.functions = make([]bytecode.Function, len(c.info.Functions))
	c.funcLabels = make([]label, len(c.info.Functions))
	for i, sym := range c.info.Functions {
		c.functions[i] = bytecode.Function{
			Name:   sym.Name,
			Arity:  sym.Signature.Arity(),
			Locals: sym.Signature.Locals,
		}
		if sym.Signature.Return != typesystem.Void {
			c.functions[i].Returns = 1
		}
		c.funcLabels[i] = c.newLabel()
	}

	for _, stmt := range prog.Statements {
		c.compileStatement(stmt)
	}
	c.emit(bytecode.OP_HALT, 0, 0)

	for _, fn := range prog.Functions {
		c.compileFunction(fn)
	}

	c.finalize()

	out = &bytecode.Program{
		Code:      c.code,
		Constants: c.constants,
		Entry:     0,
		Globals:   c.info.Globals,
		Lines:     c.lines,
	}
	if len(c.functions) > 0 {
		out.Functions = c.functions
	}
	log.Debugf("compiled %d instructions, %d constants, %d functions", len(out.Code), len(out.Constants), len(out.Functions))
	return out, nil
}

func (c *Compiler) compileFunction(fn *ast.FunctionDecl) {
	sym := c.symbol(fn.Name)
	index := sym.Slot
	returns := c.functions[index].Returns

	c.function = sym
	c.epilogue = c.newLabel()
	c.depth = 0
	c.pos = fn.Pos()

	c.bind(c.funcLabels[index])
	for _, stmt := range fn.Body.Statements {
		c.compileStatement(stmt)
	}

	// Falling off the end of a value function yields 0; the checker
	// rejects programs where this path is reachable.
	if returns == 1 && !endsInReturn(fn.Body) {
		c.emitConst(0)
	}
	c.bind(c.epilogue)
	c.depth = returns
	c.emit(bytecode.OP_RET, 0, 0)
	c.depth = 0

	log.Debugf("function %s at %d: arity %d, locals %d, returns %d",
		sym.Name, c.labels[c.funcLabels[index]], c.functions[index].Arity, c.functions[index].Locals, returns)
	c.function = nil
}

func endsInReturn(b *ast.Block) bool {
	if len(b.Statements) == 0 {
		return false
	}
	_, ok := b.Statements[len(b.Statements)-1].(*ast.Return)
	return ok
}

// emit appends an instruction and applies its stack effect. CALL and RET
// adjust the depth in their callers.
func (c *Compiler) emit(op bytecode.Opcode, a, b int) int {
	info := op.Info()
	if !info.Variable {
		if c.depth < info.Pops {
			c.violation("%s needs %d operands, stack depth is %d", op, info.Pops, c.depth)
		}
		c.depth += info.Pushes - info.Pops
	}

	c.code = append(c.code, bytecode.Instruction{Op: op, A: a, B: b})
	if c.cfg.LinesEnabled() {
		c.lines = append(c.lines, c.pos.Line)
	}
	return len(c.code) - 1
}

func (c *Compiler) emitConst(value int64) {
	idx, ok := c.constIndex[value]
	if !ok {
		idx = len(c.constants)
		c.constants = append(c.constants, value)
		c.constIndex[value] = idx
	}
	c.emit(bytecode.OP_PUSH_CONST, idx, 0)
}

// emitJump emits a jump to l, patched during finalize.
func (c *Compiler) emitJump(op bytecode.Opcode, l label) {
	pc := c.emit(op, -1, 0)
	c.fixups = append(c.fixups, fixup{pc: pc, label: l})
}

func (c *Compiler) emitCall(index, argc, returns int) {
	if c.depth < argc {
		c.violation("call needs %d arguments, stack depth is %d", argc, c.depth)
	}
	pc := c.emit(bytecode.OP_CALL, -1, argc)
	c.fixups = append(c.fixups, fixup{pc: pc, label: c.funcLabels[index]})
	c.depth += returns - argc
}

func (c *Compiler) newLabel() label {
	c.labels = append(c.labels, -1)
	return label(len(c.labels) - 1)
}

// bind fixes l to the next instruction address.
func (c *Compiler) bind(l label) {
	if c.labels[l] != -1 {
		c.violation("label %d bound twice", l)
	}
	c.labels[l] = len(c.code)
}

// finalize patches every jump and call operand and fills in function
// entries.
func (c *Compiler) finalize() {
	for _, f := range c.fixups {
		addr := c.labels[f.label]
		if addr < 0 {
			c.violation("unresolved label %d referenced at pc %d", f.label, f.pc)
		}
		if addr >= len(c.code) {
			c.violation("label %d resolves to %d, past the end of code", f.label, addr)
		}
		c.code[f.pc].A = addr
	}
	for i, l := range c.funcLabels {
		addr := c.labels[l]
		if addr < 0 {
			c.violation("function %s was never emitted", c.functions[i].Name)
		}
		c.functions[i].Entry = addr
	}
}

// symbol returns the analyzer's binding for id.
func (c *Compiler) symbol(id *ast.Identifier) *symbols.Symbol {
	sym := c.info.SymbolOf(id)
	if sym == nil {
		c.pos = id.Pos()
		c.violation("identifier '%s' was not resolved", id.Name)
	}
	return sym
}
