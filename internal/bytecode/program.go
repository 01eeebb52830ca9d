package bytecode

import (
	"fmt"
	"strings"
)

// Instruction is one decoded instruction. Operands beyond the opcode's
// operand count are zero.
type Instruction struct {
	Op Opcode
	A  int
	B  int
}

func (in Instruction) String() string {
	if !in.Op.Valid() {
		return in.Op.String()
	}
	switch in.Op.Info().Operands {
	case 1:
		return fmt.Sprintf("%s %d", in.Op, in.A)
	case 2:
		return fmt.Sprintf("%s %d %d", in.Op, in.A, in.B)
	}
	return in.Op.String()
}

// Function is a function table entry.
type Function struct {
	Name    string
	Entry   int // address of the first instruction
	Arity   int
	Locals  int // frame size, parameters included
	Returns int // 0 or 1
}

// Program is a complete executable unit.
type Program struct {
	Code      []Instruction
	Constants []int64
	Functions []Function
	Entry     int // address execution starts at
	Globals   int // number of global slots

	// Lines maps each instruction to its source line; empty when the
	// program carries no debug info.
	Lines []int
}

// Line returns the source line of the instruction at pc, or 0.
func (p *Program) Line(pc int) int {
	if pc >= 0 && pc < len(p.Lines) {
		return p.Lines[pc]
	}
	return 0
}

// FunctionIndex maps entry addresses to function table indices.
func (p *Program) FunctionIndex() map[int]int {
	index := make(map[int]int, len(p.Functions))
	for i, fn := range p.Functions {
		index[fn.Entry] = i
	}
	return index
}

// ValidationError lists the structural problems found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid program: " + strings.Join(e.Problems, "; ")
}

// Validate checks the parts of a program the VM relies on without
// checking at run time: the function table, the entry point, constant
// references and debug info. Bad opcodes, jump targets and call targets are
// left to the VM, which reports them as faults.
func (p *Program) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(p.Code) > 0 && (p.Entry < 0 || p.Entry >= len(p.Code)) {
		add("entry %d outside code [0, %d)", p.Entry, len(p.Code))
	}
	if p.Globals < 0 {
		add("negative global count %d", p.Globals)
	}
	if len(p.Lines) != 0 && len(p.Lines) != len(p.Code) {
		add("line table has %d entries for %d instructions", len(p.Lines), len(p.Code))
	}

	seen := make(map[int]string, len(p.Functions))
	for _, fn := range p.Functions {
		switch {
		case fn.Entry < 0 || fn.Entry >= len(p.Code):
			add("function %s entry %d outside code", fn.Name, fn.Entry)
		case fn.Arity < 0 || fn.Locals < fn.Arity:
			add("function %s has %d locals for %d parameters", fn.Name, fn.Locals, fn.Arity)
		case fn.Returns != 0 && fn.Returns != 1:
			add("function %s returns %d values", fn.Name, fn.Returns)
		}
		if other, dup := seen[fn.Entry]; dup {
			add("functions %s and %s share entry %d", other, fn.Name, fn.Entry)
		}
		seen[fn.Entry] = fn.Name
	}

	for pc, in := range p.Code {
		if in.Op == OP_PUSH_CONST && (in.A < 0 || in.A >= len(p.Constants)) {
			add("pc %d: constant %d outside pool of %d", pc, in.A, len(p.Constants))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
