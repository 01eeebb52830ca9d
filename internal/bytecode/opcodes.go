// Package bytecode defines the stack machine's instruction set and the
// program representation shared by the code generator, the assembler and
// the VM.
package bytecode

import "fmt"

// Opcode represents a single VM instruction
type Opcode byte

const (
	// Stack and storage
	OP_PUSH_CONST   Opcode = iota // Push constant pool entry A
	OP_PUSH_LOCAL                 // Push frame slot A
	OP_STORE_LOCAL                // Pop into frame slot A
	OP_PUSH_GLOBAL                // Push global slot A
	OP_STORE_GLOBAL               // Pop into global slot A
	OP_POP                        // Discard top of stack

	// Arithmetic
	OP_ADD // +
	OP_SUB // -
	OP_MUL // *
	OP_DIV // /
	OP_MOD // %
	OP_NEG // Unary minus

	// Comparison, result is 0 or 1
	OP_EQ // ==
	OP_NE // !=
	OP_LT // <
	OP_LE // <=
	OP_GT // >
	OP_GE // >=

	// Logic
	OP_NOT // !

	// Control flow
	OP_JUMP             // Jump to address A
	OP_JUMP_IF_ZERO     // Pop; jump to A if zero
	OP_JUMP_IF_NONZERO  // Pop; jump to A if not zero
	OP_CALL             // Call function at address A with B arguments
	OP_RET              // Return from the current frame

	// Misc
	OP_PRINT // Pop and print
	OP_HALT  // Stop the machine

	opcodeCount
)

// OpInfo documents an opcode: its mnemonic, operand count and stack effect.
// CALL and RET have a variable effect that depends on the callee.
type OpInfo struct {
	Name     string
	Operands int
	Pops     int
	Pushes   int
	Variable bool
}

var opTable = [opcodeCount]OpInfo{
	OP_PUSH_CONST:      {Name: "push_const", Operands: 1, Pushes: 1},
	OP_PUSH_LOCAL:      {Name: "push_local", Operands: 1, Pushes: 1},
	OP_STORE_LOCAL:     {Name: "store_local", Operands: 1, Pops: 1},
	OP_PUSH_GLOBAL:     {Name: "push_global", Operands: 1, Pushes: 1},
	OP_STORE_GLOBAL:    {Name: "store_global", Operands: 1, Pops: 1},
	OP_POP:             {Name: "pop", Pops: 1},
	OP_ADD:             {Name: "add", Pops: 2, Pushes: 1},
	OP_SUB:             {Name: "sub", Pops: 2, Pushes: 1},
	OP_MUL:             {Name: "mul", Pops: 2, Pushes: 1},
	OP_DIV:             {Name: "div", Pops: 2, Pushes: 1},
	OP_MOD:             {Name: "mod", Pops: 2, Pushes: 1},
	OP_NEG:             {Name: "neg", Pops: 1, Pushes: 1},
	OP_EQ:              {Name: "eq", Pops: 2, Pushes: 1},
	OP_NE:              {Name: "ne", Pops: 2, Pushes: 1},
	OP_LT:              {Name: "lt", Pops: 2, Pushes: 1},
	OP_LE:              {Name: "le", Pops: 2, Pushes: 1},
	OP_GT:              {Name: "gt", Pops: 2, Pushes: 1},
	OP_GE:              {Name: "ge", Pops: 2, Pushes: 1},
	OP_NOT:             {Name: "not", Pops: 1, Pushes: 1},
	OP_JUMP:            {Name: "jump", Operands: 1},
	OP_JUMP_IF_ZERO:    {Name: "jump_if_zero", Operands: 1, Pops: 1},
	OP_JUMP_IF_NONZERO: {Name: "jump_if_nonzero", Operands: 1, Pops: 1},
	OP_CALL:            {Name: "call", Operands: 2, Variable: true},
	OP_RET:             {Name: "ret", Variable: true},
	OP_PRINT:           {Name: "print", Pops: 1},
	OP_HALT:            {Name: "halt"},
}

// OpcodeNames maps opcodes to their mnemonics
var OpcodeNames = func() map[Opcode]string {
	m := make(map[Opcode]string, opcodeCount)
	for op := Opcode(0); op < opcodeCount; op++ {
		m[op] = opTable[op].Name
	}
	return m
}()

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opcodeCount)
	for op, name := range OpcodeNames {
		m[name] = op
	}
	return m
}()

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// Info returns the opcode's table entry. It panics on an invalid opcode.
func (op Opcode) Info() OpInfo {
	return opTable[op]
}

func (op Opcode) String() string {
	if op.Valid() {
		return opTable[op].Name
	}
	return fmt.Sprintf("op(%d)", byte(op))
}

// IsJump reports whether operand A of op is a code address.
func (op Opcode) IsJump() bool {
	return op == OP_JUMP || op == OP_JUMP_IF_ZERO || op == OP_JUMP_IF_NONZERO
}

// LookupOpcode finds an opcode by mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}
