package asm

import (
	"fmt"
	"strings"

	"github.com/funvibe/foolvm/internal/bytecode"
)

// Format writes prog as assembly text that Parse reads back into an equal
// program. Function entries are labelled with the function name, other
// jump and call targets with .L<address>.
func Format(prog *bytecode.Program) string {
	var sb strings.Builder

	labels := make(map[int][]string)
	inRange := func(addr int) bool { return addr >= 0 && addr <= len(prog.Code) }
	target := make(map[int]string) // address -> label used in operands

	for _, fn := range prog.Functions {
		if inRange(fn.Entry) {
			labels[fn.Entry] = append(labels[fn.Entry], fn.Name)
			if _, ok := target[fn.Entry]; !ok {
				target[fn.Entry] = fn.Name
			}
		}
	}
	addrLabel := func(addr int) string {
		if name, ok := target[addr]; ok {
			return name
		}
		name := fmt.Sprintf(".L%d", addr)
		labels[addr] = append(labels[addr], name)
		target[addr] = name
		return name
	}
	operand := func(addr int) string {
		if !inRange(addr) {
			return fmt.Sprint(addr)
		}
		return addrLabel(addr)
	}

	// Instruction text first, so every referenced label is known before
	// the listing is assembled.
	body := make([]string, len(prog.Code))
	for pc, in := range prog.Code {
		body[pc] = formatInstruction(prog, in, operand)
	}
	entry := ""
	if prog.Entry != 0 {
		entry = operand(prog.Entry)
	}

	if prog.Globals != 0 {
		fmt.Fprintf(&sb, ".globals %d\n", prog.Globals)
	}
	if entry != "" {
		fmt.Fprintf(&sb, ".entry %s\n", entry)
	}
	for _, c := range prog.Constants {
		fmt.Fprintf(&sb, ".const %d\n", c)
	}
	for _, fn := range prog.Functions {
		fmt.Fprintf(&sb, ".func %s %d %d %d", fn.Name, fn.Arity, fn.Locals, fn.Returns)
		if !inRange(fn.Entry) {
			fmt.Fprintf(&sb, " %d", fn.Entry)
		}
		sb.WriteByte('\n')
	}

	line := -1
	for pc, text := range body {
		for _, l := range labels[pc] {
			fmt.Fprintf(&sb, "%s:\n", l)
		}
		if len(prog.Lines) > 0 && prog.Line(pc) != line {
			line = prog.Line(pc)
			fmt.Fprintf(&sb, ".line %d\n", line)
		}
		fmt.Fprintf(&sb, "    %s\n", text)
	}
	for _, l := range labels[len(prog.Code)] {
		fmt.Fprintf(&sb, "%s:\n", l)
	}

	return sb.String()
}

func formatInstruction(prog *bytecode.Program, in bytecode.Instruction, operand func(int) string) string {
	if !canonical(in) {
		return fmt.Sprintf(".raw %d %d %d", byte(in.Op), in.A, in.B)
	}

	switch {
	case in.Op == bytecode.OP_PUSH_CONST:
		if in.A >= 0 && in.A < len(prog.Constants) {
			return fmt.Sprintf("%s %d  ; %d", in.Op, in.A, prog.Constants[in.A])
		}
		return fmt.Sprintf("%s %d", in.Op, in.A)
	case in.Op == bytecode.OP_CALL:
		return fmt.Sprintf("%s %s %d", in.Op, operand(in.A), in.B)
	case in.Op.IsJump():
		return fmt.Sprintf("%s %s", in.Op, operand(in.A))
	}
	return in.String()
}

// canonical reports whether in can be written with its mnemonic: the opcode
// is defined and unused operands are zero.
func canonical(in bytecode.Instruction) bool {
	if !in.Op.Valid() {
		return false
	}
	switch in.Op.Info().Operands {
	case 0:
		return in.A == 0 && in.B == 0
	case 1:
		return in.B == 0
	}
	return true
}
