package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of prog: one instruction per
// line with its offset and source line, function entries as headers and
// resolved constants inline.
func Disassemble(prog *Program, name string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("== %s ==\n", name))

	entries := make(map[int]*Function, len(prog.Functions))
	for i := range prog.Functions {
		entries[prog.Functions[i].Entry] = &prog.Functions[i]
	}

	for pc := range prog.Code {
		if fn, ok := entries[pc]; ok {
			sb.WriteString(fmt.Sprintf("== %s (arity %d, locals %d, returns %d) ==\n", fn.Name, fn.Arity, fn.Locals, fn.Returns))
		}
		disassembleInstruction(&sb, prog, pc, entries)
	}

	return sb.String()
}

func disassembleInstruction(sb *strings.Builder, prog *Program, pc int, entries map[int]*Function) {
	sb.WriteString(fmt.Sprintf("%04d ", pc))

	// Print line number
	if len(prog.Lines) == 0 {
		sb.WriteString("   - ")
	} else if pc > 0 && prog.Line(pc) == prog.Line(pc-1) {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", prog.Line(pc)))
	}

	in := prog.Code[pc]
	sb.WriteString(fmt.Sprintf("%-16s", in.Op))

	switch {
	case in.Op == OP_PUSH_CONST:
		if in.A >= 0 && in.A < len(prog.Constants) {
			sb.WriteString(fmt.Sprintf("%4d '%d'", in.A, prog.Constants[in.A]))
		} else {
			sb.WriteString(fmt.Sprintf("%4d <bad constant>", in.A))
		}
	case in.Op == OP_CALL:
		name := "?"
		if fn, ok := entries[in.A]; ok {
			name = fn.Name
		}
		sb.WriteString(fmt.Sprintf("%4d %d (%s)", in.A, in.B, name))
	case in.Op.IsJump():
		sb.WriteString(fmt.Sprintf("-> %04d", in.A))
	case in.Op.Valid() && in.Op.Info().Operands == 1:
		sb.WriteString(fmt.Sprintf("%4d", in.A))
	}
	sb.WriteString("\n")
}
