// Package asm reads and writes the textual instruction form of a program.
//
// The text is line oriented:
//
//	; comment
//	.globals 1
//	.const 2
//	.func add 2 2 1
//	    push_const 0        ; 2
//	    call add 2
//	    halt
//	add:
//	    push_local 0
//	    ret
//
// Directives: .entry <label|n>, .globals n, .const v (pool index is the
// order of appearance), .func name arity locals returns [entry] (entry
// defaults to the label called name), .line n (source line of the
// following instructions) and .raw op a b (an instruction by number).
// Jump and call targets may be labels or absolute addresses.
package asm

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/tliron/commonlog"

	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/diagnostics"
	"github.com/funvibe/foolvm/internal/token"
)

var log = commonlog.GetLogger("foolvm.asm")

// Assembler turns assembly text into a program in two passes: the first
// assigns addresses to labels, the second builds instructions and resolves
// label operands.
type Assembler struct {
	labels map[string]int
	errors diagnostics.List

	prog      *bytecode.Program
	lines     []int
	line      int
	sawLine   bool
	sawEntry  bool
	sawGlobal bool
	funcNames map[string]bool
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

// isInstruction reports whether the line occupies an address.
func (p parsedLine) isInstruction() bool {
	return p.mnemonic == ".raw" || !strings.HasPrefix(p.mnemonic, ".")
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels:    make(map[string]int),
		funcNames: make(map[string]bool),
	}
}

// Parse assembles text. The program is nil when errors are reported.
func Parse(text string) (*bytecode.Program, []*diagnostics.DiagnosticError) {
	return NewAssembler().Assemble(text)
}

func (a *Assembler) Assemble(text string) (*bytecode.Program, []*diagnostics.DiagnosticError) {
	lines := strings.Split(text, "\n")

	parsed := a.pass1(lines)
	if a.errors.Len() == 0 {
		a.pass2(parsed)
	}

	if a.errors.Len() > 0 {
		errs := a.errors.Errors()
		log.Debugf("assembly failed with %d errors", len(errs))
		return nil, errs
	}
	log.Debugf("assembled %d instructions, %d labels", len(a.prog.Code), len(a.labels))
	return a.prog, nil
}

func (a *Assembler) errorf(lineNo int, format string, args ...interface{}) {
	a.errors.Addf(diagnostics.ErrA001, token.Position{Line: lineNo, Column: 1}, format, args...)
}

func (a *Assembler) pass1(lines []string) []parsedLine {
	var parsed []parsedLine
	address := 0

	for i, raw := range lines {
		lineNo := i + 1
		p, ok := a.parseLine(raw, lineNo)
		if !ok {
			continue
		}

		for _, lbl := range p.labels {
			if prev, exists := a.labels[lbl]; exists {
				a.errorf(lineNo, "duplicate label '%s' (already at %d)", lbl, prev)
				continue
			}
			a.labels[lbl] = address
		}

		if p.mnemonic == "" {
			continue
		}
		if p.isInstruction() {
			if _, known := bytecode.LookupOpcode(p.mnemonic); !known && p.mnemonic != ".raw" {
				a.errorf(lineNo, "unknown instruction '%s'", p.mnemonic)
			}
			address++
		}
		parsed = append(parsed, p)
	}

	return parsed
}

func (a *Assembler) pass2(parsed []parsedLine) {
	a.prog = &bytecode.Program{}

	for _, p := range parsed {
		if p.isInstruction() {
			a.instruction(p)
		} else {
			a.directive(p)
		}
	}

	if a.sawLine {
		a.prog.Lines = a.lines
	}
}

func (a *Assembler) directive(p parsedLine) {
	switch p.mnemonic {
	case ".entry":
		if !a.expectOperands(p, 1) {
			return
		}
		if a.sawEntry {
			a.errorf(p.lineNo, "duplicate .entry")
			return
		}
		a.sawEntry = true
		if addr, ok := a.address(p.operands[0], p.lineNo); ok {
			a.prog.Entry = addr
		}

	case ".globals":
		if !a.expectOperands(p, 1) {
			return
		}
		if a.sawGlobal {
			a.errorf(p.lineNo, "duplicate .globals")
			return
		}
		a.sawGlobal = true
		if n, ok := a.count(p.operands[0], p.lineNo); ok {
			a.prog.Globals = n
		}

	case ".const":
		if !a.expectOperands(p, 1) {
			return
		}
		v, err := strconv.ParseInt(p.operands[0], 10, 64)
		if err != nil {
			a.errorf(p.lineNo, "invalid constant '%s'", p.operands[0])
			return
		}
		a.prog.Constants = append(a.prog.Constants, v)

	case ".func":
		a.function(p)

	case ".line":
		if !a.expectOperands(p, 1) {
			return
		}
		if n, ok := a.count(p.operands[0], p.lineNo); ok {
			a.line = n
			a.sawLine = true
		}

	default:
		a.errorf(p.lineNo, "unknown directive '%s'", p.mnemonic)
	}
}

// .func name arity locals returns [entry]
func (a *Assembler) function(p parsedLine) {
	if len(p.operands) != 4 && len(p.operands) != 5 {
		a.errorf(p.lineNo, ".func expects name, arity, locals, returns and an optional entry, got %d operands", len(p.operands))
		return
	}
	name := p.operands[0]
	if !isIdentifier(name) {
		a.errorf(p.lineNo, "invalid function name '%s'", name)
		return
	}
	if a.funcNames[name] {
		a.errorf(p.lineNo, "duplicate function '%s'", name)
		return
	}
	a.funcNames[name] = true

	fn := bytecode.Function{Name: name}
	var ok bool
	if fn.Arity, ok = a.count(p.operands[1], p.lineNo); !ok {
		return
	}
	if fn.Locals, ok = a.count(p.operands[2], p.lineNo); !ok {
		return
	}
	if fn.Returns, ok = a.count(p.operands[3], p.lineNo); !ok {
		return
	}
	entry := name
	if len(p.operands) == 5 {
		entry = p.operands[4]
	}
	if fn.Entry, ok = a.address(entry, p.lineNo); !ok {
		return
	}
	a.prog.Functions = append(a.prog.Functions, fn)
}

func (a *Assembler) instruction(p parsedLine) {
	var in bytecode.Instruction

	if p.mnemonic == ".raw" {
		if !a.expectOperands(p, 3) {
			return
		}
		op, err := strconv.ParseUint(p.operands[0], 10, 8)
		if err != nil {
			a.errorf(p.lineNo, "invalid opcode number '%s'", p.operands[0])
			return
		}
		in.Op = bytecode.Opcode(op)
		var ok1, ok2 bool
		in.A, ok1 = a.integer(p.operands[1], p.lineNo)
		in.B, ok2 = a.integer(p.operands[2], p.lineNo)
		if !ok1 || !ok2 {
			return
		}
	} else {
		op, _ := bytecode.LookupOpcode(p.mnemonic)
		in.Op = op
		n := op.Info().Operands
		if !a.expectOperands(p, n) {
			return
		}
		var ok bool
		if n >= 1 {
			if op.IsJump() || op == bytecode.OP_CALL {
				in.A, ok = a.address(p.operands[0], p.lineNo)
			} else {
				in.A, ok = a.integer(p.operands[0], p.lineNo)
			}
			if !ok {
				return
			}
		}
		if n == 2 {
			if in.B, ok = a.integer(p.operands[1], p.lineNo); !ok {
				return
			}
		}
	}

	a.prog.Code = append(a.prog.Code, in)
	a.lines = append(a.lines, a.line)
}

func (a *Assembler) expectOperands(p parsedLine, n int) bool {
	if len(p.operands) != n {
		a.errorf(p.lineNo, "%s expects %d operands, got %d", p.mnemonic, n, len(p.operands))
		return false
	}
	return true
}

// address resolves a label or an absolute address.
func (a *Assembler) address(tok string, lineNo int) (int, bool) {
	if addr, ok := a.labels[tok]; ok {
		return addr, true
	}
	if v, err := strconv.Atoi(tok); err == nil {
		return v, true
	}
	if isLabel(tok) {
		a.errorf(lineNo, "undefined label '%s'", tok)
	} else {
		a.errorf(lineNo, "invalid address '%s'", tok)
	}
	return 0, false
}

func (a *Assembler) integer(tok string, lineNo int) (int, bool) {
	v, err := strconv.Atoi(tok)
	if err != nil {
		a.errorf(lineNo, "invalid operand '%s'", tok)
		return 0, false
	}
	return v, true
}

func (a *Assembler) count(tok string, lineNo int) (int, bool) {
	v, err := strconv.Atoi(tok)
	if err != nil || v < 0 {
		a.errorf(lineNo, "expected a non-negative number, got '%s'", tok)
		return 0, false
	}
	return v, true
}

func (a *Assembler) parseLine(raw string, lineNo int) (parsedLine, bool) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComment(raw))
	for line != "" {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}
		name := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(name, " \t") {
			break
		}
		if !isLabel(name) {
			a.errorf(lineNo, "invalid label '%s'", name)
			return p, false
		}
		p.labels = append(p.labels, name)
		line = strings.TrimSpace(line[colon+1:])
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return p, true
	}
	p.mnemonic = strings.ToLower(fields[0])
	if len(fields) > 1 {
		p.operands = fields[1:]
	}
	return p, true
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return line[:i]
	}
	return line
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// isLabel accepts identifiers and the generated .L<n> form.
func isLabel(s string) bool {
	return isIdentifier(strings.TrimPrefix(s, "."))
}
