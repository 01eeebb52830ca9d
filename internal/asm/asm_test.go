package asm

import (
	"reflect"
	"strings"
	"testing"

	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/diagnostics"
)

func sampleProgram() *bytecode.Program {
	return &bytecode.Program{
		Code: []bytecode.Instruction{
			{Op: bytecode.OP_PUSH_CONST, A: 0},
			{Op: bytecode.OP_PUSH_CONST, A: 1},
			{Op: bytecode.OP_CALL, A: 5, B: 2},
			{Op: bytecode.OP_PRINT},
			{Op: bytecode.OP_HALT},
			{Op: bytecode.OP_PUSH_LOCAL, A: 0},
			{Op: bytecode.OP_PUSH_LOCAL, A: 1},
			{Op: bytecode.OP_ADD},
			{Op: bytecode.OP_JUMP, A: 9},
			{Op: bytecode.OP_RET},
		},
		Constants: []int64{2, -3},
		Functions: []bytecode.Function{{Name: "add", Entry: 5, Arity: 2, Locals: 2, Returns: 1}},
		Globals:   1,
		Lines:     []int{1, 1, 1, 1, 1, 2, 2, 2, 2, 3},
	}
}

func mustParse(t *testing.T, text string) *bytecode.Program {
	t.Helper()
	prog, errs := Parse(text)
	if len(errs) > 0 {
		var msgs []string
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		t.Fatalf("Parse errors:\n%s\ntext:\n%s", strings.Join(msgs, "\n"), text)
	}
	return prog
}

func TestFormat(t *testing.T) {
	got := Format(sampleProgram())
	want := `.globals 1
.const 2
.const -3
.func add 2 2 1
.line 1
    push_const 0  ; 2
    push_const 1  ; -3
    call add 2
    print
    halt
add:
.line 2
    push_local 0
    push_local 1
    add
    jump .L9
.L9:
.line 3
    ret
`
	if got != want {
		t.Errorf("Format mismatch:\n--- got\n%s--- want\n%s", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	prog := sampleProgram()
	back := mustParse(t, Format(prog))
	if !reflect.DeepEqual(back, prog) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, prog)
	}

	prog.Lines = nil
	back = mustParse(t, Format(prog))
	if !reflect.DeepEqual(back, prog) {
		t.Errorf("round trip without lines:\n got %+v\nwant %+v", back, prog)
	}
}

func TestRoundTripUnusualPrograms(t *testing.T) {
	progs := []*bytecode.Program{
		// Invalid opcode and a jump outside the code.
		{Code: []bytecode.Instruction{{Op: bytecode.Opcode(200), A: 1, B: 2}, {Op: bytecode.OP_JUMP, A: -4}}},
		// Jump to the address after the last instruction.
		{Code: []bytecode.Instruction{{Op: bytecode.OP_JUMP, A: 1}}},
		// Non-zero entry and a function whose entry lies outside the code.
		{
			Code:      []bytecode.Instruction{{Op: bytecode.OP_HALT}, {Op: bytecode.OP_RET}},
			Entry:     1,
			Functions: []bytecode.Function{{Name: "ghost", Entry: 40}},
		},
		// Operand on an opcode that takes none.
		{Code: []bytecode.Instruction{{Op: bytecode.OP_HALT, A: 3}}},
	}
	for i, prog := range progs {
		back := mustParse(t, Format(prog))
		if !reflect.DeepEqual(back, prog) {
			t.Errorf("program %d:\n got %+v\nwant %+v\ntext:\n%s", i, back, prog, Format(prog))
		}
	}
}

func TestParseHandWritten(t *testing.T) {
	prog := mustParse(t, `
; count down from 3
.globals 1
.const 3
.const 1
        push_const 0
        store_global 0
LOOP:   push_global 0       ; loop head
        jump_if_zero DONE
        push_global 0
        print
        push_global 0
        push_const 1
        SUB
        store_global 0
        jump LOOP
DONE:   halt
`)
	if len(prog.Code) != 12 {
		t.Fatalf("expected 12 instructions, got %d", len(prog.Code))
	}
	if in := prog.Code[3]; in.Op != bytecode.OP_JUMP_IF_ZERO || in.A != 11 {
		t.Errorf("jump_if_zero = %s, want target 11", in)
	}
	if in := prog.Code[10]; in.Op != bytecode.OP_JUMP || in.A != 2 {
		t.Errorf("jump = %s, want target 2", in)
	}
	if prog.Code[8].Op != bytecode.OP_SUB {
		t.Error("mnemonics are case-insensitive")
	}
	if prog.Lines != nil || prog.Functions != nil {
		t.Error("no debug info or functions expected")
	}
	if err := prog.Validate(); err != nil {
		t.Error(err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
		msg  string
	}{
		{"unknown instruction", "halt\nfrobnicate 1\n", 2, "unknown instruction 'frobnicate'"},
		{"undefined label", "jump nowhere\n", 1, "undefined label 'nowhere'"},
		{"duplicate label", "a: halt\na: halt\n", 2, "duplicate label 'a'"},
		{"operand count", "\n\npush_const\n", 3, "push_const expects 1 operands, got 0"},
		{"bad operand", "push_local x\n", 1, "invalid operand 'x'"},
		{"bad constant", ".const 1.5\n", 1, "invalid constant '1.5'"},
		{"bad label", "9lives: halt\n", 1, "invalid label '9lives'"},
		{"unknown directive", ".data 1\n", 1, "unknown directive '.data'"},
		{"negative globals", ".globals -1\nhalt\n", 1, "non-negative"},
		{"duplicate function", "f: ret\n.func f 0 0 0\n.func f 0 0 0\n", 3, "duplicate function 'f'"},
		{"function without label", ".func g 0 0 0\nhalt\n", 1, "undefined label 'g'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, errs := Parse(tt.text)
			if prog != nil {
				t.Error("expected nil program on error")
			}
			if len(errs) == 0 {
				t.Fatal("expected errors")
			}
			e := errs[0]
			if e.Code != diagnostics.ErrA001 {
				t.Errorf("code = %s, want A001", e.Code)
			}
			if e.Pos.Line != tt.line {
				t.Errorf("line = %d, want %d (%s)", e.Pos.Line, tt.line, e)
			}
			if !strings.Contains(e.Message, tt.msg) {
				t.Errorf("message %q does not contain %q", e.Message, tt.msg)
			}
		})
	}
}

func TestParseCollectsAllErrors(t *testing.T) {
	_, errs := Parse("bogus\nhalt\nalso_bogus\n")
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Pos.Line != 1 || errs[1].Pos.Line != 3 {
		t.Errorf("errors out of order: %v", errs)
	}
}

func FuzzParse(f *testing.F) {
	f.Add(Format(sampleProgram()))
	f.Add("a: jump a\n.entry a\n")
	f.Add(".raw 99 1 2\n.line 4\nhalt\n")
	f.Add(".func f 1 2 1 0\npush_local 0\nret\n")

	f.Fuzz(func(t *testing.T, text string) {
		prog, errs := Parse(text)
		if len(errs) > 0 {
			return
		}
		again, errs := Parse(Format(prog))
		if len(errs) > 0 {
			t.Fatalf("formatted program does not parse: %v\n%s", errs, Format(prog))
		}
		if !reflect.DeepEqual(again, prog) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", again, prog)
		}
	})
}
