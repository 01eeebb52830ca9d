package bytecode

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sampleProgram() *Program {
	return &Program{
		Code: []Instruction{
			{Op: OP_PUSH_CONST, A: 0},
			{Op: OP_PUSH_CONST, A: 1},
			{Op: OP_CALL, A: 5, B: 2},
			{Op: OP_PRINT},
			{Op: OP_HALT},
			{Op: OP_PUSH_LOCAL, A: 0},
			{Op: OP_PUSH_LOCAL, A: 1},
			{Op: OP_ADD},
			{Op: OP_JUMP, A: 9},
			{Op: OP_RET},
		},
		Constants: []int64{2, -3},
		Functions: []Function{{Name: "add", Entry: 5, Arity: 2, Locals: 2, Returns: 1}},
		Entry:     0,
		Globals:   1,
		Lines:     []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	}
}

func TestOpcodeTable(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		info := op.Info()
		if info.Name == "" {
			t.Errorf("opcode %d has no mnemonic", op)
			continue
		}
		back, ok := LookupOpcode(info.Name)
		if !ok || back != op {
			t.Errorf("LookupOpcode(%q) = %v, %v", info.Name, back, ok)
		}
		if OpcodeNames[op] != info.Name {
			t.Errorf("OpcodeNames[%d] = %q", op, OpcodeNames[op])
		}
	}
	if Opcode(200).Valid() {
		t.Error("opcode 200 should be invalid")
	}
	if got := Opcode(200).String(); got != "op(200)" {
		t.Errorf("invalid opcode string = %q", got)
	}
}

func TestStackEffects(t *testing.T) {
	tests := []struct {
		op           Opcode
		pops, pushes int
	}{
		{OP_PUSH_CONST, 0, 1},
		{OP_STORE_LOCAL, 1, 0},
		{OP_STORE_GLOBAL, 1, 0},
		{OP_ADD, 2, 1},
		{OP_LT, 2, 1},
		{OP_NEG, 1, 1},
		{OP_JUMP, 0, 0},
		{OP_JUMP_IF_ZERO, 1, 0},
		{OP_PRINT, 1, 0},
		{OP_HALT, 0, 0},
	}
	for _, tt := range tests {
		info := tt.op.Info()
		if info.Pops != tt.pops || info.Pushes != tt.pushes {
			t.Errorf("%s: effect %d->%d, want %d->%d", tt.op, info.Pops, info.Pushes, tt.pops, tt.pushes)
		}
	}
	if !OP_CALL.Info().Variable || !OP_RET.Info().Variable {
		t.Error("call and ret have callee-dependent effects")
	}
}

func TestImageRoundTrip(t *testing.T) {
	prog := sampleProgram()
	data := EncodeImage(prog)
	if !IsImage(data) {
		t.Fatal("encoded image lacks magic")
	}
	got, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if !reflect.DeepEqual(got, prog) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, prog)
	}
}

func TestImageWithoutDebugInfo(t *testing.T) {
	prog := &Program{Code: []Instruction{{Op: OP_HALT}}}
	got, err := DecodeImage(EncodeImage(prog))
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if !reflect.DeepEqual(got, prog) {
		t.Errorf("got %+v, want %+v", got, prog)
	}
}

func TestDecodeImageErrors(t *testing.T) {
	if _, err := DecodeImage([]byte("nope")); !errors.Is(err, ErrNotImage) {
		t.Errorf("expected ErrNotImage, got %v", err)
	}
	if _, err := DecodeImage([]byte{'S', 'V', 'M', 'B', 9}); err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("expected version error, got %v", err)
	}
	data := EncodeImage(sampleProgram())
	if _, err := DecodeImage(data[:len(data)-3]); err == nil {
		t.Error("expected error for truncated image")
	}
}

func TestValidate(t *testing.T) {
	if err := sampleProgram().Validate(); err != nil {
		t.Fatalf("valid program rejected: %v", err)
	}

	bad := sampleProgram()
	bad.Functions = append(bad.Functions, Function{Name: "ghost", Entry: 99})
	bad.Code[0].A = 7
	bad.Lines = bad.Lines[:3]
	err := bad.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(ve.Problems) != 3 {
		t.Errorf("expected 3 problems, got %d: %v", len(ve.Problems), ve.Problems)
	}
}

func TestValidateLeavesRuntimeFaultsToVM(t *testing.T) {
	prog := &Program{Code: []Instruction{{Op: Opcode(99)}, {Op: OP_JUMP, A: -4}}}
	if err := prog.Validate(); err != nil {
		t.Errorf("bad opcodes and jumps are runtime faults, got %v", err)
	}
}

func TestDisassemble(t *testing.T) {
	out := Disassemble(sampleProgram(), "sample")
	for _, want := range []string{
		"== sample ==",
		"0000    1 push_const         0 '2'",
		"0002    | call               5 2 (add)",
		"== add (arity 2, locals 2, returns 1) ==",
		"0008    | jump            -> 0009",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}
