package vm_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/config"
	"github.com/funvibe/foolvm/internal/pipeline"
	"github.com/funvibe/foolvm/internal/vm"
)

func compile(t *testing.T, source string) *bytecode.Program {
	t.Helper()
	ctx := pipeline.Compile("test.fool", source, nil)
	if len(ctx.Errors) > 0 {
		t.Fatalf("compile errors: %v", ctx.Errors)
	}
	if ctx.InternalError != nil {
		t.Fatalf("internal error: %v", ctx.InternalError)
	}
	return ctx.Program
}

func run(t *testing.T, prog *bytecode.Program, opts ...vm.Option) (*vm.Result, string, error) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]vm.Option{vm.WithOutput(&out)}, opts...)
	res, err := vm.New(prog, opts...).Run(context.Background())
	return res, out.String(), err
}

func expectOutput(t *testing.T, source, want string) {
	t.Helper()
	res, out, err := run(t, compile(t, source))
	if err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if res.Status != vm.Halted {
		t.Fatalf("status = %s", res.Status)
	}
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func expectFault(t *testing.T, prog *bytecode.Program, code vm.FaultCode, pc int, opts ...vm.Option) *vm.Fault {
	t.Helper()
	res, _, err := run(t, prog, opts...)
	if res.Status != vm.Faulted {
		t.Fatalf("status = %s, want Faulted", res.Status)
	}
	var f *vm.Fault
	if !errors.As(err, &f) {
		t.Fatalf("expected *vm.Fault, got %v", err)
	}
	if f.Code != code || f.PC != pc {
		t.Errorf("fault = %v, want %s at pc %d", f, code, pc)
	}
	if res.Fault != f {
		t.Error("result and error carry different faults")
	}
	return f
}

func TestAdd(t *testing.T) {
	expectOutput(t, "fun add(a, b) { return a + b; } print(add(2, 3));", "5\n")
}

func TestArithmeticAndComparison(t *testing.T) {
	expectOutput(t, `
print(7 - 10);
print(6 * 7);
print(7 / 2);
print(7 % 3);
print(-(2 + 3));
print(1 < 2);
print(2 <= 1);
print(3 > 2);
print(3 >= 4);
print(5 == 5);
print(5 != 5);
print(!true);
`, "-3\n42\n3\n1\n-5\n1\n0\n1\n0\n1\n0\n0\n")
}

func TestShortCircuitSkipsRightOperand(t *testing.T) {
	expectOutput(t, `
fun loud(v: bool): bool { print(9); return v; }
print(false && loud(true));
print(true || loud(false));
print(true && loud(false));
`, "0\n1\n9\n0\n")
}

func TestArgumentsLandInOrder(t *testing.T) {
	expectOutput(t, "fun sub(a, b) { return a - b; } print(sub(10, 3));", "7\n")
}

func TestDivisionByZero(t *testing.T) {
	prog := compile(t, "print(1 / 0);")
	f := expectFault(t, prog, vm.DivisionByZero, 2)
	if prog.Code[f.PC].Op != bytecode.OP_DIV {
		t.Errorf("fault at %s, want div", prog.Code[f.PC].Op)
	}
	if f.Line != 1 {
		t.Errorf("line = %d", f.Line)
	}
}

func TestModuloByZero(t *testing.T) {
	prog := compile(t, "var z = 0;\nprint(5 % z);")
	expectFault(t, prog, vm.DivisionByZero, 4)
}

func TestStackOverflowIsDeterministic(t *testing.T) {
	prog := compile(t, "fun f(n) { return f(n + 1); }\nprint(f(0));")
	cfg := config.Default()
	cfg.VM.MaxFrameDepth = 200

	var first *vm.Fault
	for i := 0; i < 3; i++ {
		f := expectFault(t, prog, vm.StackOverflow, 7, vm.WithConfig(cfg))
		if f.Frames != 200 {
			t.Errorf("run %d: overflow at %d frames, want 200", i, f.Frames)
		}
		if first == nil {
			first = f
		} else if !reflect.DeepEqual(f, first) {
			t.Errorf("run %d: fault %v differs from %v", i, f, first)
		}
	}
}

func TestMachineCanRerun(t *testing.T) {
	prog := compile(t, "var x = 1;\nx = x + 1;\nprint(x);")
	var out bytes.Buffer
	m := vm.New(prog, vm.WithOutput(&out))
	for i := 0; i < 2; i++ {
		if _, err := m.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if out.String() != "2\n2\n" {
		t.Errorf("output = %q, globals not reset between runs", out.String())
	}
}

func TestOperandStackOverflow(t *testing.T) {
	code := []bytecode.Instruction{{Op: bytecode.OP_PUSH_CONST}, {Op: bytecode.OP_JUMP, A: 0}}
	prog := &bytecode.Program{Code: code, Constants: []int64{1}}
	cfg := config.Default()
	cfg.VM.MaxStackDepth = 16
	f := expectFault(t, prog, vm.StackOverflow, 0, vm.WithConfig(cfg))
	if !strings.Contains(f.Message, "16") {
		t.Errorf("message = %q", f.Message)
	}
}

// Storage sizes come from the program, which may have been loaded from an
// untrusted image, so they are checked against the slot limit.
func TestOversizedStorage(t *testing.T) {
	huge := math.MaxInt
	globals := &bytecode.Program{Code: []bytecode.Instruction{{Op: bytecode.OP_HALT}}, Globals: huge}
	f := expectFault(t, globals, vm.StackOverflow, 0)
	if !strings.Contains(f.Message, "globals") {
		t.Errorf("message = %q", f.Message)
	}

	frame := &bytecode.Program{
		Code: []bytecode.Instruction{
			{Op: bytecode.OP_CALL, A: 2},
			{Op: bytecode.OP_HALT},
			{Op: bytecode.OP_RET},
		},
		Functions: []bytecode.Function{{Name: "big", Entry: 2, Locals: huge}},
	}
	if err := frame.Validate(); err != nil {
		t.Fatal(err)
	}
	f = expectFault(t, frame, vm.StackOverflow, 0)
	if f.Frames != 0 || !strings.Contains(f.Message, "big") {
		t.Errorf("fault = %v", f)
	}

	// Locals of all live frames add up: the third frame of ten slots does
	// not fit in 25.
	recurse := &bytecode.Program{
		Code: []bytecode.Instruction{
			{Op: bytecode.OP_CALL, A: 1},
			{Op: bytecode.OP_CALL, A: 1},
		},
		Functions: []bytecode.Function{{Name: "r", Entry: 1, Locals: 10}},
	}
	cfg := config.Default()
	cfg.VM.MaxStackDepth = 25
	f = expectFault(t, recurse, vm.StackOverflow, 1, vm.WithConfig(cfg))
	if f.Frames != 2 {
		t.Errorf("faulted with %d frames, want 2", f.Frames)
	}

	// Returning releases the slots.
	loop := &bytecode.Program{
		Code: []bytecode.Instruction{
			{Op: bytecode.OP_CALL, A: 4},
			{Op: bytecode.OP_CALL, A: 4},
			{Op: bytecode.OP_CALL, A: 4},
			{Op: bytecode.OP_HALT},
			{Op: bytecode.OP_RET},
		},
		Functions: []bytecode.Function{{Name: "r", Entry: 4, Locals: 10}},
	}
	if res, _, err := run(t, loop, vm.WithConfig(cfg)); err != nil || res.Status != vm.Halted {
		t.Errorf("sequential calls: %v", err)
	}
}

func TestHandBuiltFaults(t *testing.T) {
	add := []bytecode.Function{{Name: "one", Entry: 3, Arity: 0, Locals: 0, Returns: 1}}
	tests := []struct {
		name string
		prog *bytecode.Program
		code vm.FaultCode
		pc   int
	}{
		{"underflow", &bytecode.Program{Code: []bytecode.Instruction{{Op: bytecode.OP_ADD}}}, vm.StackUnderflow, 0},
		{"invalid opcode", &bytecode.Program{Code: []bytecode.Instruction{{Op: bytecode.OP_HALT + 40}}}, vm.InvalidOpcode, 0},
		{"bad constant", &bytecode.Program{Code: []bytecode.Instruction{{Op: bytecode.OP_PUSH_CONST, A: 3}}}, vm.InvalidOpcode, 0},
		{"local at top level", &bytecode.Program{Code: []bytecode.Instruction{{Op: bytecode.OP_PUSH_LOCAL}}}, vm.InvalidOpcode, 0},
		{"bad global", &bytecode.Program{Code: []bytecode.Instruction{{Op: bytecode.OP_PUSH_GLOBAL, A: 1}}, Globals: 1}, vm.InvalidOpcode, 0},
		{"jump out of bounds", &bytecode.Program{Code: []bytecode.Instruction{{Op: bytecode.OP_HALT}, {Op: bytecode.OP_JUMP, A: 2}}, Entry: 1}, vm.OutOfBoundsJump, 1},
		{"negative jump", &bytecode.Program{Code: []bytecode.Instruction{{Op: bytecode.OP_JUMP, A: -1}}}, vm.OutOfBoundsJump, 0},
		{"call non-entry", &bytecode.Program{
			Code:      []bytecode.Instruction{{Op: bytecode.OP_CALL, A: 2}, {Op: bytecode.OP_HALT}, {Op: bytecode.OP_HALT}, {Op: bytecode.OP_PUSH_CONST}, {Op: bytecode.OP_RET}},
			Constants: []int64{1},
			Functions: add,
		}, vm.InvalidCall, 0},
		{"call arity", &bytecode.Program{
			Code:      []bytecode.Instruction{{Op: bytecode.OP_PUSH_CONST}, {Op: bytecode.OP_CALL, A: 3, B: 1}, {Op: bytecode.OP_HALT}, {Op: bytecode.OP_PUSH_CONST}, {Op: bytecode.OP_RET}},
			Constants: []int64{1},
			Functions: add,
		}, vm.InvalidCall, 1},
		{"ret at top level", &bytecode.Program{Code: []bytecode.Instruction{{Op: bytecode.OP_RET}}}, vm.InvalidCall, 0},
		{"callee pops caller values", &bytecode.Program{
			Code:      []bytecode.Instruction{{Op: bytecode.OP_PUSH_CONST}, {Op: bytecode.OP_CALL, A: 3}, {Op: bytecode.OP_HALT}, {Op: bytecode.OP_POP}, {Op: bytecode.OP_RET}},
			Constants: []int64{1},
			Functions: add,
		}, vm.StackUnderflow, 3},
		{"fall off a function", &bytecode.Program{
			Code:      []bytecode.Instruction{{Op: bytecode.OP_CALL, A: 2}, {Op: bytecode.OP_HALT}, {Op: bytecode.OP_PUSH_CONST}},
			Constants: []int64{1},
			Functions: []bytecode.Function{{Name: "f", Entry: 2, Returns: 1}},
		}, vm.OutOfBoundsJump, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectFault(t, tt.prog, tt.code, tt.pc)
		})
	}
}

func TestHaltExitValue(t *testing.T) {
	prog := &bytecode.Program{
		Code:      []bytecode.Instruction{{Op: bytecode.OP_PUSH_CONST}, {Op: bytecode.OP_PUSH_CONST, A: 1}, {Op: bytecode.OP_HALT}},
		Constants: []int64{4, 2},
	}
	res, _, err := run(t, prog)
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasExit || res.Exit != 2 {
		t.Errorf("exit = %d (%v), want 2", res.Exit, res.HasExit)
	}

	// Falling off the end of top-level code halts too.
	prog.Code = prog.Code[:1]
	res, _, err = run(t, prog)
	if err != nil || res.Status != vm.Halted || res.Exit != 4 {
		t.Errorf("fall off: %+v, %v", res, err)
	}

	res, _, _ = run(t, &bytecode.Program{})
	if res.Status != vm.Halted || res.HasExit {
		t.Errorf("empty program: %+v", res)
	}
}

func TestStepBudget(t *testing.T) {
	prog := compile(t, "while (true) { }")
	res, _, err := run(t, prog, vm.WithMaxSteps(100))
	var f *vm.Fault
	if !errors.As(err, &f) || f.Code != vm.Aborted {
		t.Fatalf("expected Aborted, got %v", err)
	}
	if res.Steps != 100 {
		t.Errorf("steps = %d", res.Steps)
	}
}

func TestContextCancellation(t *testing.T) {
	prog := compile(t, "while (true) { }")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := vm.New(prog).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Fault.Code != vm.Aborted || res.Steps >= 2*config.CancelCheckInterval {
		t.Errorf("fault %v after %d steps", res.Fault, res.Steps)
	}
}

// Every statement leaves the operand stack as it found it: whenever
// control enters a new source line within an activation, the activation's
// own part of the stack is empty.
func TestStackDisciplineAtStatementBoundaries(t *testing.T) {
	prog := compile(t, `fun max(a, b) {
	if (a > b) {
		return a;
	}
	return b;
}
fun sum(n) {
	var total = 0;
	while (n > 0) {
		total = total + max(n, 2);
		n = n - 1;
	}
	return total;
}
var r = sum(5) + sum(2);
print(r);
print(max(r, 100) * 2 - 1);
`)
	lastLine := map[int]int{}
	checked := 0
	trace := func(s vm.Step) {
		for depth := range lastLine {
			if depth > s.Frames {
				delete(lastLine, depth)
			}
		}
		// ret shares the line of whichever statement jumped to it
		if last, ok := lastLine[s.Frames]; (!ok || last != s.Line) && s.Instruction.Op != bytecode.OP_RET {
			checked++
			if s.Depth != s.Base {
				t.Errorf("pc %d line %d: %d values on entry to statement", s.PC, s.Line, s.Depth-s.Base)
			}
		}
		lastLine[s.Frames] = s.Line
	}
	res, out, err := run(t, prog, vm.WithTrace(trace))
	if err != nil {
		t.Fatal(err)
	}
	if out != "20\n199\n" {
		t.Errorf("output = %q", out)
	}
	if res.Steps == 0 || checked < 20 {
		t.Errorf("only %d statement boundaries checked", checked)
	}
}

func TestFrameSlotsAndTeardown(t *testing.T) {
	prog := compile(t, `fun f(a, b) {
	var c = a + b;
	{ var d = c * 2; c = d; }
	{ var e = 1; var g = 2; c = c + e + g; }
	return c;
}
fun noop(x) { x = x + 1; }
print(f(1, 2) + 10);
noop(4);
`)
	locals := map[string]int{}
	for _, fn := range prog.Functions {
		locals[fn.Name] = fn.Locals
	}
	if locals["f"] != 5 || locals["noop"] != 1 {
		t.Fatalf("locals = %v", locals)
	}

	type pending struct{ ret, depth, argc, returns int }
	var calls []pending
	entries := prog.FunctionIndex()
	trace := func(s vm.Step) {
		if s.Frames > 0 {
			fn := prog.Functions[0]
			for _, f := range prog.Functions[1:] {
				if f.Entry <= s.PC && f.Entry > fn.Entry {
					fn = f
				}
			}
			if s.Locals != fn.Locals {
				t.Errorf("pc %d in %s: frame has %d slots, want %d", s.PC, fn.Name, s.Locals, fn.Locals)
			}
		}
		if n := len(calls); n > 0 && s.PC == calls[n-1].ret && s.Frames == 0 {
			c := calls[n-1]
			calls = calls[:n-1]
			if want := c.depth - c.argc + c.returns; s.Depth != want {
				t.Errorf("after return to %d: depth %d, want %d", c.ret, s.Depth, want)
			}
		}
		if s.Instruction.Op == bytecode.OP_CALL {
			fn := prog.Functions[entries[s.Instruction.A]]
			calls = append(calls, pending{s.PC + 1, s.Depth, s.Instruction.B, fn.Returns})
		}
	}
	if _, out, err := run(t, prog, vm.WithTrace(trace)); err != nil || out != "19\n" {
		t.Fatalf("run: %q, %v", out, err)
	}
	if len(calls) != 0 {
		t.Errorf("%d calls never returned", len(calls))
	}
}

func TestIndependentMachines(t *testing.T) {
	prog := compile(t, "fun fib(n) { if (n < 2) { return n; } return fib(n - 1) + fib(n - 2); }\nprint(fib(20));")
	done := make(chan string, 4)
	for i := 0; i < 4; i++ {
		go func() {
			var out bytes.Buffer
			if _, err := vm.New(prog, vm.WithOutput(&out)).Run(context.Background()); err != nil {
				done <- err.Error()
				return
			}
			done <- out.String()
		}()
	}
	for i := 0; i < 4; i++ {
		if got := <-done; got != "6765\n" {
			t.Errorf("machine %d: %q", i, got)
		}
	}
}

func TestDebuggerBreakpoints(t *testing.T) {
	prog := compile(t, "fun sq(n) {\n\treturn n * n;\n}\nvar x = 3;\nprint(sq(x));\n")
	var log bytes.Buffer
	m := vm.New(prog, vm.WithOutput(&bytes.Buffer{}))
	d := vm.NewDebugger(&log)
	d.SetBreakpoint(2)
	d.SetBreakpoint(99)
	d.Attach(m)
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	bps := d.GetBreakpoints()
	if len(bps) != 2 || bps[0].Line != 2 || bps[0].Hits != 1 || bps[1].Hits != 0 {
		t.Errorf("breakpoints = %+v", bps)
	}
	for _, want := range []string{
		"Breakpoint at line 2",
		"1. sq at line 2",
		"  2. <main> at line 5",
		"Local slots:\n  0 = 3\n",
		"Global slots:\n  0 = 3\n",
	} {
		if !strings.Contains(log.String(), want) {
			t.Errorf("debugger output missing %q:\n%s", want, log.String())
		}
	}
}
