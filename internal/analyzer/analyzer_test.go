package analyzer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/diagnostics"
	"github.com/funvibe/foolvm/internal/lexer"
	"github.com/funvibe/foolvm/internal/parser"
	"github.com/funvibe/foolvm/internal/symbols"
	"github.com/funvibe/foolvm/internal/typesystem"
)

// analyzeSource lexes, parses and analyzes input. Syntax errors fail the test.
func analyzeSource(t *testing.T, input string) (*ast.Program, *Info, []*diagnostics.DiagnosticError) {
	t.Helper()
	tokens, lexErrs := lexer.New(input).Tokenize()
	if len(lexErrs) > 0 {
		t.Fatalf("lexer errors: %v\ninput: %s", lexErrs, input)
	}
	p := parser.New(tokens)
	tree := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parser errors: %v\ninput: %s", errs, input)
	}
	prog := ast.Build(tree)
	info, errs := New().Analyze(prog)
	return prog, info, errs
}

func formatErrors(errs []*diagnostics.DiagnosticError) string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

// expectAnalyzerError asserts that at least one error with the given code is produced.
func expectAnalyzerError(t *testing.T, input string, code diagnostics.ErrorCode) *diagnostics.DiagnosticError {
	t.Helper()
	_, _, errs := analyzeSource(t, input)
	if len(errs) == 0 {
		t.Fatalf("expected error %s, but got none\ninput: %s", code, input)
	}
	for _, e := range errs {
		if e.Code == code {
			return e
		}
	}
	t.Fatalf("expected error %s, got:\n%s\ninput: %s", code, formatErrors(errs), input)
	return nil
}

// expectAnalyzerErrorContains asserts an error with the given code whose message contains substr.
func expectAnalyzerErrorContains(t *testing.T, input string, code diagnostics.ErrorCode, substr string) {
	t.Helper()
	e := expectAnalyzerError(t, input, code)
	if !strings.Contains(e.Message, substr) {
		t.Errorf("expected error message to contain %q, got: %s", substr, e.Error())
	}
}

func expectNoAnalyzerErrors(t *testing.T, input string) (*ast.Program, *Info) {
	t.Helper()
	prog, info, errs := analyzeSource(t, input)
	if len(errs) > 0 {
		t.Fatalf("expected no errors, got:\n%s\ninput: %s", formatErrors(errs), input)
	}
	return prog, info
}

// ---------------------------------------------------------------------------
// Valid programs
// ---------------------------------------------------------------------------

func TestValidPrograms(t *testing.T) {
	inputs := []string{
		"fun add(a, b) { return a + b; } print(add(2, 3));",
		// forward and mutual recursion
		"fun even(n): bool { if (n == 0) return true; return odd(n - 1); } fun odd(n): bool { if (n == 0) return false; return even(n - 1); } print(even(10));",
		// shadowing in nested blocks
		"var x = 1; { var x = true; print(x); } print(x + 1);",
		// functions see the globals declared above them
		"var counter = 41; fun get() { return counter; } counter = counter + 1; print(get());",
		// and may be called before those globals are initialized
		"print(get()); var counter = 41; fun get() { return counter; }",
		// void function called as a statement
		"fun log(v) { print(v); } log(3);",
		// constant-true loop needs no trailing return
		"fun spin(): int { while (true) { } }",
		// if/else that returns on both paths
		"fun sign(n) { if (n < 0) return -1; else if (n > 0) return 1; else return 0; }",
		"print(true == !false && 1 != 2 || 3 % 2 >= 1);",
	}
	for i, input := range inputs {
		t.Run(fmt.Sprintf("program_%d", i), func(t *testing.T) {
			expectNoAnalyzerErrors(t, input)
		})
	}
}

func TestAnnotations(t *testing.T) {
	prog, info := expectNoAnalyzerErrors(t, "fun f(a, flag: bool) { var y = flag; return a; } var g = f(1, true) < 2;")

	fn := info.SymbolOf(prog.Functions[0].Name)
	if fn == nil || fn.Kind != symbols.FunctionSymbol {
		t.Fatalf("function f not resolved")
	}
	if fn.Signature.Return != typesystem.Int {
		t.Errorf("omitted return type with 'return a' should default to int, got %s", fn.Signature.Return)
	}
	if got := fn.Signature.Params; len(got) != 2 || got[0] != typesystem.Int || got[1] != typesystem.Bool {
		t.Errorf("params = %v", got)
	}
	if fn.Signature.Locals != 3 {
		t.Errorf("locals = %d, want 3 (two params, one local)", fn.Signature.Locals)
	}

	body := prog.Functions[0].Body
	y := info.SymbolOf(body.Statements[0].(*ast.VarDecl).Name)
	if y.Type != typesystem.Bool || y.Slot != 2 || y.Global {
		t.Errorf("y = %v", y)
	}

	g := prog.Statements[0].(*ast.VarDecl)
	if info.TypeOf(g.Value) != typesystem.Bool {
		t.Errorf("comparison should be bool, got %s", info.TypeOf(g.Value))
	}
	gsym := info.SymbolOf(g.Name)
	if !gsym.Global || gsym.Type != typesystem.Bool || info.Globals != 1 {
		t.Errorf("g = %v, globals = %d", gsym, info.Globals)
	}

	ret := body.Statements[1].(*ast.Return)
	if use := info.SymbolOf(ret.Value.(*ast.Identifier)); use == nil || use.Kind != symbols.ParameterSymbol || use.Slot != 0 {
		t.Errorf("'a' should resolve to parameter slot 0, got %v", use)
	}
}

func TestVoidDefault(t *testing.T) {
	prog, info := expectNoAnalyzerErrors(t, "fun hello() { print(1); return; }")
	if got := info.SymbolOf(prog.Functions[0].Name).Signature.Return; got != typesystem.Void {
		t.Errorf("return type = %s, want void", got)
	}
}

// ---------------------------------------------------------------------------
// D001: Duplicate declaration
// ---------------------------------------------------------------------------

func TestD001_DuplicateVariable(t *testing.T) {
	e := expectAnalyzerError(t, "var x = 1;\nvar x = 2;", diagnostics.ErrD001)
	if e.Pos.Line != 2 || e.Pos.Column != 5 {
		t.Errorf("error at %s, want 2:5", e.Pos)
	}
}

func TestD001_DuplicateFunction(t *testing.T) {
	expectAnalyzerError(t, "fun f() { } fun f() { }", diagnostics.ErrD001)
}

func TestD001_ParameterRedeclaredInBody(t *testing.T) {
	expectAnalyzerError(t, "fun f(a) { var a = 2; return a; }", diagnostics.ErrD001)
}

func TestD001_DuplicateParameter(t *testing.T) {
	expectAnalyzerError(t, "fun f(a, a) { return a; }", diagnostics.ErrD001)
}

func TestD001_GlobalClashesWithFunction(t *testing.T) {
	expectAnalyzerError(t, "fun f() { } var f = 1;", diagnostics.ErrD001)
}

func TestD001_BuiltinPrint(t *testing.T) {
	expectAnalyzerErrorContains(t, "fun print(x) { }", diagnostics.ErrD001, "builtin")
}

// ---------------------------------------------------------------------------
// D002: Undeclared identifier
// ---------------------------------------------------------------------------

func TestD002_AtAnyNestingDepth(t *testing.T) {
	for depth := 0; depth < 5; depth++ {
		src := "fun f() {\n" + strings.Repeat("{\n", depth) + "print(missing);\n" + strings.Repeat("}\n", depth) + "}"
		e := expectAnalyzerError(t, src, diagnostics.ErrD002)
		wantLine := 2 + depth
		if e.Pos.Line != wantLine || e.Pos.Column != 7 {
			t.Errorf("depth %d: error at %s, want %d:7", depth, e.Pos, wantLine)
		}
	}
}

func TestD002_BlockVariableOutOfScope(t *testing.T) {
	expectAnalyzerError(t, "{ var inner = 1; } print(inner);", diagnostics.ErrD002)
}

func TestD002_GlobalDeclaredBelowFunction(t *testing.T) {
	e := expectAnalyzerError(t, "fun f() { return x; }\nprint(f());\nvar x = 5;", diagnostics.ErrD002)
	if e.Pos.Line != 1 || e.Pos.Column != 18 {
		t.Errorf("error at %s, want 1:18", e.Pos)
	}
}

func TestGlobalSlotsOutliveBlocks(t *testing.T) {
	prog, info := expectNoAnalyzerErrors(t, "{ var a = 7; } var b = 2; fun f() { return b; }")
	a := info.SymbolOf(prog.Statements[0].(*ast.Block).Statements[0].(*ast.VarDecl).Name)
	b := info.SymbolOf(prog.Statements[1].(*ast.VarDecl).Name)
	if a.Slot == b.Slot || info.Globals != 2 {
		t.Errorf("a slot %d, b slot %d, globals %d", a.Slot, b.Slot, info.Globals)
	}
}

func TestD002_InitializerCannotSeeItself(t *testing.T) {
	expectAnalyzerError(t, "var x = x + 1;", diagnostics.ErrD002)
}

func TestD002_UseBeforeDeclaration(t *testing.T) {
	expectAnalyzerError(t, "print(later); var later = 1;", diagnostics.ErrD002)
}

func TestD002_UnknownFunction(t *testing.T) {
	expectAnalyzerErrorContains(t, "nothing(1);", diagnostics.ErrD002, "nothing")
}

// ---------------------------------------------------------------------------
// T001: Type mismatch
// ---------------------------------------------------------------------------

func TestT001_TypeMismatch(t *testing.T) {
	tests := []struct {
		name, input, fragment string
	}{
		{"arith_bool", "print(1 + true);", "requires int operands"},
		{"compare_bool", "print(true < false);", "requires int operands"},
		{"logic_int", "print(1 && true);", "requires bool operands"},
		{"equality_mixed", "print(1 == true);", "same type"},
		{"negate_bool", "print(-true);", "operator -"},
		{"not_int", "print(!1);", "operator !"},
		{"if_condition", "if (1) print(1);", "if condition must be bool"},
		{"while_condition", "while (0) { }", "while condition must be bool"},
		{"annotated_init", "var b: bool = 3;", "cannot initialize 'b'"},
		{"assign", "var b = true; b = 1;", "cannot assign"},
		{"argument", "fun f(x: bool) { } f(1);", "argument 1 of 'f' must be bool"},
		{"return_type", "fun f(): bool { return 1; }", "returns bool, got int"},
		{"return_value_from_void", "fun f(): void { return 1; }", "cannot return a value"},
		{"bare_return_in_int", "fun f(): int { return; }", "must return a value"},
		{"void_as_value", "fun v() { } var x = v();", "returns no value"},
		{"void_argument", "fun v() { } print(v());", "returns no value"},
		{"call_variable", "var x = 1; x(2);", "not a function"},
		{"function_as_value", "fun f() { } var x = f;", "used as a value"},
		{"assign_function", "fun f() { } f = 1;", "cannot assign to function"},
		{"void_variable", "var x: void = 1;", "cannot have type void"},
		{"void_parameter", "fun f(x: void) { }", "cannot have type void"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectAnalyzerErrorContains(t, tt.input, diagnostics.ErrT001, tt.fragment)
		})
	}
}

// ---------------------------------------------------------------------------
// T002: Arity mismatch
// ---------------------------------------------------------------------------

func TestT002_ArityMismatch(t *testing.T) {
	e := expectAnalyzerError(t, "fun add(a, b) { return a + b; }\nprint(add(1));", diagnostics.ErrT002)
	if e.Pos.Line != 2 || e.Pos.Column != 7 {
		t.Errorf("error at %s, want 2:7", e.Pos)
	}
	expectAnalyzerErrorContains(t, "print(1, 2);", diagnostics.ErrT002, "expects 1 argument")
}

func TestT002_ReportedBeforeArgumentTypes(t *testing.T) {
	_, _, errs := analyzeSource(t, "fun f(x: bool) { } f(1, 2);")
	for _, e := range errs {
		if e.Code == diagnostics.ErrT001 {
			t.Errorf("argument types must not be checked on arity mismatch: %s", e)
		}
	}
}

// ---------------------------------------------------------------------------
// T003: Missing return
// ---------------------------------------------------------------------------

func TestT003_MissingReturn(t *testing.T) {
	inputs := []string{
		"fun f(n): int { if (n > 0) return 1; }",
		"fun f(n) { while (n > 0) { return 1; } }",
		"fun f(n): bool { if (n > 0) return true; else { print(n); } }",
	}
	for _, input := range inputs {
		expectAnalyzerError(t, input, diagnostics.ErrT003)
	}
}

// ---------------------------------------------------------------------------
// Error list behaviour
// ---------------------------------------------------------------------------

func TestAllErrorsReportedInOrder(t *testing.T) {
	input := "print(a);\nvar x: bool = 1;\nfun f() { return g(); }\nprint(f(1));"
	_, _, errs := analyzeSource(t, input)

	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = fmt.Sprintf("%d:%s", e.Pos.Line, e.Code)
	}
	want := "1:D002,2:T001,3:D002,4:T002"
	if got := strings.Join(codes, ","); got != want {
		t.Errorf("errors = %s, want %s\n%s", got, want, formatErrors(errs))
	}
}

func TestNoCascadeFromUndeclared(t *testing.T) {
	_, _, errs := analyzeSource(t, "var y = missing + 1; var z: bool = y < 2;")
	if len(errs) != 1 || errs[0].Code != diagnostics.ErrD002 {
		t.Errorf("expected a single D002, got:\n%s", formatErrors(errs))
	}
}
