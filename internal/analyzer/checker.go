package analyzer

import (
	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/diagnostics"
	"github.com/funvibe/foolvm/internal/symbols"
	"github.com/funvibe/foolvm/internal/token"
	"github.com/funvibe/foolvm/internal/typesystem"
)

func (a *Analyzer) errorf(code diagnostics.ErrorCode, pos token.Position, format string, args ...interface{}) {
	a.errors.Addf(code, pos, format, args...)
}

// check walks the program in the same order as resolve, so a variable whose
// type comes from its initializer is typed before any use is checked.
func (a *Analyzer) check(prog *ast.Program) {
	a.function = nil
	for _, stmt := range prog.Statements {
		a.checkStmt(stmt)
	}
	for _, fn := range prog.Functions {
		a.checkFunction(fn)
	}
}

func (a *Analyzer) checkFunction(fn *ast.FunctionDecl) {
	sym := a.info.ResolutionMap[fn.Name]
	if sym == nil {
		return
	}
	for _, p := range fn.Params {
		if p.Type != nil && p.Type.Type == typesystem.Void {
			a.errorf(diagnostics.ErrT001, p.Type.Token.Pos(), "parameter '%s' cannot have type void", p.Name.Name)
			if psym := a.info.ResolutionMap[p.Name]; psym != nil {
				psym.Type = typesystem.Invalid
			}
		}
	}

	a.function = sym
	for _, stmt := range fn.Body.Statements {
		a.checkStmt(stmt)
	}
	a.function = nil

	if sym.Signature.Return != typesystem.Void && !blockTerminates(fn.Body) {
		a.errorf(diagnostics.ErrT003, fn.Name.Pos(),
			"function '%s' must return a value of type %s on every path", fn.Name.Name, sym.Signature.Return)
	}
}

func (a *Analyzer) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		valueType := a.checkValue(s.Value)
		sym := a.info.ResolutionMap[s.Name]
		if s.Type != nil {
			if s.Type.Type == typesystem.Void {
				a.errorf(diagnostics.ErrT001, s.Type.Token.Pos(), "variable '%s' cannot have type void", s.Name.Name)
				if sym != nil {
					sym.Type = typesystem.Invalid
				}
			} else if !typesystem.Assignable(s.Type.Type, valueType) {
				a.errorf(diagnostics.ErrT001, s.Value.Pos(),
					"cannot initialize '%s' of type %s with a value of type %s", s.Name.Name, s.Type.Type, valueType)
			}
		} else if sym != nil {
			sym.Type = valueType
		}

	case *ast.Block:
		for _, inner := range s.Statements {
			a.checkStmt(inner)
		}

	case *ast.If:
		a.checkCondition(s.Cond, "if")
		a.checkStmt(s.Then)
		if s.Else != nil {
			a.checkStmt(s.Else)
		}

	case *ast.While:
		a.checkCondition(s.Cond, "while")
		a.checkStmt(s.Body)

	case *ast.Return:
		a.checkReturn(s)

	case *ast.Assign:
		valueType := a.checkValue(s.Value)
		sym := a.info.ResolutionMap[s.Target]
		if sym == nil {
			return
		}
		if sym.Kind == symbols.FunctionSymbol {
			a.errorf(diagnostics.ErrT001, s.Target.Pos(), "cannot assign to function '%s'", sym.Name)
			return
		}
		if !typesystem.Assignable(sym.Type, valueType) {
			a.errorf(diagnostics.ErrT001, s.Value.Pos(),
				"cannot assign a value of type %s to '%s' of type %s", valueType, sym.Name, sym.Type)
		}

	case *ast.ExprStmt:
		a.checkExpr(s.X)
	}
}

func (a *Analyzer) checkCondition(cond ast.Expr, keyword string) {
	t := a.checkValue(cond)
	if t != typesystem.Invalid && t != typesystem.Bool {
		a.errorf(diagnostics.ErrT001, cond.Pos(), "%s condition must be bool, got %s", keyword, t)
	}
}

func (a *Analyzer) checkReturn(s *ast.Return) {
	if a.function == nil {
		// Rejected by the parser; nothing to check against.
		return
	}
	want := a.function.Signature.Return
	if s.Value == nil {
		if want != typesystem.Void {
			a.errorf(diagnostics.ErrT001, s.Pos(), "function '%s' must return a value of type %s", a.function.Name, want)
		}
		return
	}
	got := a.checkValue(s.Value)
	if want == typesystem.Void {
		a.errorf(diagnostics.ErrT001, s.Value.Pos(), "void function '%s' cannot return a value", a.function.Name)
		return
	}
	if !typesystem.Assignable(want, got) {
		a.errorf(diagnostics.ErrT001, s.Value.Pos(),
			"function '%s' returns %s, got %s", a.function.Name, want, got)
	}
}

// checkValue checks an expression used where a value is required. A void
// call is reported and typed Invalid.
func (a *Analyzer) checkValue(expr ast.Expr) typesystem.Type {
	t := a.checkExpr(expr)
	if t == typesystem.Void {
		name := "expression"
		if call, ok := expr.(*ast.Call); ok {
			name = "'" + call.Callee.Name + "'"
		}
		a.errorf(diagnostics.ErrT001, expr.Pos(), "%s returns no value", name)
		return typesystem.Invalid
	}
	return t
}

// checkExpr types expr post-order and records the result in TypeMap.
func (a *Analyzer) checkExpr(expr ast.Expr) typesystem.Type {
	var t typesystem.Type
	switch e := expr.(type) {
	case *ast.Literal:
		t = e.Type
	case *ast.Identifier:
		t = a.checkIdentifier(e)
	case *ast.UnaryExpr:
		t = a.checkUnary(e)
	case *ast.BinaryExpr:
		t = a.checkBinary(e)
	case *ast.Call:
		t = a.checkCall(e)
	}
	a.info.TypeMap[expr] = t
	return t
}

func (a *Analyzer) checkIdentifier(id *ast.Identifier) typesystem.Type {
	sym := a.info.ResolutionMap[id]
	if sym == nil {
		return typesystem.Invalid
	}
	if sym.Kind == symbols.FunctionSymbol {
		a.errorf(diagnostics.ErrT001, id.Pos(), "function '%s' used as a value", id.Name)
		return typesystem.Invalid
	}
	return sym.Type
}

func (a *Analyzer) checkUnary(e *ast.UnaryExpr) typesystem.Type {
	operand := a.checkValue(e.Operand)
	want, result := typesystem.Int, typesystem.Int
	if e.Op == token.BANG {
		want, result = typesystem.Bool, typesystem.Bool
	}
	if operand != typesystem.Invalid && operand != want {
		a.errorf(diagnostics.ErrT001, e.Pos(), "operator %s requires %s operand, got %s", e.Token.Lexeme, want, operand)
	}
	return result
}

func (a *Analyzer) checkBinary(e *ast.BinaryExpr) typesystem.Type {
	left := a.checkValue(e.Left)
	right := a.checkValue(e.Right)
	suppressed := left == typesystem.Invalid || right == typesystem.Invalid

	switch e.Op {
	case token.PLUS, token.MINUS, token.ASTERISK, token.SLASH, token.PERCENT:
		if !suppressed && (left != typesystem.Int || right != typesystem.Int) {
			a.operandError(e, "int", left, right)
		}
		return typesystem.Int

	case token.LT, token.LTE, token.GT, token.GTE:
		if !suppressed && (left != typesystem.Int || right != typesystem.Int) {
			a.operandError(e, "int", left, right)
		}
		return typesystem.Bool

	case token.EQ, token.NOT_EQ:
		if !suppressed && left != right {
			a.errorf(diagnostics.ErrT001, e.Pos(),
				"operator %s requires operands of the same type, got %s and %s", e.Token.Lexeme, left, right)
		}
		return typesystem.Bool

	case token.AND, token.OR:
		if !suppressed && (left != typesystem.Bool || right != typesystem.Bool) {
			a.operandError(e, "bool", left, right)
		}
		return typesystem.Bool
	}
	return typesystem.Invalid
}

func (a *Analyzer) operandError(e *ast.BinaryExpr, want string, left, right typesystem.Type) {
	a.errorf(diagnostics.ErrT001, e.Pos(),
		"operator %s requires %s operands, got %s and %s", e.Token.Lexeme, want, left, right)
}

func (a *Analyzer) checkCall(call *ast.Call) typesystem.Type {
	argTypes := make([]typesystem.Type, len(call.Args))
	for i, arg := range call.Args {
		argTypes[i] = a.checkValue(arg)
	}

	sym := a.info.ResolutionMap[call.Callee]
	if sym == nil {
		return typesystem.Invalid
	}
	if sym.Kind != symbols.FunctionSymbol {
		a.errorf(diagnostics.ErrT001, call.Pos(), "'%s' is a %s, not a function", sym.Name, sym.Kind)
		return typesystem.Invalid
	}

	sig := sym.Signature
	if len(call.Args) != sig.Arity() {
		a.errorf(diagnostics.ErrT002, call.Pos(),
			"function '%s' expects %d argument(s), got %d", sym.Name, sig.Arity(), len(call.Args))
		return sig.Return
	}
	for i, param := range sig.Params {
		if !typesystem.Assignable(param, argTypes[i]) {
			a.errorf(diagnostics.ErrT001, call.Args[i].Pos(),
				"argument %d of '%s' must be %s, got %s", i+1, sym.Name, param, argTypes[i])
		}
	}
	return sig.Return
}

// blockTerminates reports whether control can never fall off the end of
// the statement list.
func blockTerminates(b *ast.Block) bool {
	for _, stmt := range b.Statements {
		if terminates(stmt) {
			return true
		}
	}
	return false
}

func terminates(stmt ast.Stmt) bool {
	switch s := stmt.(type) {
	case *ast.Return:
		return true
	case *ast.Block:
		return blockTerminates(s)
	case *ast.If:
		return s.Else != nil && terminates(s.Then) && terminates(s.Else)
	case *ast.While:
		// Without break, only a constant-true loop never exits normally.
		lit, ok := s.Cond.(*ast.Literal)
		return ok && lit.Type == typesystem.Bool && lit.Value == 1
	}
	return false
}
