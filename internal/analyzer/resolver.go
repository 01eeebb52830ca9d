package analyzer

import (
	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/symbols"
	"github.com/funvibe/foolvm/internal/typesystem"
)

// resolve builds the scope tree. Functions are declared first so calls may
// refer to functions defined later in the file. Everything else resolves in
// file order: a function body sees only the globals declared above it.
func (a *Analyzer) resolve(prog *ast.Program) {
	for _, fn := range prog.Functions {
		a.declareFunction(fn)
	}

	for _, decl := range prog.Decls {
		switch d := decl.(type) {
		case *ast.FunctionDecl:
			a.resolveFunction(d)
		case ast.Stmt:
			a.resolveStmt(d)
		}
	}
	a.info.Globals = a.info.Global.Frame().Size()
}

func (a *Analyzer) declareFunction(fn *ast.FunctionDecl) {
	sig := &symbols.Signature{Return: functionReturnType(fn)}
	for _, p := range fn.Params {
		sig.Params = append(sig.Params, paramType(p))
	}

	sym, err := a.scope.Declare(fn.Name.Name, sig.Return, symbols.FunctionSymbol, fn.Name.Pos())
	if err != nil {
		a.report(err)
		return
	}
	sym.Signature = sig
	a.info.ResolutionMap[fn.Name] = sym
	a.info.Functions = append(a.info.Functions, sym)
}

// functionReturnType applies the default for an omitted return type: int
// when some return carries a value, void otherwise.
func functionReturnType(fn *ast.FunctionDecl) typesystem.Type {
	if fn.ReturnType != nil {
		return fn.ReturnType.Type
	}
	if fn.ReturnsValue() {
		return typesystem.Int
	}
	return typesystem.Void
}

func paramType(p *ast.Param) typesystem.Type {
	if p.Type == nil {
		return typesystem.Int
	}
	return p.Type.Type
}

func (a *Analyzer) resolveFunction(fn *ast.FunctionDecl) {
	sym := a.info.ResolutionMap[fn.Name]

	a.scope = a.scope.Enter(symbols.ScopeFunction)
	a.scope.Owner = sym

	for _, p := range fn.Params {
		psym, err := a.scope.Declare(p.Name.Name, paramType(p), symbols.ParameterSymbol, p.Name.Pos())
		if err != nil {
			a.report(err)
			continue
		}
		a.info.ResolutionMap[p.Name] = psym
	}

	// The body shares the function scope, so a local may not redeclare a
	// parameter.
	for _, stmt := range fn.Body.Statements {
		a.resolveStmt(stmt)
	}

	if sym != nil {
		sym.Signature.Locals = a.scope.Frame().Size()
	}
	a.scope = a.scope.Exit()
}

func (a *Analyzer) resolveStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		// The initializer cannot see the variable it initializes.
		a.resolveExpr(s.Value)
		typ := typesystem.Invalid
		if s.Type != nil {
			typ = s.Type.Type
		}
		sym, err := a.scope.Declare(s.Name.Name, typ, symbols.VariableSymbol, s.Name.Pos())
		if err != nil {
			a.report(err)
			return
		}
		a.info.ResolutionMap[s.Name] = sym

	case *ast.Block:
		a.scope = a.scope.Enter(symbols.ScopeBlock)
		for _, inner := range s.Statements {
			a.resolveStmt(inner)
		}
		a.scope = a.scope.Exit()

	case *ast.If:
		a.resolveExpr(s.Cond)
		a.resolveStmt(s.Then)
		if s.Else != nil {
			a.resolveStmt(s.Else)
		}

	case *ast.While:
		a.resolveExpr(s.Cond)
		a.resolveStmt(s.Body)

	case *ast.Return:
		if s.Value != nil {
			a.resolveExpr(s.Value)
		}

	case *ast.Assign:
		a.resolveIdentifier(s.Target)
		a.resolveExpr(s.Value)

	case *ast.ExprStmt:
		a.resolveExpr(s.X)
	}
}

func (a *Analyzer) resolveExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.Identifier:
		a.resolveIdentifier(e)
	case *ast.BinaryExpr:
		a.resolveExpr(e.Left)
		a.resolveExpr(e.Right)
	case *ast.UnaryExpr:
		a.resolveExpr(e.Operand)
	case *ast.Call:
		a.resolveIdentifier(e.Callee)
		for _, arg := range e.Args {
			a.resolveExpr(arg)
		}
	case *ast.Literal:
	}
}

func (a *Analyzer) resolveIdentifier(id *ast.Identifier) {
	sym, err := a.scope.Resolve(id.Name, id.Pos())
	if err != nil {
		a.report(err)
		return
	}
	a.info.ResolutionMap[id] = sym
}
