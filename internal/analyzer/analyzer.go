// Package analyzer resolves names and checks types over an AST.
//
// Analysis runs in two walks. The resolver builds the scope tree, declares
// every symbol and binds each identifier to its declaration. The checker
// then annotates every expression with its type. Both walks report into one
// error list and neither stops at the first error.
package analyzer

import (
	"github.com/tliron/commonlog"

	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/diagnostics"
	"github.com/funvibe/foolvm/internal/symbols"
	"github.com/funvibe/foolvm/internal/typesystem"
)

var log = commonlog.GetLogger("foolvm.analyzer")

// Info is the result of analysis, consumed by the code generator.
type Info struct {
	Global *symbols.Scope

	// TypeMap holds the type of every checked expression.
	TypeMap map[ast.Expr]typesystem.Type

	// ResolutionMap binds identifiers to symbols: uses resolve to their
	// declaration, declaring identifiers to the symbol they introduce.
	ResolutionMap map[*ast.Identifier]*symbols.Symbol

	// Functions lists user functions in function table order.
	Functions []*symbols.Symbol

	// Globals is the number of global variable slots.
	Globals int
}

// SymbolOf returns the symbol bound to id, or nil.
func (info *Info) SymbolOf(id *ast.Identifier) *symbols.Symbol {
	return info.ResolutionMap[id]
}

// TypeOf returns the checked type of e, Invalid if unknown.
func (info *Info) TypeOf(e ast.Expr) typesystem.Type {
	return info.TypeMap[e]
}

// Analyzer performs semantic analysis on one program.
type Analyzer struct {
	info   *Info
	errors diagnostics.List

	// resolver state
	scope *symbols.Scope

	// checker state
	function *symbols.Symbol
}

func New() *Analyzer {
	global := symbols.NewGlobalScope()
	return &Analyzer{
		info: &Info{
			Global:        global,
			TypeMap:       make(map[ast.Expr]typesystem.Type),
			ResolutionMap: make(map[*ast.Identifier]*symbols.Symbol),
		},
		scope: global,
	}
}

// Analyze resolves and checks prog. The returned Info is complete only when
// the error list is empty.
func (a *Analyzer) Analyze(prog *ast.Program) (*Info, []*diagnostics.DiagnosticError) {
	a.resolve(prog)
	a.check(prog)

	errs := a.errors.Errors()
	for _, e := range errs {
		if e.File == "" {
			e.File = prog.File
		}
	}
	log.Debugf("analyzed %d functions, %d globals, %d errors", len(a.info.Functions), a.info.Globals, len(errs))
	return a.info, errs
}

func (a *Analyzer) report(err error) {
	if de, ok := err.(*diagnostics.DiagnosticError); ok {
		a.errors.Add(de)
	}
}
