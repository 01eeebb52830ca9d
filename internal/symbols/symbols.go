package symbols

import (
	"fmt"
	"strings"

	"github.com/funvibe/foolvm/internal/token"
	"github.com/funvibe/foolvm/internal/typesystem"
)

type SymbolKind int

const (
	VariableSymbol SymbolKind = iota
	ParameterSymbol
	FunctionSymbol
)

func (k SymbolKind) String() string {
	switch k {
	case VariableSymbol:
		return "variable"
	case ParameterSymbol:
		return "parameter"
	case FunctionSymbol:
		return "function"
	}
	return fmt.Sprintf("SymbolKind(%d)", int(k))
}

// Symbol is a declared name. For variables and parameters Slot indexes the
// owning frame (or the global area when Global is set); for functions it is
// the index into the program's function table.
type Symbol struct {
	Name      string
	Type      typesystem.Type // declared type; for functions, the return type
	Kind      SymbolKind
	Depth     int // depth of the declaring scope, 0 = global
	Slot      int
	Global    bool
	Pos       token.Position
	Signature *Signature // functions only
}

// Signature describes a callable.
type Signature struct {
	Params []typesystem.Type // Invalid accepts any value type
	Return typesystem.Type
	Locals int // frame size, parameters included
	// Builtin functions have no code; calls lower to a dedicated opcode.
	Builtin bool
}

func (s *Signature) Arity() int {
	return len(s.Params)
}

func (s *Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		if p == typesystem.Invalid {
			params[i] = "any"
			continue
		}
		params[i] = p.String()
	}
	return fmt.Sprintf("(%s): %s", strings.Join(params, ", "), s.Return)
}

func (s *Symbol) String() string {
	storage := "local"
	if s.Global {
		storage = "global"
	}
	if s.Kind == FunctionSymbol {
		return fmt.Sprintf("%s %s%s #%d", s.Kind, s.Name, s.Signature, s.Slot)
	}
	return fmt.Sprintf("%s %s: %s (%s %d, depth %d)", s.Kind, s.Name, s.Type, storage, s.Slot, s.Depth)
}
