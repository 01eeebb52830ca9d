package symbols

import (
	"github.com/funvibe/foolvm/internal/config"
	"github.com/funvibe/foolvm/internal/diagnostics"
	"github.com/funvibe/foolvm/internal/token"
	"github.com/funvibe/foolvm/internal/typesystem"
)

type ScopeType int

const (
	ScopeGlobal   ScopeType = iota // top-level code and functions
	ScopeFunction                  // parameters and the function body
	ScopeBlock                     // nested { } blocks
)

// Frame allocates storage slots. A function scope owns one Frame; nested
// block scopes draw from it, so the slots of one function stay contiguous.
// Inside a function, slots of an exited block are reused by later siblings.
// Global slots are never reused: a function body may still refer to a
// global declared after a block closed.
type Frame struct {
	next int
	size int
}

// Size is the number of slots the frame needs: the high-water mark.
func (f *Frame) Size() int {
	return f.size
}

func (f *Frame) alloc() int {
	slot := f.next
	f.next++
	if f.next > f.size {
		f.size = f.next
	}
	return slot
}

// Scope maps names to symbols. Parent is a non-owning back reference; the
// global scope is the root of the tree.
type Scope struct {
	kind    ScopeType
	parent  *Scope
	depth   int
	symbols map[string]*Symbol
	order   []*Symbol

	frame *Frame
	mark  int // frame.next when this scope was entered

	// Owner is the function whose body this scope belongs to; nil at top level.
	Owner *Symbol

	functions int // global scope only: next function table index
}

// NewGlobalScope returns a root scope with the builtins declared.
func NewGlobalScope() *Scope {
	s := &Scope{
		kind:    ScopeGlobal,
		symbols: make(map[string]*Symbol),
		frame:   &Frame{},
	}
	s.symbols[config.PrintFuncName] = &Symbol{
		Name: config.PrintFuncName,
		Type: typesystem.Void,
		Kind: FunctionSymbol,
		Slot: -1,
		Signature: &Signature{
			Params:  []typesystem.Type{typesystem.Invalid},
			Return:  typesystem.Void,
			Builtin: true,
		},
	}
	return s
}

func (s *Scope) Kind() ScopeType { return s.kind }
func (s *Scope) Parent() *Scope  { return s.parent }
func (s *Scope) Depth() int      { return s.depth }
func (s *Scope) Frame() *Frame   { return s.frame }

// Symbols returns the symbols declared directly in s, in declaration order.
// Builtins are not included.
func (s *Scope) Symbols() []*Symbol {
	return s.order
}

// Enter creates a child scope. Function scopes start a fresh frame; block
// scopes share the enclosing one.
func (s *Scope) Enter(kind ScopeType) *Scope {
	child := &Scope{
		kind:    kind,
		parent:  s,
		depth:   s.depth + 1,
		symbols: make(map[string]*Symbol),
		Owner:   s.Owner,
	}
	if kind == ScopeFunction {
		child.frame = &Frame{}
	} else {
		child.frame = s.frame
		child.mark = s.frame.next
	}
	return child
}

// Exit leaves s and returns its parent. Slots taken by a block inside a
// function are released for reuse by later declarations.
func (s *Scope) Exit() *Scope {
	if s.kind == ScopeBlock && s.Owner != nil {
		s.frame.next = s.mark
	}
	return s.parent
}

// Declare adds name to s. Variables and parameters get the next free slot
// of the scope's frame; functions get the next function table index.
// Redeclaring a name in the same scope fails with DuplicateDeclaration;
// shadowing an outer declaration is allowed.
func (s *Scope) Declare(name string, typ typesystem.Type, kind SymbolKind, pos token.Position) (*Symbol, error) {
	if prev, ok := s.symbols[name]; ok {
		if prev.Signature != nil && prev.Signature.Builtin {
			return nil, diagnostics.NewError(diagnostics.ErrD001, pos,
				"'%s' is already declared as a builtin function", name)
		}
		return nil, diagnostics.NewError(diagnostics.ErrD001, pos,
			"'%s' is already declared in this scope (previous declaration at %s)", name, prev.Pos)
	}

	sym := &Symbol{
		Name:  name,
		Type:  typ,
		Kind:  kind,
		Depth: s.depth,
		Pos:   pos,
	}
	if kind == FunctionSymbol {
		root := s
		for root.parent != nil {
			root = root.parent
		}
		sym.Slot = root.functions
		root.functions++
	} else {
		sym.Slot = s.frame.alloc()
		sym.Global = s.Owner == nil
	}

	s.symbols[name] = sym
	s.order = append(s.order, sym)
	return sym, nil
}

// Lookup finds the nearest enclosing declaration of name.
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		if sym, ok := scope.symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// Resolve is Lookup that reports a missing name as UndeclaredIdentifier at
// pos, the position of the reference.
func (s *Scope) Resolve(name string, pos token.Position) (*Symbol, error) {
	if sym, ok := s.Lookup(name); ok {
		return sym, nil
	}
	return nil, diagnostics.NewError(diagnostics.ErrD002, pos, "undeclared identifier '%s'", name)
}
