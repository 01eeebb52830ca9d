// Package diagnostics defines the positioned compile-time errors shared by
// every front-end stage.
package diagnostics

import (
	"fmt"
	"sort"

	"github.com/funvibe/foolvm/internal/token"
)

type ErrorCode string

const (
	ErrS001 ErrorCode = "S001" // syntax error (lexer/parser)
	ErrD001 ErrorCode = "D001" // duplicate declaration
	ErrD002 ErrorCode = "D002" // undeclared identifier
	ErrT001 ErrorCode = "T001" // type mismatch
	ErrT002 ErrorCode = "T002" // arity mismatch
	ErrT003 ErrorCode = "T003" // missing return
	ErrA001 ErrorCode = "A001" // assembly syntax error
)

// Kind groups codes into the reported error classes.
type Kind string

const (
	SyntaxError      Kind = "SyntaxError"
	DeclarationError Kind = "DeclarationError"
	TypeError        Kind = "TypeError"
	AssemblyError    Kind = "AssemblyError"
)

var codeInfo = map[ErrorCode]struct {
	kind Kind
	name string
}{
	ErrS001: {SyntaxError, "SyntaxError"},
	ErrD001: {DeclarationError, "DuplicateDeclaration"},
	ErrD002: {DeclarationError, "UndeclaredIdentifier"},
	ErrT001: {TypeError, "TypeMismatch"},
	ErrT002: {TypeError, "ArityMismatch"},
	ErrT003: {TypeError, "MissingReturn"},
	ErrA001: {AssemblyError, "AssemblySyntaxError"},
}

// Kind returns the error class of the code.
func (c ErrorCode) Kind() Kind {
	return codeInfo[c].kind
}

// Name returns the descriptive name of the code, e.g. "TypeMismatch".
func (c ErrorCode) Name() string {
	if info, ok := codeInfo[c]; ok {
		return info.name
	}
	return string(c)
}

// DiagnosticError is a single compile-time error with its source position.
type DiagnosticError struct {
	Code    ErrorCode
	Pos     token.Position
	File    string
	Message string
}

func NewError(code ErrorCode, pos token.Position, format string, args ...interface{}) *DiagnosticError {
	return &DiagnosticError{
		Code:    code,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *DiagnosticError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s [%s]: %s", e.File, e.Pos.Line, e.Pos.Column, e.Code.Name(), e.Code, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s [%s]: %s", e.Pos.Line, e.Pos.Column, e.Code.Name(), e.Code, e.Message)
}

// List accumulates diagnostics, dropping duplicates reported at the same
// position with the same code.
type List struct {
	seen   map[string]bool
	errors []*DiagnosticError
}

func (l *List) Add(err *DiagnosticError) {
	key := fmt.Sprintf("%d:%d:%s", err.Pos.Line, err.Pos.Column, err.Code)
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[key] {
		return
	}
	l.seen[key] = true
	l.errors = append(l.errors, err)
}

func (l *List) Addf(code ErrorCode, pos token.Position, format string, args ...interface{}) {
	l.Add(NewError(code, pos, format, args...))
}

func (l *List) Len() int {
	return len(l.errors)
}

// Errors returns the collected diagnostics sorted by position.
func (l *List) Errors() []*DiagnosticError {
	result := make([]*DiagnosticError, len(l.errors))
	copy(result, l.errors)
	Sort(result)
	return result
}

// Sort orders diagnostics by line, then column, keeping report order for ties.
func Sort(errs []*DiagnosticError) {
	sort.SliceStable(errs, func(i, j int) bool {
		return errs[i].Pos.Before(errs[j].Pos)
	})
}
