// Package typesystem defines the value types of the source language.
package typesystem

import "github.com/funvibe/foolvm/internal/config"

// Type is a source-level value type. Invalid marks an expression whose type
// could not be determined; checks against it are suppressed so one error
// does not cascade.
type Type int

const (
	Invalid Type = iota
	Int
	Bool
	Void
)

func (t Type) String() string {
	switch t {
	case Int:
		return config.IntTypeName
	case Bool:
		return config.BoolTypeName
	case Void:
		return config.VoidTypeName
	}
	return "<invalid>"
}

// IsValue reports whether values of t can be stored or passed.
func (t Type) IsValue() bool {
	return t == Int || t == Bool
}

// FromName maps a type keyword to its Type.
func FromName(name string) (Type, bool) {
	switch name {
	case config.IntTypeName:
		return Int, true
	case config.BoolTypeName:
		return Bool, true
	case config.VoidTypeName:
		return Void, true
	}
	return Invalid, false
}

// Assignable reports whether a value of type from may be stored where to is
// expected. Invalid is assignable both ways.
func Assignable(to, from Type) bool {
	if to == Invalid || from == Invalid {
		return true
	}
	return to == from && to.IsValue()
}
