package codegen

import (
	"fmt"

	"github.com/funvibe/foolvm/internal/token"
)

// InvariantViolation reports a compiler defect: an unbalanced operand
// stack, an unresolved label, or an identifier the analyzer did not bind.
// It is never a user error.
type InvariantViolation struct {
	Message string
	Pos     token.Position // source position being compiled, if known
	PC      int            // instruction offset being emitted
}

func (e *InvariantViolation) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("internal compiler error at %s (pc %d): %s", e.Pos, e.PC, e.Message)
	}
	return fmt.Sprintf("internal compiler error (pc %d): %s", e.PC, e.Message)
}

func (c *Compiler) violation(format string, args ...interface{}) {
	panic(&InvariantViolation{
		Message: fmt.Sprintf(format, args...),
		Pos:     c.pos,
		PC:      len(c.code),
	})
}
