package vm

import "fmt"

// Status is the run state of a machine.
type Status int

const (
	Running Status = iota
	Halted         // terminal, successful
	Faulted        // terminal, carries a Fault
)

func (s Status) String() string {
	switch s {
	case Running:
		return "Running"
	case Halted:
		return "Halted"
	case Faulted:
		return "Faulted"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type FaultCode int

const (
	StackUnderflow FaultCode = iota + 1
	StackOverflow
	InvalidOpcode
	OutOfBoundsJump
	DivisionByZero
	InvalidCall
	// Aborted is forced by the host: step budget exhausted or context
	// cancelled.
	Aborted
)

var faultNames = map[FaultCode]string{
	StackUnderflow:  "StackUnderflow",
	StackOverflow:   "StackOverflow",
	InvalidOpcode:   "InvalidOpcode",
	OutOfBoundsJump: "OutOfBoundsJump",
	DivisionByZero:  "DivisionByZero",
	InvalidCall:     "InvalidCall",
	Aborted:         "Aborted",
}

func (c FaultCode) String() string {
	if name, ok := faultNames[c]; ok {
		return name
	}
	return fmt.Sprintf("FaultCode(%d)", int(c))
}

// Fault is a runtime error. Execution is deterministic, so rerunning the
// same program with the same configuration reproduces the same fault.
type Fault struct {
	Code    FaultCode
	PC      int // offset of the faulting instruction
	Line    int // source line of PC, 0 without debug info
	Frames  int // call depth at the fault
	Message string
	Cause   error // context error for Aborted, otherwise nil
}

func (f *Fault) Error() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s at pc %d (line %d): %s", f.Code, f.PC, f.Line, f.Message)
	}
	return fmt.Sprintf("%s at pc %d: %s", f.Code, f.PC, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Cause
}
