package vm

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrQuit is the cause of the Aborted fault raised when a debugger session
// ends the run.
var ErrQuit = errors.New("debugger quit")

// Breakpoint stops execution when control enters a source line.
type Breakpoint struct {
	Line int
	Hits int
}

// Debugger inspects a machine at breakpoints. It needs programs compiled
// with line information.
type Debugger struct {
	Output io.Writer

	// OnStop is called at each breakpoint hit. The default prints the
	// location, call stack, operand stack, locals and globals.
	OnStop func(*Debugger, *Machine, Step)

	breakpoints map[int]*Breakpoint
	stepping    bool // stop at the next line entered
	quit        bool

	// last line seen at each call depth, so a breakpoint fires once per
	// entry into its line
	lastLine map[int]int
}

func NewDebugger(out io.Writer) *Debugger {
	return &Debugger{
		Output:      out,
		breakpoints: make(map[int]*Breakpoint),
		lastLine:    make(map[int]int),
	}
}

// SetBreakpoint sets a breakpoint at the given source line.
func (d *Debugger) SetBreakpoint(line int) *Breakpoint {
	bp := &Breakpoint{Line: line}
	d.breakpoints[line] = bp
	return bp
}

func (d *Debugger) RemoveBreakpoint(line int) {
	delete(d.breakpoints, line)
}

func (d *Debugger) ClearBreakpoints() {
	d.breakpoints = make(map[int]*Breakpoint)
}

// GetBreakpoints returns all breakpoints ordered by line.
func (d *Debugger) GetBreakpoints() []*Breakpoint {
	result := make([]*Breakpoint, 0, len(d.breakpoints))
	for _, bp := range d.breakpoints {
		result = append(result, bp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Line < result[j].Line })
	return result
}

// Attach installs the debugger on m, keeping any trace hook m already has.
func (d *Debugger) Attach(m *Machine) {
	prev := m.trace
	m.trace = func(s Step) {
		if prev != nil {
			prev(s)
		}
		if !d.ShouldBreak(s) {
			return
		}
		if bp, ok := d.breakpoints[s.Line]; ok {
			bp.Hits++
		}
		d.stepping = false
		if d.OnStop != nil {
			d.OnStop(d, m, s)
		} else {
			d.PrintState(m, s)
		}
		if d.quit {
			d.quit = false
			m.abort(ErrQuit)
		}
	}
}

// Continue resumes until the next breakpoint.
func (d *Debugger) Continue() { d.stepping = false }

// Step resumes until control enters another line, including lines of a
// called function.
func (d *Debugger) Step() { d.stepping = true }

// Quit ends the run with an Aborted fault once the current stop returns.
// A later run of the same machine starts afresh.
func (d *Debugger) Quit() { d.quit = true }

// ShouldBreak reports whether s enters a line with a breakpoint, or any
// line while stepping.
func (d *Debugger) ShouldBreak(s Step) bool {
	for depth := range d.lastLine {
		if depth > s.Frames {
			delete(d.lastLine, depth)
		}
	}
	last, seen := d.lastLine[s.Frames]
	d.lastLine[s.Frames] = s.Line
	if seen && last == s.Line {
		return false
	}
	if s.Line <= 0 {
		return false
	}
	_, ok := d.breakpoints[s.Line]
	return ok || d.stepping
}

// CallFrameInfo describes one activation, innermost first in GetCallStack.
type CallFrameInfo struct {
	Index        int
	FunctionName string
	Line         int
}

// GetCallStack returns the call stack at pc, innermost frame first.
func (d *Debugger) GetCallStack(m *Machine, pc int) []CallFrameInfo {
	prog := m.Program()
	var stack []CallFrameInfo

	// For the innermost frame use pc; callers wait at their return
	// address, so their line is the call site just before it.
	line := prog.Line(pc)
	for i := len(m.frames) - 1; i >= 0; i-- {
		fr := m.frames[i]
		stack = append(stack, CallFrameInfo{
			Index:        i + 1,
			FunctionName: prog.Functions[fr.Fn].Name,
			Line:         line,
		})
		line = prog.Line(fr.ReturnAddr - 1)
	}
	return append(stack, CallFrameInfo{FunctionName: "<main>", Line: line})
}

func (d *Debugger) PrintState(m *Machine, s Step) {
	d.PrintLocation(s)
	d.PrintCallStack(m, s.PC)
	d.PrintStack(m)
	d.PrintLocals(m)
	d.PrintGlobals(m)
}

func (d *Debugger) PrintLocation(s Step) {
	fmt.Fprintf(d.Output, "Breakpoint at line %d (pc %04d: %s)\n", s.Line, s.PC, s.Instruction)
}

func (d *Debugger) PrintCallStack(m *Machine, pc int) {
	fmt.Fprintf(d.Output, "Call stack:\n")
	for i, frame := range d.GetCallStack(m, pc) {
		indent := strings.Repeat("  ", i)
		fmt.Fprintf(d.Output, "%s%d. %s at line %d\n", indent, i+1, frame.FunctionName, frame.Line)
	}
}

// PrintStack prints the operand stack, top first.
func (d *Debugger) PrintStack(m *Machine) {
	if len(m.stack) == 0 {
		fmt.Fprintf(d.Output, "Stack is empty.\n")
		return
	}
	fmt.Fprintf(d.Output, "Stack (top to bottom):\n")
	for i := len(m.stack) - 1; i >= 0; i-- {
		fmt.Fprintf(d.Output, "  [%d] %d\n", i, m.stack[i])
	}
}

func (d *Debugger) PrintLocals(m *Machine) {
	fr := m.frame()
	if fr == nil || len(fr.Locals) == 0 {
		fmt.Fprintf(d.Output, "No local variables in current frame.\n")
		return
	}
	fmt.Fprintf(d.Output, "Local slots:\n")
	for i, v := range fr.Locals {
		fmt.Fprintf(d.Output, "  %d = %d\n", i, v)
	}
}

func (d *Debugger) PrintGlobals(m *Machine) {
	if len(m.globals) == 0 {
		fmt.Fprintf(d.Output, "No global variables.\n")
		return
	}
	fmt.Fprintf(d.Output, "Global slots:\n")
	for i, v := range m.globals {
		fmt.Fprintf(d.Output, "  %d = %d\n", i, v)
	}
}
