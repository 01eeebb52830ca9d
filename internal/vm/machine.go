// Package vm executes bytecode programs on a deterministic stack machine.
//
// The machine has one operand stack shared by all activations and a frame
// stack holding each call's locals. Every push is checked against the
// configured maximum stack depth and every call against the maximum frame
// depth, so runaway programs fault with StackOverflow instead of
// exhausting memory.
package vm

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/config"
)

var log = commonlog.GetLogger("foolvm.vm")

// Frame is one function activation.
type Frame struct {
	ReturnAddr int
	Locals     []int64 // sized to the callee's local count
	BaseDepth  int     // caller's operand stack depth once the arguments are popped
	Fn         int     // function table index
}

// Step describes the machine just before an instruction executes.
type Step struct {
	PC          int
	Instruction bytecode.Instruction
	Line        int
	Depth       int // operand stack size
	Base        int // stack depth owned by callers of the current frame
	Frames      int // active calls, 0 at top level
	Locals      int // slots in the current frame
}

// Result is the outcome of a run.
type Result struct {
	Status  Status
	Exit    int64 // top of stack at termination, valid when HasExit
	HasExit bool
	Fault   *Fault
	Steps   int
}

type Option func(*Machine)

// WithOutput directs print output to w. The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Machine) { m.out = w }
}

// WithConfig sets the resource limits. The default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(m *Machine) { m.cfg = cfg }
}

// WithMaxSteps overrides the configured step budget. Zero means unbounded.
func WithMaxSteps(n int) Option {
	return func(m *Machine) { m.maxSteps = n; m.stepsSet = true }
}

// WithTrace calls fn before every instruction.
func WithTrace(fn func(Step)) Option {
	return func(m *Machine) { m.trace = fn }
}

// Machine is the state of one program execution. Machines share nothing,
// so independent programs can run concurrently on separate machines.
type Machine struct {
	prog     *bytecode.Program
	cfg      *config.Config
	out      io.Writer
	trace    func(Step)
	maxSteps int
	stepsSet bool

	entries map[int]int // entry address -> function index

	pc      int
	stack   []int64
	frames  []Frame
	locals  int // slots held by all live frames
	globals []int64
	status  Status
	fault   *Fault
	steps   int
}

func New(prog *bytecode.Program, opts ...Option) *Machine {
	m := &Machine{
		prog:    prog,
		out:     os.Stdout,
		entries: prog.FunctionIndex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg == nil {
		m.cfg = config.Default()
	}
	if !m.stepsSet {
		m.maxSteps = m.cfg.VM.MaxSteps
	}
	return m
}

// reset prepares a fresh run. Global storage counts against the same
// slot limit as the operand stack.
func (m *Machine) reset() {
	m.pc = m.prog.Entry
	m.stack = m.stack[:0]
	m.frames = m.frames[:0]
	m.locals = 0
	m.globals = nil
	m.status = Running
	m.fault = nil
	m.steps = 0
	if m.prog.Globals > m.cfg.VM.MaxStackDepth {
		m.raise(StackOverflow, "%d globals exceed the limit of %d slots", m.prog.Globals, m.cfg.VM.MaxStackDepth)
	}
	m.globals = make([]int64, m.prog.Globals)
}

// Run executes the program from its entry point until it halts or faults.
// The returned error is the *Fault when the machine faulted. Run may be
// called again to re-execute from a clean state.
func (m *Machine) Run(ctx context.Context) (res *Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log.Debugf("run: %d instructions, entry %d, %d globals", len(m.prog.Code), m.prog.Entry, m.prog.Globals)

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Fault)
			if !ok {
				panic(r)
			}
			m.status = Faulted
			m.fault = f
			log.Debugf("fault after %d steps: %s", m.steps, f)
			res, err = m.result()
		}
	}()

	m.reset()
	m.execute(ctx)
	return m.result()
}

func (m *Machine) result() (*Result, error) {
	res := &Result{Status: m.status, Fault: m.fault, Steps: m.steps}
	if m.status == Halted && len(m.stack) > 0 {
		res.Exit = m.stack[len(m.stack)-1]
		res.HasExit = true
	}
	if m.fault != nil {
		return res, m.fault
	}
	return res, nil
}

func (m *Machine) newFault(code FaultCode, msg string) *Fault {
	return &Fault{
		Code:    code,
		PC:      m.pc,
		Line:    m.prog.Line(m.pc),
		Frames:  len(m.frames),
		Message: msg,
	}
}

// raise stops execution with a fault at the current instruction.
func (m *Machine) raise(code FaultCode, format string, args ...interface{}) {
	panic(m.newFault(code, fmt.Sprintf(format, args...)))
}

// abort stops execution on behalf of the host.
func (m *Machine) abort(cause error) {
	f := m.newFault(Aborted, cause.Error())
	f.Cause = cause
	panic(f)
}

func (m *Machine) step() Step {
	s := Step{
		PC:          m.pc,
		Instruction: m.prog.Code[m.pc],
		Line:        m.prog.Line(m.pc),
		Depth:       len(m.stack),
		Base:        m.base(),
		Frames:      len(m.frames),
	}
	if fr := m.frame(); fr != nil {
		s.Locals = len(fr.Locals)
	}
	return s
}

// Status returns the current run state.
func (m *Machine) Status() Status { return m.status }

// Stack returns a copy of the operand stack, bottom first.
func (m *Machine) Stack() []int64 {
	return append([]int64(nil), m.stack...)
}

// Globals returns a copy of the global slots.
func (m *Machine) Globals() []int64 {
	return append([]int64(nil), m.globals...)
}

// Frames returns a copy of the frame stack, outermost first.
func (m *Machine) Frames() []Frame {
	out := make([]Frame, len(m.frames))
	for i, fr := range m.frames {
		fr.Locals = append([]int64(nil), fr.Locals...)
		out[i] = fr
	}
	return out
}

// Program returns the program being executed.
func (m *Machine) Program() *bytecode.Program { return m.prog }

func (m *Machine) frame() *Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return &m.frames[len(m.frames)-1]
}

// base is the lowest stack index the current activation may pop.
func (m *Machine) base() int {
	if fr := m.frame(); fr != nil {
		return fr.BaseDepth
	}
	return 0
}

func (m *Machine) push(v int64) {
	if len(m.stack) >= m.cfg.VM.MaxStackDepth {
		m.raise(StackOverflow, "operand stack exceeds %d values", m.cfg.VM.MaxStackDepth)
	}
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() int64 {
	if len(m.stack) <= m.base() {
		m.raise(StackUnderflow, "pop from empty stack")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}
