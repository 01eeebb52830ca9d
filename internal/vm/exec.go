package vm

import (
	"context"
	"fmt"

	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/config"
)

// execute is the fetch-decode-execute loop.
func (m *Machine) execute(ctx context.Context) {
	code := m.prog.Code
	sinceCheck := 0

	for m.status == Running {
		if m.pc < 0 || m.pc >= len(code) {
			// Running off the end of top-level code halts.
			if m.pc == len(code) && len(m.frames) == 0 {
				m.halt()
				return
			}
			m.raise(OutOfBoundsJump, "pc %d outside code [0, %d)", m.pc, len(code))
		}

		if m.maxSteps > 0 && m.steps >= m.maxSteps {
			m.raise(Aborted, "step budget of %d exhausted", m.maxSteps)
		}
		sinceCheck++
		if sinceCheck >= config.CancelCheckInterval {
			sinceCheck = 0
			if err := ctx.Err(); err != nil {
				m.abort(err)
			}
		}

		if m.trace != nil {
			m.trace(m.step())
		}
		m.steps++
		m.exec(code[m.pc])
	}
}

func (m *Machine) halt() {
	m.status = Halted
	log.Debugf("halted after %d steps", m.steps)
}

// exec runs one instruction. Jumps, calls and returns set pc themselves;
// everything else falls through to pc+1.
func (m *Machine) exec(in bytecode.Instruction) {
	switch in.Op {
	case bytecode.OP_PUSH_CONST:
		if in.A < 0 || in.A >= len(m.prog.Constants) {
			m.raise(InvalidOpcode, "constant %d outside pool of %d", in.A, len(m.prog.Constants))
		}
		m.push(m.prog.Constants[in.A])

	case bytecode.OP_PUSH_LOCAL:
		m.push(*m.local(in.A))

	case bytecode.OP_STORE_LOCAL:
		slot := m.local(in.A)
		*slot = m.pop()

	case bytecode.OP_PUSH_GLOBAL:
		m.push(*m.global(in.A))

	case bytecode.OP_STORE_GLOBAL:
		slot := m.global(in.A)
		*slot = m.pop()

	case bytecode.OP_POP:
		m.pop()

	case bytecode.OP_ADD, bytecode.OP_SUB, bytecode.OP_MUL, bytecode.OP_DIV, bytecode.OP_MOD,
		bytecode.OP_EQ, bytecode.OP_NE, bytecode.OP_LT, bytecode.OP_LE, bytecode.OP_GT, bytecode.OP_GE:
		b := m.pop()
		a := m.pop()
		m.push(m.binary(in.Op, a, b))

	case bytecode.OP_NEG:
		m.push(-m.pop())

	case bytecode.OP_NOT:
		m.push(boolValue(m.pop() == 0))

	case bytecode.OP_JUMP:
		m.jump(in.A)
		return

	case bytecode.OP_JUMP_IF_ZERO:
		if m.pop() == 0 {
			m.jump(in.A)
			return
		}

	case bytecode.OP_JUMP_IF_NONZERO:
		if m.pop() != 0 {
			m.jump(in.A)
			return
		}

	case bytecode.OP_CALL:
		m.call(in.A, in.B)
		return

	case bytecode.OP_RET:
		m.ret()
		return

	case bytecode.OP_PRINT:
		fmt.Fprintln(m.out, m.pop())

	case bytecode.OP_HALT:
		m.halt()
		return

	default:
		m.raise(InvalidOpcode, "unknown opcode %d", byte(in.Op))
	}

	m.pc++
}

func (m *Machine) binary(op bytecode.Opcode, a, b int64) int64 {
	switch op {
	case bytecode.OP_ADD:
		return a + b
	case bytecode.OP_SUB:
		return a - b
	case bytecode.OP_MUL:
		return a * b
	case bytecode.OP_DIV:
		if b == 0 {
			m.raise(DivisionByZero, "division by zero")
		}
		return a / b
	case bytecode.OP_MOD:
		if b == 0 {
			m.raise(DivisionByZero, "modulo by zero")
		}
		return a % b
	case bytecode.OP_EQ:
		return boolValue(a == b)
	case bytecode.OP_NE:
		return boolValue(a != b)
	case bytecode.OP_LT:
		return boolValue(a < b)
	case bytecode.OP_LE:
		return boolValue(a <= b)
	case bytecode.OP_GT:
		return boolValue(a > b)
	case bytecode.OP_GE:
		return boolValue(a >= b)
	}
	m.raise(InvalidOpcode, "%s is not a binary operator", op)
	return 0
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (m *Machine) jump(target int) {
	if target < 0 || target >= len(m.prog.Code) {
		m.raise(OutOfBoundsJump, "jump target %d outside code [0, %d)", target, len(m.prog.Code))
	}
	m.pc = target
}

func (m *Machine) local(slot int) *int64 {
	fr := m.frame()
	if fr == nil {
		m.raise(InvalidOpcode, "local slot %d accessed outside a function", slot)
	}
	if slot < 0 || slot >= len(fr.Locals) {
		m.raise(InvalidOpcode, "local slot %d outside frame of %d", slot, len(fr.Locals))
	}
	return &fr.Locals[slot]
}

func (m *Machine) global(slot int) *int64 {
	if slot < 0 || slot >= len(m.globals) {
		m.raise(InvalidOpcode, "global slot %d outside %d globals", slot, len(m.globals))
	}
	return &m.globals[slot]
}

// call pops argc arguments into the first slots of a new frame, the last
// argument into slot argc-1, and transfers control to addr.
func (m *Machine) call(addr, argc int) {
	index, ok := m.entries[addr]
	if !ok {
		m.raise(InvalidCall, "address %d is not a function entry", addr)
	}
	fn := &m.prog.Functions[index]
	if argc != fn.Arity {
		m.raise(InvalidCall, "%s takes %d arguments, called with %d", fn.Name, fn.Arity, argc)
	}
	if fn.Locals < fn.Arity {
		m.raise(InvalidCall, "%s has %d locals for %d parameters", fn.Name, fn.Locals, fn.Arity)
	}
	if addr < 0 || addr >= len(m.prog.Code) {
		m.raise(OutOfBoundsJump, "%s entry %d outside code", fn.Name, addr)
	}
	if len(m.frames) >= m.cfg.VM.MaxFrameDepth {
		m.raise(StackOverflow, "call depth exceeds %d frames", m.cfg.VM.MaxFrameDepth)
	}
	if fn.Locals > m.cfg.VM.MaxStackDepth-m.locals {
		m.raise(StackOverflow, "%s needs %d local slots with %d of %d in use", fn.Name, fn.Locals, m.locals, m.cfg.VM.MaxStackDepth)
	}

	locals := make([]int64, fn.Locals)
	m.locals += fn.Locals
	for i := argc - 1; i >= 0; i-- {
		locals[i] = m.pop()
	}

	m.frames = append(m.frames, Frame{
		ReturnAddr: m.pc + 1,
		Locals:     locals,
		BaseDepth:  len(m.stack),
		Fn:         index,
	})
	m.pc = addr
}

// ret tears down the current frame. A value function's result must be on
// top of the stack; anything else the callee left behind is discarded, so
// the caller sees its pre-call depth plus the return arity.
func (m *Machine) ret() {
	fr := m.frame()
	if fr == nil {
		m.raise(InvalidCall, "return with no active call")
	}
	fn := &m.prog.Functions[fr.Fn]

	var result int64
	if fn.Returns > 0 {
		result = m.pop()
	}
	m.stack = m.stack[:fr.BaseDepth]
	m.pc = fr.ReturnAddr
	m.locals -= len(fr.Locals)
	m.frames = m.frames[:len(m.frames)-1]
	if fn.Returns > 0 {
		m.push(result)
	}
}
