package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DebuggerCLI drives a Debugger from line commands read at every stop.
type DebuggerCLI struct {
	debugger *Debugger
	scanner  *bufio.Scanner
	output   io.Writer
}

// NewDebuggerCLI installs a command prompt as the stop handler of d.
func NewDebuggerCLI(d *Debugger, in io.Reader, out io.Writer) *DebuggerCLI {
	cli := &DebuggerCLI{
		debugger: d,
		scanner:  bufio.NewScanner(in),
		output:   out,
	}
	d.Output = out
	d.OnStop = cli.onStop
	fmt.Fprintf(out, "Debugger started. Type 'help' for commands.\n")
	return cli
}

// onStop is called when the debugger stops
func (cli *DebuggerCLI) onStop(dbg *Debugger, m *Machine, s Step) {
	dbg.PrintLocation(s)

	for {
		fmt.Fprintf(cli.output, "(foolc) ")
		if !cli.scanner.Scan() {
			// EOF: drop every breakpoint and let the program finish.
			if err := cli.scanner.Err(); err != nil {
				fmt.Fprintf(cli.output, "\nDebugger error: %v\n", err)
			} else {
				fmt.Fprintf(cli.output, "\nExiting debugger (EOF).\n")
			}
			dbg.ClearBreakpoints()
			dbg.Continue()
			return
		}

		parts := strings.Fields(cli.scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help", "h":
			printHelp(cli.output)
		case "continue", "c":
			dbg.Continue()
			return
		case "step", "s":
			dbg.Step()
			return
		case "break", "b":
			if line, ok := cli.lineArg("break", args); ok {
				dbg.SetBreakpoint(line)
				fmt.Fprintf(cli.output, "Breakpoint set at line %d\n", line)
			}
		case "delete", "d":
			if line, ok := cli.lineArg("delete", args); ok {
				dbg.RemoveBreakpoint(line)
				fmt.Fprintf(cli.output, "Breakpoint removed at line %d\n", line)
			}
		case "list", "l":
			cli.handleListBreakpoints()
		case "locals", "vars":
			dbg.PrintLocals(m)
		case "globals":
			dbg.PrintGlobals(m)
		case "stack":
			dbg.PrintStack(m)
		case "backtrace", "bt":
			dbg.PrintCallStack(m, s.PC)
		case "print", "p":
			cli.handlePrint(args, m)
		case "quit", "q", "exit":
			dbg.Quit()
			return
		default:
			fmt.Fprintf(cli.output, "Unknown command: %s. Type 'help' for help.\n", cmd)
		}
	}
}

func printHelp(output io.Writer) {
	help := `Debugger commands:
  help, h              - Show this help
  continue, c          - Continue execution until next breakpoint
  step, s              - Stop at the next source line
  break, b <line>      - Set breakpoint at line
  delete, d <line>     - Delete breakpoint at line
  list, l              - List all breakpoints
  locals, vars         - Show local slots
  globals              - Show global slots
  stack                - Show operand stack
  backtrace, bt        - Show call stack
  print, p g<n>|l<n>   - Print global or local slot n
  quit, q, exit        - Abort the program
`
	fmt.Fprint(output, help)
}

func (cli *DebuggerCLI) lineArg(cmd string, args []string) (int, bool) {
	if len(args) != 1 {
		fmt.Fprintf(cli.output, "Usage: %s <line>\n", cmd)
		return 0, false
	}
	line, err := strconv.Atoi(args[0])
	if err != nil || line <= 0 {
		fmt.Fprintf(cli.output, "Invalid line number: %s\n", args[0])
		return 0, false
	}
	return line, true
}

func (cli *DebuggerCLI) handleListBreakpoints() {
	bps := cli.debugger.GetBreakpoints()
	if len(bps) == 0 {
		fmt.Fprintf(cli.output, "No breakpoints set.\n")
		return
	}
	fmt.Fprintf(cli.output, "Breakpoints:\n")
	for i, bp := range bps {
		fmt.Fprintf(cli.output, "  %d. line %d (hit %d times)\n", i+1, bp.Line, bp.Hits)
	}
}

// handlePrint prints one slot: g<n> for a global, l<n> for a local of the
// current frame.
func (cli *DebuggerCLI) handlePrint(args []string, m *Machine) {
	if len(args) != 1 || len(args[0]) < 2 {
		fmt.Fprintf(cli.output, "Usage: print g<n>|l<n>\n")
		return
	}
	slot, err := strconv.Atoi(args[0][1:])
	if err != nil || slot < 0 {
		fmt.Fprintf(cli.output, "Invalid slot: %s\n", args[0])
		return
	}

	var slots []int64
	switch args[0][0] {
	case 'g':
		slots = m.globals
	case 'l':
		if fr := m.frame(); fr != nil {
			slots = fr.Locals
		}
	default:
		fmt.Fprintf(cli.output, "Usage: print g<n>|l<n>\n")
		return
	}
	if slot >= len(slots) {
		fmt.Fprintf(cli.output, "No slot %s\n", args[0])
		return
	}
	fmt.Fprintf(cli.output, "%d\n", slots[slot])
}
