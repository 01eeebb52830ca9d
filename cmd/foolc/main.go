// Command foolc compiles and runs fool programs.
//
//	foolc [flags] file.fool|file.svm|file.svmb
//
// Source files are compiled; assembly and image files are loaded and
// validated. The program is then written out (-S, -o), listed (-disasm)
// and run (-run, on by default). -fmt prints a source file in canonical
// form instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/funvibe/foolvm/internal/asm"
	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/config"
	"github.com/funvibe/foolvm/internal/diagnostics"
	"github.com/funvibe/foolvm/internal/history"
	"github.com/funvibe/foolvm/internal/pipeline"
	"github.com/funvibe/foolvm/internal/prettyprinter"
	"github.com/funvibe/foolvm/internal/vm"
)

// Exit codes.
const (
	exitOK       = 0
	exitCompile  = 1 // diagnostics, unreadable input, bad flags
	exitFault    = 2
	exitInternal = 70
)

type options struct {
	asmOut   string
	imageOut string
	run      bool
	disasm   bool
	config   string
	history  string
	list     int
	verbose  int
	maxSteps int
	breaks   string
	debug    bool
	format   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	var o options
	fs := flag.NewFlagSet("foolc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.asmOut, "S", "", "write assembly text to `file`")
	fs.StringVar(&o.imageOut, "o", "", "write the binary image to `file`")
	fs.BoolVar(&o.run, "run", true, "execute the program")
	fs.BoolVar(&o.disasm, "disasm", false, "print a disassembly listing")
	fs.StringVar(&o.config, "config", "", "config `file` (default: foolvm.yaml/.toml next to the input or above)")
	fs.StringVar(&o.history, "history", "", "record runs in the SQLite `db`")
	fs.IntVar(&o.list, "list", 0, "print the `n` most recent runs from -history and exit")
	fs.IntVar(&o.verbose, "v", 0, "log verbosity (0 warnings, 1 notices, 2 info, 3 debug)")
	fs.IntVar(&o.maxSteps, "max-steps", -1, "override the configured step budget (0 = unbounded)")
	fs.StringVar(&o.breaks, "break", "", "comma-separated source `lines` to stop at")
	fs.BoolVar(&o.debug, "debug", false, "read debugger commands from stdin at each stop")
	fs.BoolVar(&o.format, "fmt", false, "print the source file in canonical form and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: foolc [flags] file%s|file%s|file%s\n", config.SourceFileExt, config.AssemblyFileExt, config.ImageFileExt)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &o, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(stderr, "Internal error: %v\n", r)
			fmt.Fprintln(stderr, "This is a bug. Please report it.")
			code = exitInternal
		}
	}()

	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitCompile
	}
	commonlog.Configure(o.verbose, nil)

	if o.list > 0 {
		return listRuns(o, stdout, stderr)
	}
	if len(rest) != 1 {
		fmt.Fprintln(stderr, "foolc: expected exactly one input file")
		return exitCompile
	}
	path := rest[0]

	cfg, err := loadConfig(o.config, path)
	if err != nil {
		fmt.Fprintf(stderr, "foolc: %s\n", err)
		return exitCompile
	}
	if o.maxSteps >= 0 {
		cfg.VM.MaxSteps = o.maxSteps
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "foolc: %s\n", err)
		return exitCompile
	}

	if o.format {
		return format(path, data, cfg, stdout, stderr)
	}

	prog, code := load(path, data, cfg, stderr)
	if prog == nil {
		return code
	}

	if err := writeOutputs(o, prog); err != nil {
		fmt.Fprintf(stderr, "foolc: %s\n", err)
		return exitCompile
	}
	if o.disasm {
		fmt.Fprint(stdout, bytecode.Disassemble(prog, filepath.Base(path)))
	}
	if !o.run {
		return exitOK
	}
	return execute(ctx, o, path, data, prog, cfg, stdin, stdout, stderr)
}

func format(path string, data []byte, cfg *config.Config, stdout, stderr io.Writer) int {
	if !config.IsSourceFile(path) {
		fmt.Fprintf(stderr, "foolc: -fmt needs a %s file\n", config.SourceFileExt)
		return exitCompile
	}
	result := pipeline.New(&pipeline.LexerProcessor{}, &pipeline.ParserProcessor{}, &pipeline.BuilderProcessor{}).
		Run(pipeline.NewPipelineContext(path, string(data), cfg))
	if len(result.Errors) > 0 {
		diagnostics.Render(stderr, result.Errors)
		return exitCompile
	}
	fmt.Fprint(stdout, prettyprinter.Print(result.AstRoot))
	return exitOK
}

// loadConfig reads the explicit config file, or the nearest one above the
// input, or falls back to the defaults.
func loadConfig(explicit, input string) (*config.Config, error) {
	path := explicit
	if path == "" {
		found, err := config.FindConfig(filepath.Dir(input))
		if err != nil {
			return nil, err
		}
		path = found
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

// load turns the input into a validated program. On failure it reports
// and returns the exit code.
func load(path string, data []byte, cfg *config.Config, stderr io.Writer) (*bytecode.Program, int) {
	var prog *bytecode.Program
	switch {
	case bytecode.IsImage(data):
		p, err := bytecode.DecodeImage(data)
		if err != nil {
			fmt.Fprintf(stderr, "foolc: %s: %s\n", path, err)
			return nil, exitCompile
		}
		prog = p

	case strings.EqualFold(filepath.Ext(path), config.AssemblyFileExt):
		p, errs := asm.Parse(string(data))
		if len(errs) > 0 {
			for _, e := range errs {
				e.File = path
			}
			diagnostics.Render(stderr, errs)
			return nil, exitCompile
		}
		prog = p

	default:
		result := pipeline.Compile(path, string(data), cfg)
		if len(result.Errors) > 0 {
			diagnostics.Render(stderr, result.Errors)
			return nil, exitCompile
		}
		if result.InternalError != nil {
			fmt.Fprintf(stderr, "Internal error: %s\n", result.InternalError)
			return nil, exitInternal
		}
		prog = result.Program
	}

	if err := prog.Validate(); err != nil {
		fmt.Fprintf(stderr, "foolc: %s: %s\n", path, err)
		return nil, exitCompile
	}
	return prog, exitOK
}

func writeOutputs(o *options, prog *bytecode.Program) error {
	if o.asmOut != "" {
		if err := os.WriteFile(o.asmOut, []byte(asm.Format(prog)), 0644); err != nil {
			return fmt.Errorf("writing assembly: %w", err)
		}
	}
	if o.imageOut != "" {
		if err := os.WriteFile(o.imageOut, bytecode.EncodeImage(prog), 0644); err != nil {
			return fmt.Errorf("writing image: %w", err)
		}
	}
	return nil
}

func parseBreakpoints(s string) ([]int, error) {
	var lines []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid breakpoint line %q", field)
		}
		lines = append(lines, n)
	}
	return lines, nil
}

func execute(ctx context.Context, o *options, path string, data []byte, prog *bytecode.Program, cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) int {
	breaks, err := parseBreakpoints(o.breaks)
	if err != nil {
		fmt.Fprintf(stderr, "foolc: %s\n", err)
		return exitCompile
	}

	var out strings.Builder
	m := vm.New(prog, vm.WithOutput(io.MultiWriter(stdout, &out)), vm.WithConfig(cfg))
	if len(breaks) > 0 || o.debug {
		d := vm.NewDebugger(stderr)
		for _, line := range breaks {
			d.SetBreakpoint(line)
		}
		if o.debug {
			if len(breaks) == 0 {
				d.Step()
			}
			vm.NewDebuggerCLI(d, stdin, stderr)
		}
		d.Attach(m)
	}

	res, runErr := m.Run(ctx)

	if o.history != "" {
		if err := recordRun(o.history, path, data, res, out.String()); err != nil {
			fmt.Fprintf(stderr, "foolc: %s\n", err)
		}
	}

	if errors.Is(runErr, vm.ErrQuit) {
		fmt.Fprintln(stderr, "Program aborted from the debugger.")
		return exitFault
	}
	var fault *vm.Fault
	if errors.As(runErr, &fault) {
		fmt.Fprintf(stderr, "%s: Faulted: %s\n", path, fault)
		return exitFault
	}
	if res.HasExit {
		fmt.Fprintf(stderr, "Halted (exit value %d)\n", res.Exit)
	} else {
		fmt.Fprintln(stderr, "Halted")
	}
	return exitOK
}

func recordRun(db, path string, data []byte, res *vm.Result, output string) error {
	ledger, err := history.Open(db)
	if err != nil {
		return err
	}
	defer ledger.Close()

	r := &history.Run{
		File:   path,
		Digest: history.Digest(data),
		Status: res.Status.String(),
		Steps:  res.Steps,
		Output: output,
	}
	if res.Fault != nil {
		r.Fault = res.Fault.Code.String()
		r.PC = res.Fault.PC
	}
	return ledger.Record(r)
}

func listRuns(o *options, stdout, stderr io.Writer) int {
	if o.history == "" {
		fmt.Fprintln(stderr, "foolc: -list needs -history")
		return exitCompile
	}
	ledger, err := history.Open(o.history)
	if err != nil {
		fmt.Fprintf(stderr, "foolc: %s\n", err)
		return exitCompile
	}
	defer ledger.Close()

	runs, err := ledger.List(o.list)
	if err != nil {
		fmt.Fprintf(stderr, "foolc: %s\n", err)
		return exitCompile
	}
	for _, r := range runs {
		status := r.Status
		if r.Fault != "" {
			status = fmt.Sprintf("%s %s at pc %d", r.Status, r.Fault, r.PC)
		}
		fmt.Fprintf(stdout, "%s  %s  %s  %s  %d steps\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.File, status, r.Steps)
	}
	return exitOK
}
