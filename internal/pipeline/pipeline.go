// Package pipeline chains the compiler stages. Every stage runs over a
// shared PipelineContext; stages that depend on an earlier result skip
// themselves when it is missing, so one run collects the diagnostics of
// every stage that could run.
package pipeline

import (
	"time"

	"github.com/tliron/commonlog"

	"github.com/funvibe/foolvm/internal/analyzer"
	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/bytecode"
	"github.com/funvibe/foolvm/internal/config"
	"github.com/funvibe/foolvm/internal/diagnostics"
	"github.com/funvibe/foolvm/internal/parsetree"
	"github.com/funvibe/foolvm/internal/token"
)

var log = commonlog.GetLogger("foolvm.pipeline")

// PipelineContext carries one compilation unit through the stages.
type PipelineContext struct {
	FilePath   string
	SourceCode string
	Config     *config.Config

	TokenStream []token.Token
	ParseTree   *parsetree.Node
	AstRoot     *ast.Program
	Info        *analyzer.Info
	Program     *bytecode.Program

	// Errors holds user-facing diagnostics from every stage.
	Errors []*diagnostics.DiagnosticError

	// InternalError is a compiler defect; it is never a user error.
	InternalError error
}

func NewPipelineContext(file, source string, cfg *config.Config) *PipelineContext {
	if cfg == nil {
		cfg = config.Default()
	}
	return &PipelineContext{FilePath: file, SourceCode: source, Config: cfg}
}

// addErrors appends errs, filling in the file name.
func (ctx *PipelineContext) addErrors(errs []*diagnostics.DiagnosticError) {
	for _, e := range errs {
		if e.File == "" {
			e.File = ctx.FilePath
		}
		ctx.Errors = append(ctx.Errors, e)
	}
}

// Processor is one stage.
type Processor interface {
	Name() string
	Process(ctx *PipelineContext) *PipelineContext
}

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Default returns the full source-to-bytecode pipeline.
func Default() *Pipeline {
	return New(
		&LexerProcessor{},
		&ParserProcessor{},
		&BuilderProcessor{},
		&AnalyzerProcessor{},
		&CodegenProcessor{},
	)
}

// Run executes the pipeline.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		start := time.Now()
		ctx = processor.Process(ctx)
		log.Debugf("%s: %s, %d errors so far", processor.Name(), time.Since(start), len(ctx.Errors))
		// Continue on errors to collect diagnostics from all stages.
	}
	diagnostics.Sort(ctx.Errors)
	return ctx
}

// Compile runs the default pipeline over source. The program is nil when
// diagnostics or an internal error are reported.
func Compile(file, source string, cfg *config.Config) *PipelineContext {
	return Default().Run(NewPipelineContext(file, source, cfg))
}
