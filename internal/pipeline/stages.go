package pipeline

import (
	"fmt"

	"github.com/funvibe/foolvm/internal/analyzer"
	"github.com/funvibe/foolvm/internal/ast"
	"github.com/funvibe/foolvm/internal/codegen"
	"github.com/funvibe/foolvm/internal/lexer"
	"github.com/funvibe/foolvm/internal/parser"
)

type LexerProcessor struct{}

func (lp *LexerProcessor) Name() string { return "lexer" }

func (lp *LexerProcessor) Process(ctx *PipelineContext) *PipelineContext {
	tokens, errs := lexer.New(ctx.SourceCode).Tokenize()
	ctx.TokenStream = tokens
	ctx.addErrors(errs)
	return ctx
}

type ParserProcessor struct{}

func (pp *ParserProcessor) Name() string { return "parser" }

func (pp *ParserProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.TokenStream == nil {
		return ctx
	}
	p := parser.New(ctx.TokenStream)
	tree := p.ParseProgram()
	errs := p.Errors()
	ctx.addErrors(errs)
	if len(ctx.Errors) == 0 {
		ctx.ParseTree = tree
	}
	return ctx
}

// BuilderProcessor converts the parse tree. It only runs over trees from
// error-free parses.
type BuilderProcessor struct{}

func (bp *BuilderProcessor) Name() string { return "ast" }

func (bp *BuilderProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.ParseTree == nil {
		return ctx
	}
	ctx.AstRoot = ast.Build(ctx.ParseTree)
	ctx.AstRoot.File = ctx.FilePath
	return ctx
}

type AnalyzerProcessor struct{}

func (ap *AnalyzerProcessor) Name() string { return "analyzer" }

func (ap *AnalyzerProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.AstRoot == nil {
		return ctx
	}
	info, errs := analyzer.New().Analyze(ctx.AstRoot)
	ctx.Info = info
	ctx.addErrors(errs)
	return ctx
}

// CodegenProcessor never runs over a unit with outstanding diagnostics.
type CodegenProcessor struct{}

func (cp *CodegenProcessor) Name() string { return "codegen" }

func (cp *CodegenProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Info == nil || len(ctx.Errors) > 0 {
		return ctx
	}
	prog, err := codegen.Generate(ctx.AstRoot, ctx.Info, ctx.Config)
	if err != nil {
		ctx.InternalError = fmt.Errorf("%s: %w", ctx.FilePath, err)
		return ctx
	}
	ctx.Program = prog
	return ctx
}
