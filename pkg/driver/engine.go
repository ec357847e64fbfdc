// Package driver runs the full pipeline over one source: lex, parse every
// expression, then assemble and execute each tree in order.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/lemonberrylabs/jitcalc/pkg/expr"
	"github.com/lemonberrylabs/jitcalc/pkg/jit"
	"github.com/lemonberrylabs/jitcalc/pkg/source"
)

// MaxExpressions is the maximum number of expressions one run may contain.
const MaxExpressions = 100_000

// Mode selects what happens after a parse error.
type Mode int

const (
	// ModeRecover stops parsing at the first error but still executes the
	// expressions parsed before it.
	ModeRecover Mode = iota
	// ModeAbort executes nothing once any parse error is seen.
	ModeAbort
)

func (m Mode) String() string {
	switch m {
	case ModeAbort:
		return "abort"
	case ModeRecover:
		return "recover"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts "abort" or "recover" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abort":
		return ModeAbort, nil
	case "recover", "":
		return ModeRecover, nil
	default:
		return ModeRecover, fmt.Errorf("unknown mode %q (want abort or recover)", s)
	}
}

// Options configures an Engine.
type Options struct {
	Mode    Mode
	Verbose bool

	// Out receives the per-expression report lines. Nil discards them.
	Out io.Writer
}

// Outcome is the result of one expression.
type Outcome struct {
	Index  int
	Tree   string // flat post-order form
	Length int    // program length in bytes
	Value  int32
	Err    error // arithmetic error rejected before execution
}

// Report collects everything one run produced.
type Report struct {
	Tokens   int
	Outcomes []Outcome
	LexErr   error
	ParseErr error
}

// Err returns the first lexical or parse error, or nil.
func (r *Report) Err() error {
	if r.LexErr != nil {
		return r.LexErr
	}
	return r.ParseErr
}

// Values returns the value of every executed expression in order.
func (r *Report) Values() []int32 {
	vals := make([]int32, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Err == nil {
			vals = append(vals, o.Value)
		}
	}
	return vals
}

// Engine executes expression sources.
type Engine struct {
	opts Options
}

// NewEngine creates an engine with the given options.
func NewEngine(opts Options) *Engine {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Engine{opts: opts}
}

// RunString runs an in-memory source.
func (e *Engine) RunString(ctx context.Context, src string) (*Report, error) {
	return e.Run(ctx, source.FromString(src))
}

// RunFile runs the source file at path.
func (e *Engine) RunFile(ctx context.Context, path string) (*Report, error) {
	r, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return e.Run(ctx, r)
}

// Run lexes and parses the whole source, then assembles and executes each
// expression. Lexical errors and, in ModeRecover, parse errors are recorded
// in the report and the run continues with what was recognised. The
// returned error is non-nil for a parse error in ModeAbort, an arithmetic
// error in ModeAbort, a generator defect, a failure to map executable
// memory, or a cancelled context.
func (e *Engine) Run(ctx context.Context, r *source.Reader) (*Report, error) {
	report := &Report{}

	toks, err := expr.Tokenize(r)
	report.Tokens = len(toks)
	if err != nil {
		var lexErr *expr.LexicalError
		if !errors.As(err, &lexErr) {
			return report, err
		}
		log.Printf("lexical error: %v", err)
		report.LexErr = err
	}

	trees, err := e.parseAll(ctx, toks, report)
	if err != nil {
		return report, err
	}

	for i, tree := range trees {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		out, err := e.runTree(i, tree)
		if err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, out)
		if out.Err != nil && e.opts.Mode == ModeAbort {
			return report, out.Err
		}
	}
	return report, nil
}

// parseAll parses expressions until the token stream is finished or the
// first parse error.
func (e *Engine) parseAll(ctx context.Context, toks []expr.Token, report *Report) ([]*expr.Tree, error) {
	p := expr.NewParser(toks)

	var trees []*expr.Tree
	for !p.Finished() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(trees) >= MaxExpressions {
			return nil, fmt.Errorf("source exceeds %d expressions", MaxExpressions)
		}

		tree, err := p.CreateParseTree()
		if err != nil {
			log.Printf("%v", err)
			report.ParseErr = err
			if e.opts.Mode == ModeAbort {
				return nil, err
			}
			break
		}
		if e.opts.Verbose {
			log.Printf("expression %d: %s", len(trees), tree)
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

func (e *Engine) runTree(i int, tree *expr.Tree) (Outcome, error) {
	out := Outcome{Index: i, Tree: tree.String()}

	prog, err := jit.Assemble(tree)
	if err != nil {
		var aerr *expr.ArithmeticError
		if errors.As(err, &aerr) {
			log.Printf("expression %d: %v", i, err)
			out.Err = err
			return out, nil
		}
		return out, fmt.Errorf("expression %d: %w", i, err)
	}

	if e.opts.Verbose {
		for _, line := range prog.Trace() {
			log.Printf("  emit %s", line)
		}
		listing, err := jit.Listing(prog.Bytes())
		if err != nil {
			return out, fmt.Errorf("expression %d: %w", i, err)
		}
		log.Printf("disassembly:\n%s", listing)
	}

	res, err := jit.Execute(prog)
	if err != nil {
		return out, fmt.Errorf("expression %d: %w", i, err)
	}
	out.Length = res.Length
	out.Value = res.Value

	if err := res.Report(e.opts.Out); err != nil {
		return out, fmt.Errorf("writing report: %w", err)
	}
	return out, nil
}
