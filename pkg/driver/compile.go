package driver

import (
	"errors"

	"github.com/lemonberrylabs/jitcalc/pkg/expr"
	"github.com/lemonberrylabs/jitcalc/pkg/jit"
)

// Compiled is one expression of a source together with its generated code.
type Compiled struct {
	Tree    *expr.Tree
	Program *jit.Program // nil when Err is set
	Err     error
}

// Compile lexes, parses and assembles every expression of src without
// executing anything. Expressions whose code cannot be generated carry the
// assembler error. A lexical or parse error stops compilation and is
// returned together with the expressions compiled before it.
func Compile(src string) ([]Compiled, error) {
	toks, lexErr := expr.TokenizeString(src)
	if lexErr != nil {
		var le *expr.LexicalError
		if !errors.As(lexErr, &le) {
			return nil, lexErr
		}
	}

	var out []Compiled
	p := expr.NewParser(toks)
	for !p.Finished() {
		tree, err := p.CreateParseTree()
		if err != nil {
			return out, firstErr(lexErr, err)
		}
		c := Compiled{Tree: tree}
		c.Program, c.Err = jit.Assemble(tree)
		if c.Err != nil {
			c.Program = nil
		}
		out = append(out, c)
	}
	return out, lexErr
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
