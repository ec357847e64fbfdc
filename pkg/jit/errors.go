package jit

import (
	"errors"
	"fmt"

	"github.com/lemonberrylabs/jitcalc/pkg/expr"
	"github.com/lemonberrylabs/jitcalc/pkg/source"
)

var (
	// ErrExecMemory is returned when executable memory cannot be mapped
	// or protected. Callers treat it as fatal.
	ErrExecMemory = errors.New("jit: cannot allocate executable memory")

	// ErrInvalidCode is returned by Emulate and Disassemble for bytes
	// outside the emitted instruction subset.
	ErrInvalidCode = errors.New("jit: invalid machine code")

	// ErrEmptyProgram is returned for a nil or empty program or tree.
	ErrEmptyProgram = errors.New("jit: empty program")
)

// UnsupportedSymbolError reports a tree node the generator has no lowering
// for. The parser never produces one, so seeing it is a bug.
type UnsupportedSymbolError struct {
	Token expr.Token
}

func (e *UnsupportedSymbolError) Error() string {
	return fmt.Sprintf("unsupported symbol %s @ %s", e.Token.Type, e.Token.Pos)
}

// Kind returns expr.KindUnsupportedSymbol.
func (e *UnsupportedSymbolError) Kind() string { return expr.KindUnsupportedSymbol }

// Position returns the offending token's position.
func (e *UnsupportedSymbolError) Position() source.Position { return e.Token.Pos }
