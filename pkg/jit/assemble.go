package jit

import (
	"errors"

	"github.com/lemonberrylabs/jitcalc/pkg/expr"
)

// Assemble lowers t to machine code by a post-order walk.
//
// The tree is first evaluated with expr.Evaluate: a division whose idiv
// would trap is returned as an *expr.ArithmeticError instead of being
// emitted. Tokens without a lowering yield an *UnsupportedSymbolError.
func Assemble(t *expr.Tree) (*Program, error) {
	if t == nil || t.Root() == expr.NoNode {
		return nil, ErrEmptyProgram
	}

	if _, err := expr.Evaluate(t); err != nil {
		var aerr *expr.ArithmeticError
		if errors.As(err, &aerr) {
			return nil, err
		}
		// Anything else surfaces below as an unsupported symbol.
	}

	p := newProgram()
	err := t.Walk(func(_ expr.NodeID, n expr.Node) error {
		return p.lower(n.Token)
	})
	if err != nil {
		return nil, err
	}

	p.pop(R0)
	p.ret()
	return p, nil
}

// lower emits the fixed sequence for one node. Operands are already on
// the stack: the right operand on top.
//
// Division and mod fill EDX with cdq instead of zeroing it. idiv divides
// the signed 64-bit EDX:EAX, so a zeroed EDX would turn a negative
// dividend into a large positive one (-17 / 5 would not give -3).
func (p *Program) lower(tok expr.Token) error {
	switch tok.Type {
	case expr.TokenInteger:
		p.pushImm(tok.IntVal)

	case expr.TokenPlus:
		p.popOperands()
		p.add(R0, R1)
		p.push(R0)

	case expr.TokenMinus:
		p.popOperands()
		p.sub(R0, R1)
		p.push(R0)

	case expr.TokenStar:
		p.popOperands()
		p.imul(R0, R1)
		p.push(R0)

	case expr.TokenSlash, expr.TokenMod:
		p.popOperands()
		p.cdq()
		p.idiv(R1)
		if tok.Type == expr.TokenSlash {
			p.push(R0)
		} else {
			p.push(R2)
		}

	case expr.TokenNegate:
		p.pop(R0)
		p.neg(R0)
		p.push(R0)

	case expr.TokenUnaryPlus:
		p.pop(R0)
		p.push(R0)

	case expr.TokenCaret:
		// Exponentiation is not implemented; the base passes through.
		p.popOperands()
		p.push(R0)

	default:
		return &UnsupportedSymbolError{Token: tok}
	}
	return nil
}

// popOperands moves the right operand to R1 and the left to R0.
func (p *Program) popOperands() {
	p.pop(R1)
	p.pop(R0)
}
