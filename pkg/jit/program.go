// Package jit lowers expression trees to x86-64 machine code and runs the
// result as a function in executable memory.
//
// The generated code is a stack machine: every literal is pushed, every
// operator pops its operands into fixed registers, computes and pushes the
// result, and the final value is popped into EAX before returning.
package jit

// Program is a growable buffer of encoded instructions.
type Program struct {
	code     []byte
	depth    int
	maxDepth int
	trace    []string
}

func newProgram() *Program {
	return &Program{code: make([]byte, 0, 64)}
}

// Bytes returns the encoded instructions. The slice must not be modified.
func (p *Program) Bytes() []byte { return p.code }

// Len returns the number of bytes written so far.
func (p *Program) Len() int { return len(p.code) }

// MaxDepth returns the largest number of 8-byte slots the program keeps on
// the machine stack at once.
func (p *Program) MaxDepth() int { return p.maxDepth }

// Trace returns one mnemonic per emitted instruction.
func (p *Program) Trace() []string { return p.trace }

// emit appends one instruction. delta is its effect on the stack depth.
func (p *Program) emit(mnemonic string, delta int, b ...byte) {
	p.code = append(p.code, b...)
	p.trace = append(p.trace, mnemonic)
	p.depth += delta
	if p.depth > p.maxDepth {
		p.maxDepth = p.depth
	}
}
