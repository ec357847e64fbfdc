package jit

import (
	"fmt"
	"io"
)

// Result is the outcome of one execution.
type Result struct {
	Length int   // program length in bytes
	Value  int32 // value returned in EAX
}

// Report writes the two result lines printed per expression.
func (r Result) Report(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Program Length: %d bytes\nOutput: %d\n", r.Length, r.Value)
	return err
}

// Execute runs p in freshly mapped executable memory and releases the
// mapping before returning. Hosts that cannot run x86-64 code natively
// interpret the same bytes with Emulate.
func Execute(p *Program) (Result, error) {
	if p == nil || p.Len() == 0 {
		return Result{}, ErrEmptyProgram
	}
	v, err := run(p)
	if err != nil {
		return Result{}, err
	}
	return Result{Length: p.Len(), Value: v}, nil
}

// Native reports whether Execute runs code on the CPU rather than through
// the emulator.
func Native() bool { return nativeExecution }
