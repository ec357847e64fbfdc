package jit

import (
	"fmt"
	"math"
)

// Emulate interprets code produced by Assemble and returns the value left
// in EAX by the final ret. It follows the hardware semantics of the
// emitted subset, including the divide faults the CPU would raise. The
// subset has no jumps, so every instruction runs at most once and the loop
// ends within len(code) steps.
func Emulate(code []byte) (int32, error) {
	var regs [8]uint32
	var stack []uint64

	for off := 0; ; {
		if off >= len(code) {
			return 0, fmt.Errorf("%w: ran past the end of the code", ErrInvalidCode)
		}
		d, err := decodeAt(code, off)
		if err != nil {
			return 0, err
		}
		off += d.size

		switch d.kind {
		case kindPushImm:
			stack = append(stack, uint64(int64(d.imm)))
		case kindPush:
			stack = append(stack, uint64(regs[d.dst]))
		case kindPop:
			if len(stack) == 0 {
				return 0, fmt.Errorf("%w: pop from empty stack at offset %d", ErrInvalidCode, off-d.size)
			}
			regs[d.dst] = uint32(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		case kindAdd:
			regs[d.dst] += regs[d.src]
		case kindSub:
			regs[d.dst] -= regs[d.src]
		case kindImul:
			regs[d.dst] = uint32(int32(regs[d.dst]) * int32(regs[d.src]))
		case kindCdq:
			if int32(regs[R0]) < 0 {
				regs[R2] = math.MaxUint32
			} else {
				regs[R2] = 0
			}
		case kindIdiv:
			q, r, err := idiv(regs[R2], regs[R0], regs[d.dst])
			if err != nil {
				return 0, fmt.Errorf("divide error at offset %d: %w", off-d.size, err)
			}
			regs[R0], regs[R2] = uint32(q), uint32(r)
		case kindNeg:
			regs[d.dst] = -regs[d.dst]
		case kindRet:
			if len(stack) != 0 {
				return 0, fmt.Errorf("%w: %d values left on the stack at ret", ErrInvalidCode, len(stack))
			}
			return int32(regs[R0]), nil
		}
	}
}

// idiv divides the 64-bit value hi:lo by divisor.
func idiv(hi, lo, divisor uint32) (q, r int32, err error) {
	if divisor == 0 {
		return 0, 0, fmt.Errorf("division by zero")
	}
	dividend := int64(uint64(hi)<<32 | uint64(lo))
	d := int64(int32(divisor))
	quo := dividend / d
	if quo > math.MaxInt32 || quo < math.MinInt32 {
		return 0, 0, fmt.Errorf("quotient overflow")
	}
	return int32(quo), int32(dividend % d), nil
}
