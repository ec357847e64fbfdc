package jit

import (
	"encoding/binary"
	"fmt"
)

type opKind int

const (
	kindPushImm opKind = iota
	kindPush
	kindPop
	kindAdd
	kindSub
	kindImul
	kindCdq
	kindIdiv
	kindNeg
	kindRet
)

// decoded is one instruction of the emitted subset.
type decoded struct {
	kind opKind
	dst  Register
	src  Register
	imm  int32
	size int
}

// text renders the instruction the same way the generator traces it.
func (d decoded) text() string {
	switch d.kind {
	case kindPushImm:
		return fmt.Sprintf("push %d", d.imm)
	case kindPush:
		return "push " + regNames64[d.dst]
	case kindPop:
		return "pop " + regNames64[d.dst]
	case kindAdd:
		return fmt.Sprintf("add %s, %s", regNames32[d.dst], regNames32[d.src])
	case kindSub:
		return fmt.Sprintf("sub %s, %s", regNames32[d.dst], regNames32[d.src])
	case kindImul:
		return fmt.Sprintf("imul %s, %s", regNames32[d.dst], regNames32[d.src])
	case kindCdq:
		return "cdq"
	case kindIdiv:
		return "idiv " + regNames32[d.dst]
	case kindNeg:
		return "neg " + regNames32[d.dst]
	default:
		return "ret"
	}
}

// decodeAt decodes the instruction starting at code[off].
func decodeAt(code []byte, off int) (decoded, error) {
	need := func(n int) error {
		if off+n > len(code) {
			return fmt.Errorf("%w: truncated instruction at offset %d", ErrInvalidCode, off)
		}
		return nil
	}
	// rmOnly accepts only register-direct ModRM bytes.
	rmOnly := func(b byte) (reg, rm Register, err error) {
		if b&0xC0 != 0xC0 {
			return 0, 0, fmt.Errorf("%w: memory operand at offset %d", ErrInvalidCode, off)
		}
		return Register((b >> 3) & 7), Register(b & 7), nil
	}

	if err := need(1); err != nil {
		return decoded{}, err
	}
	op := code[off]

	switch {
	case op == opPushImm32:
		if err := need(5); err != nil {
			return decoded{}, err
		}
		v := int32(binary.LittleEndian.Uint32(code[off+1 : off+5]))
		return decoded{kind: kindPushImm, imm: v, size: 5}, nil

	case op >= opPushReg && op < opPushReg+8:
		return decoded{kind: kindPush, dst: Register(op - opPushReg), size: 1}, nil

	case op >= opPopReg && op < opPopReg+8:
		return decoded{kind: kindPop, dst: Register(op - opPopReg), size: 1}, nil

	case op == opAdd || op == opSub:
		if err := need(2); err != nil {
			return decoded{}, err
		}
		reg, rm, err := rmOnly(code[off+1])
		if err != nil {
			return decoded{}, err
		}
		k := kindAdd
		if op == opSub {
			k = kindSub
		}
		return decoded{kind: k, dst: rm, src: reg, size: 2}, nil

	case op == opTwoByte:
		if err := need(3); err != nil {
			return decoded{}, err
		}
		if code[off+1] != opImul {
			break
		}
		reg, rm, err := rmOnly(code[off+2])
		if err != nil {
			return decoded{}, err
		}
		return decoded{kind: kindImul, dst: reg, src: rm, size: 3}, nil

	case op == opCdq:
		return decoded{kind: kindCdq, size: 1}, nil

	case op == opGroup3:
		if err := need(2); err != nil {
			return decoded{}, err
		}
		ext, rm, err := rmOnly(code[off+1])
		if err != nil {
			return decoded{}, err
		}
		switch ext {
		case group3Idiv:
			return decoded{kind: kindIdiv, dst: rm, size: 2}, nil
		case group3Neg:
			return decoded{kind: kindNeg, dst: rm, size: 2}, nil
		}

	case op == opRet:
		return decoded{kind: kindRet, size: 1}, nil
	}

	return decoded{}, fmt.Errorf("%w: unknown opcode %#02x at offset %d", ErrInvalidCode, op, off)
}
