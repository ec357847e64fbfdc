package jit

import (
	"encoding/binary"
	"fmt"
)

// Register is a general purpose register number as used in opcode and
// ModRM fields.
type Register byte

const (
	R0 Register = 0 // eax, result register
	R1 Register = 1 // ecx, right operand
	R2 Register = 2 // edx, high half of the dividend and the remainder
)

var (
	regNames32 = [8]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}
	regNames64 = [8]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi"}
)

// Opcodes of the emitted subset.
const (
	opPushImm32 = 0x68
	opPushReg   = 0x50 // + register
	opPopReg    = 0x58 // + register
	opAdd       = 0x01 // add r/m32, r32
	opSub       = 0x29 // sub r/m32, r32
	opTwoByte   = 0x0F
	opImul      = 0xAF // 0F AF: imul r32, r/m32
	opCdq       = 0x99
	opGroup3    = 0xF7 // /3 neg, /7 idiv
	opRet       = 0xC3

	group3Neg  = 3
	group3Idiv = 7
)

// modRM builds a register-direct ModRM byte.
func modRM(reg, rm Register) byte {
	return 0xC0 + byte(reg&7)*8 + byte(rm&7)
}

func (p *Program) pushImm(v int32) {
	var b [5]byte
	b[0] = opPushImm32
	binary.LittleEndian.PutUint32(b[1:], uint32(v))
	p.emit(fmt.Sprintf("push %d", v), 1, b[:]...)
}

func (p *Program) push(r Register) {
	p.emit("push "+regNames64[r&7], 1, opPushReg+byte(r&7))
}

func (p *Program) pop(r Register) {
	p.emit("pop "+regNames64[r&7], -1, opPopReg+byte(r&7))
}

// add emits dst += src.
func (p *Program) add(dst, src Register) {
	p.emit(fmt.Sprintf("add %s, %s", regNames32[dst&7], regNames32[src&7]), 0, opAdd, modRM(src, dst))
}

// sub emits dst -= src.
func (p *Program) sub(dst, src Register) {
	p.emit(fmt.Sprintf("sub %s, %s", regNames32[dst&7], regNames32[src&7]), 0, opSub, modRM(src, dst))
}

// imul emits dst *= src.
func (p *Program) imul(dst, src Register) {
	p.emit(fmt.Sprintf("imul %s, %s", regNames32[dst&7], regNames32[src&7]), 0, opTwoByte, opImul, modRM(dst, src))
}

// cdq sign-extends eax into edx.
func (p *Program) cdq() {
	p.emit("cdq", 0, opCdq)
}

// idiv divides edx:eax by r; the quotient lands in eax, the remainder in edx.
func (p *Program) idiv(r Register) {
	p.emit("idiv "+regNames32[r&7], 0, opGroup3, modRM(group3Idiv, r))
}

func (p *Program) neg(r Register) {
	p.emit("neg "+regNames32[r&7], 0, opGroup3, modRM(group3Neg, r))
}

func (p *Program) ret() {
	p.emit("ret", 0, opRet)
}
