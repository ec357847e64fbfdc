package jit

import (
	"fmt"
	"strings"
)

// Instruction is one disassembled instruction.
type Instruction struct {
	Offset int
	Bytes  []byte
	Text   string
}

func (in Instruction) String() string {
	hex := make([]string, len(in.Bytes))
	for i, b := range in.Bytes {
		hex[i] = fmt.Sprintf("%02x", b)
	}
	return fmt.Sprintf("%04x  %-16s %s", in.Offset, strings.Join(hex, " "), in.Text)
}

// Disassemble decodes code produced by Assemble.
func Disassemble(code []byte) ([]Instruction, error) {
	var out []Instruction
	for off := 0; off < len(code); {
		d, err := decodeAt(code, off)
		if err != nil {
			return out, err
		}
		out = append(out, Instruction{
			Offset: off,
			Bytes:  code[off : off+d.size],
			Text:   d.text(),
		})
		off += d.size
	}
	return out, nil
}

// Listing returns the disassembly of code, one instruction per line.
func Listing(code []byte) (string, error) {
	insts, err := Disassemble(code)
	var sb strings.Builder
	for _, in := range insts {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String(), err
}
