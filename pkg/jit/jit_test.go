package jit

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/lemonberrylabs/jitcalc/pkg/expr"
)

func parseTree(t *testing.T, src string) *expr.Tree {
	t.Helper()
	toks, err := expr.TokenizeString(src)
	if err != nil {
		t.Fatalf("lex %q: %v", src, err)
	}
	tree, err := expr.NewParser(toks).CreateParseTree()
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return tree
}

func assemble(t *testing.T, src string) *Program {
	t.Helper()
	p, err := Assemble(parseTree(t, src))
	if err != nil {
		t.Fatalf("assemble %q: %v", src, err)
	}
	return p
}

func TestModRM(t *testing.T) {
	tests := []struct {
		reg, rm Register
		want    byte
	}{
		{R1, R0, 0xC8},
		{R0, R1, 0xC1},
		{group3Idiv, R1, 0xF9},
		{group3Neg, R0, 0xD8},
	}
	for _, tt := range tests {
		if got := modRM(tt.reg, tt.rm); got != tt.want {
			t.Errorf("modRM(%d, %d) = %#x, want %#x", tt.reg, tt.rm, got, tt.want)
		}
	}
}

func TestAssembleEncoding(t *testing.T) {
	push := func(v byte) []byte { return []byte{0x68, v, 0, 0, 0} }
	cat := func(parts ...[]byte) []byte { return bytes.Join(parts, nil) }
	epilogue := []byte{0x58, 0xC3}

	tests := []struct {
		src  string
		want []byte
	}{
		{"1", cat(push(1), epilogue)},
		{"2 + 3", cat(push(2), push(3), []byte{0x59, 0x58, 0x01, 0xC8, 0x50}, epilogue)},
		{"2 - 3", cat(push(2), push(3), []byte{0x59, 0x58, 0x29, 0xC8, 0x50}, epilogue)},
		{"2 * 3", cat(push(2), push(3), []byte{0x59, 0x58, 0x0F, 0xAF, 0xC1, 0x50}, epilogue)},
		{"7 / 2", cat(push(7), push(2), []byte{0x59, 0x58, 0x99, 0xF7, 0xF9, 0x50}, epilogue)},
		{"7 mod 2", cat(push(7), push(2), []byte{0x59, 0x58, 0x99, 0xF7, 0xF9, 0x52}, epilogue)},
		{"-4", cat(push(4), []byte{0x58, 0xF7, 0xD8, 0x50}, epilogue)},
		{"+4", cat(push(4), []byte{0x58, 0x50}, epilogue)},
		{"2 ^ 3", cat(push(2), push(3), []byte{0x59, 0x58, 0x50}, epilogue)},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p := assemble(t, tt.src)
			if !bytes.Equal(p.Bytes(), tt.want) {
				t.Errorf("code = % x\nwant   % x", p.Bytes(), tt.want)
			}
			if p.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", p.Len(), len(tt.want))
			}
		})
	}
}

func TestPushImmediateLittleEndian(t *testing.T) {
	p := assemble(t, "305419896") // 0x12345678
	want := []byte{0x68, 0x78, 0x56, 0x34, 0x12}
	if !bytes.Equal(p.Bytes()[:5], want) {
		t.Errorf("push = % x, want % x", p.Bytes()[:5], want)
	}
}

func TestMaxDepth(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"1", 1},
		{"1 + 2", 2},
		{"1 + 2 * 3", 3},
		{"1 * 2 + 3", 2},
	}
	for _, tt := range tests {
		if got := assemble(t, tt.src).MaxDepth(); got != tt.want {
			t.Errorf("MaxDepth(%q) = %d, want %d", tt.src, got, tt.want)
		}
	}
}

func TestTraceMatchesDisassembly(t *testing.T) {
	p := assemble(t, "(1 + -2) * 3 mod 4 - 5 / +6 ^ 7")
	insts, err := Disassemble(p.Bytes())
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	trace := p.Trace()
	if len(insts) != len(trace) {
		t.Fatalf("%d instructions, %d trace entries", len(insts), len(trace))
	}
	for i := range insts {
		if insts[i].Text != trace[i] {
			t.Errorf("instruction %d: disassembled %q, traced %q", i, insts[i].Text, trace[i])
		}
	}
	if insts[len(insts)-1].Text != "ret" {
		t.Errorf("last instruction = %q, want ret", insts[len(insts)-1].Text)
	}
}

func TestListing(t *testing.T) {
	listing, err := Listing(assemble(t, "2 + 3").Bytes())
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	for _, want := range []string{"push 2", "pop rcx", "add eax, ecx", "push rax", "ret"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}

func TestDisassembleRejectsUnknownOpcode(t *testing.T) {
	_, err := Disassemble([]byte{0x68, 1, 0, 0, 0, 0xCC})
	if !errors.Is(err, ErrInvalidCode) {
		t.Errorf("error = %v, want ErrInvalidCode", err)
	}
	_, err = Disassemble([]byte{0x68, 1, 0})
	if !errors.Is(err, ErrInvalidCode) {
		t.Errorf("truncated push: error = %v, want ErrInvalidCode", err)
	}
}

func TestAssembleErrors(t *testing.T) {
	if _, err := Assemble(nil); !errors.Is(err, ErrEmptyProgram) {
		t.Errorf("nil tree: %v", err)
	}

	for _, src := range []string{"1 / 0", "4 mod (2 - 2)", "(-2147483647 - 1) / -1"} {
		_, err := Assemble(parseTree(t, src))
		var aerr *expr.ArithmeticError
		if !errors.As(err, &aerr) {
			t.Errorf("Assemble(%q) error = %v, want *expr.ArithmeticError", src, err)
		}
	}

	tree := expr.NewTree()
	tree.SetRoot(tree.Add(expr.Token{Type: expr.TokenIdent, Text: "x", IntVal: expr.NoIntValue}))
	_, err := Assemble(tree)
	var uerr *UnsupportedSymbolError
	if !errors.As(err, &uerr) {
		t.Fatalf("error = %v, want *UnsupportedSymbolError", err)
	}
	if expr.KindOf(err) != expr.KindUnsupportedSymbol {
		t.Errorf("KindOf = %s", expr.KindOf(err))
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		src  string
		want int32
	}{
		{"42", 42},
		{"8 - 3 - 2", 3},
		{"8 / 3", 2},
		{"8 mod 3", 2},
		{"5 + -4 - 3", -2},
		{"-7 / 2", -3},
		{"-7 mod 2", -1},
		{"(1 + 2) * (3 + 4)", 21},
		{"2147483647 + 1", -2147483648},
		{"2 ^ 3 ^ 2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p := assemble(t, tt.src)
			res, err := Execute(p)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Value != tt.want {
				t.Errorf("Value = %d, want %d", res.Value, tt.want)
			}
			if res.Length != p.Len() {
				t.Errorf("Length = %d, want %d", res.Length, p.Len())
			}
		})
	}
}

func TestExecuteIsRepeatable(t *testing.T) {
	tree := parseTree(t, "(12 - 5) * 3 mod 4")
	var first Result
	for i := 0; i < 5; i++ {
		p, err := Assemble(tree)
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		res, err := Execute(p)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if i == 0 {
			first = res
			continue
		}
		if res != first {
			t.Fatalf("run %d = %+v, first run = %+v", i, res, first)
		}
	}
}

func TestExecuteEmpty(t *testing.T) {
	if _, err := Execute(nil); !errors.Is(err, ErrEmptyProgram) {
		t.Errorf("error = %v, want ErrEmptyProgram", err)
	}
}

func TestResultReport(t *testing.T) {
	var buf bytes.Buffer
	if err := (Result{Length: 7, Value: -3}).Report(&buf); err != nil {
		t.Fatal(err)
	}
	want := "Program Length: 7 bytes\nOutput: -3\n"
	if buf.String() != want {
		t.Errorf("report = %q, want %q", buf.String(), want)
	}
}

func TestEmulateDivideFault(t *testing.T) {
	// push 1; push 0; pop rcx; pop rax; cdq; idiv ecx; push rax; pop rax; ret
	code := []byte{0x68, 1, 0, 0, 0, 0x68, 0, 0, 0, 0, 0x59, 0x58, 0x99, 0xF7, 0xF9, 0x50, 0x58, 0xC3}
	if _, err := Emulate(code); err == nil {
		t.Error("expected a divide error")
	}
}

func TestEmulateUnbalancedStack(t *testing.T) {
	code := []byte{0x68, 1, 0, 0, 0, 0x68, 2, 0, 0, 0, 0x58, 0xC3}
	if _, err := Emulate(code); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("error = %v, want ErrInvalidCode", err)
	}
}

func TestEmulateLongExpression(t *testing.T) {
	const n = 300000
	p := assemble(t, strings.Repeat("1+", n)+"1")

	got, err := Emulate(p.Bytes())
	if err != nil {
		t.Fatalf("Emulate: %v", err)
	}
	if got != n+1 {
		t.Errorf("Emulate = %d, want %d", got, n+1)
	}
}

// randomTree builds a random well-formed expression tree.
func randomTree(rng *rand.Rand, depth int) *expr.Tree {
	tree := expr.NewTree()
	tree.SetRoot(randomNode(rng, tree, depth))
	return tree
}

func randomNode(rng *rand.Rand, tree *expr.Tree, depth int) expr.NodeID {
	tok := func(tt expr.TokenType) expr.Token {
		return expr.Token{Type: tt, IntVal: expr.NoIntValue}
	}
	if depth == 0 || rng.Intn(4) == 0 {
		v := rng.Int31n(2000) - 1000
		if rng.Intn(8) == 0 {
			v = rng.Int31()
		}
		return tree.Add(expr.Token{Type: expr.TokenInteger, IntVal: v})
	}

	switch rng.Intn(9) {
	case 0:
		return tree.Unary(tok(expr.TokenNegate), randomNode(rng, tree, depth-1))
	case 1:
		return tree.Unary(tok(expr.TokenUnaryPlus), randomNode(rng, tree, depth-1))
	}
	ops := []expr.TokenType{expr.TokenPlus, expr.TokenMinus, expr.TokenStar, expr.TokenSlash, expr.TokenMod, expr.TokenCaret}
	op := tok(ops[rng.Intn(len(ops))])
	left := randomNode(rng, tree, depth-1)
	right := randomNode(rng, tree, depth-1)
	return tree.Binary(op, left, right)
}

func TestNativeEmulatorAndEvaluatorAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	checked := 0
	for i := 0; i < 500; i++ {
		tree := randomTree(rng, 6)
		want, err := expr.Evaluate(tree)
		if err != nil {
			// Division faults are rejected before code generation.
			if _, aerr := Assemble(tree); aerr == nil {
				t.Fatalf("tree %s: Evaluate failed (%v) but Assemble succeeded", tree, err)
			}
			continue
		}

		p, err := Assemble(tree)
		if err != nil {
			t.Fatalf("tree %s: Assemble: %v", tree, err)
		}
		emulated, err := Emulate(p.Bytes())
		if err != nil {
			t.Fatalf("tree %s: Emulate: %v", tree, err)
		}
		res, err := Execute(p)
		if err != nil {
			t.Fatalf("tree %s: Execute: %v", tree, err)
		}
		if emulated != want || res.Value != want {
			t.Fatalf("tree %s: evaluate=%d emulate=%d execute=%d", tree, want, emulated, res.Value)
		}
		checked++
	}
	if checked < 50 {
		t.Errorf("only %d trees checked", checked)
	}
	t.Logf("checked %d trees (native=%v)", checked, Native())
}
