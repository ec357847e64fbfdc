package expr

import (
	"fmt"
	"math"
)

// Evaluate computes the value of t with the same semantics as the generated
// machine code: 32-bit two's complement arithmetic that wraps on overflow,
// division and remainder truncating toward zero, and '^' yielding its left
// operand. Operations on which the divide instruction would trap are
// reported as an *ArithmeticError.
func Evaluate(t *Tree) (int32, error) {
	if t == nil || t.Root() == NoNode {
		return 0, fmt.Errorf("evaluate: empty tree")
	}
	return evalNode(t, t.Root())
}

func evalNode(t *Tree, id NodeID) (int32, error) {
	n := t.Node(id)
	tok := n.Token

	switch tok.Type {
	case TokenInteger:
		return tok.IntVal, nil

	case TokenNegate, TokenUnaryPlus:
		if n.Child == NoNode {
			return 0, &ParseError{Message: "unary operator without operand", Token: tok}
		}
		v, err := evalNode(t, n.Child)
		if err != nil {
			return 0, err
		}
		if tok.Type == TokenNegate {
			return -v, nil
		}
		return v, nil

	case TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenMod, TokenCaret:
		if n.Child == NoNode || t.Node(n.Child).Sibling == NoNode {
			return 0, &ParseError{Message: "binary operator without two operands", Token: tok}
		}
		left, err := evalNode(t, n.Child)
		if err != nil {
			return 0, err
		}
		right, err := evalNode(t, t.Node(n.Child).Sibling)
		if err != nil {
			return 0, err
		}
		return evalBinary(tok, left, right)

	default:
		return 0, &ParseError{Message: "unsupported symbol in expression tree", Token: tok}
	}
}

func evalBinary(op Token, left, right int32) (int32, error) {
	switch op.Type {
	case TokenPlus:
		return left + right, nil
	case TokenMinus:
		return left - right, nil
	case TokenStar:
		return left * right, nil
	case TokenSlash, TokenMod:
		if right == 0 {
			return 0, &ArithmeticError{Message: "division by zero", Token: op}
		}
		if left == math.MinInt32 && right == -1 {
			return 0, &ArithmeticError{Message: "quotient overflows 32 bits", Token: op}
		}
		if op.Type == TokenSlash {
			return left / right, nil
		}
		return left % right, nil
	default:
		// Power is not computed; the left operand passes through.
		return left, nil
	}
}
