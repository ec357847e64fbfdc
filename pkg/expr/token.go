// Package expr implements the front end of the expression compiler: a
// finite-state lexer, a recursive-descent parser that builds a child/sibling
// tree, and a reference evaluator with the same 32-bit semantics as the
// generated machine code.
package expr

import (
	"fmt"
	"math"
	"strconv"

	"github.com/lemonberrylabs/jitcalc/pkg/source"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenInvalid TokenType = iota

	// Literals
	TokenInteger // integer literal
	TokenIdent   // identifier
	TokenString  // string literal

	// Single-byte punctuation
	TokenBang       // !
	TokenDollar     // $
	TokenPercent    // %
	TokenAmpersand  // &
	TokenApostrophe // '
	TokenLParen     // (
	TokenRParen     // )
	TokenStar       // *
	TokenPlus       // +
	TokenComma      // ,
	TokenMinus      // -
	TokenDot        // .
	TokenSlash      // /
	TokenColon      // :
	TokenSemicolon  // ;
	TokenLess       // <
	TokenEqual      // =
	TokenGreater    // >
	TokenQuestion   // ?
	TokenAt         // @
	TokenLBracket   // [
	TokenBackslash  // \
	TokenRBracket   // ]
	TokenCaret      // ^
	TokenBacktick   // `
	TokenLBrace     // {
	TokenPipe       // |
	TokenRBrace     // }
	TokenTilde      // ~

	// Multi-byte operators
	TokenGreaterEqual // >=
	TokenLessEqual    // <=
	TokenAssign       // <-
	TokenNotEqual     // ~=
	TokenMod          // mod

	// Produced by the parser
	TokenNegate    // unary -
	TokenUnaryPlus // unary +

	// Markers
	TokenEndOfExpression
	TokenEOF
)

// NoIntValue marks IntVal as not applicable. No literal can produce it.
const NoIntValue int32 = math.MinInt32

// punctuation maps each single-byte symbol to its token type.
var punctuation = map[byte]TokenType{
	'!':  TokenBang,
	'$':  TokenDollar,
	'%':  TokenPercent,
	'&':  TokenAmpersand,
	'\'': TokenApostrophe,
	'(':  TokenLParen,
	')':  TokenRParen,
	'*':  TokenStar,
	'+':  TokenPlus,
	',':  TokenComma,
	'-':  TokenMinus,
	'.':  TokenDot,
	'/':  TokenSlash,
	':':  TokenColon,
	';':  TokenSemicolon,
	'<':  TokenLess,
	'=':  TokenEqual,
	'>':  TokenGreater,
	'?':  TokenQuestion,
	'@':  TokenAt,
	'[':  TokenLBracket,
	'\\': TokenBackslash,
	']':  TokenRBracket,
	'^':  TokenCaret,
	'`':  TokenBacktick,
	'{':  TokenLBrace,
	'|':  TokenPipe,
	'}':  TokenRBrace,
	'~':  TokenTilde,
}

var tokenNames = map[TokenType]string{
	TokenInvalid:         "INVALID",
	TokenInteger:         "INTEGER",
	TokenIdent:           "IDENT",
	TokenString:          "STRING",
	TokenGreaterEqual:    ">=",
	TokenLessEqual:       "<=",
	TokenAssign:          "<-",
	TokenNotEqual:        "~=",
	TokenMod:             "mod",
	TokenNegate:          "u-",
	TokenUnaryPlus:       "u+",
	TokenEndOfExpression: "EOX",
	TokenEOF:             "EOF",
}

func init() {
	for ch, tt := range punctuation {
		tokenNames[tt] = string(ch)
	}
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// PunctuationType returns the token type of a single-byte symbol.
func PunctuationType(ch byte) (TokenType, bool) {
	tt, ok := punctuation[ch]
	return tt, ok
}

// Token represents a single lexical token.
type Token struct {
	Type   TokenType
	Pos    source.Position
	Text   string // raw lexeme for identifiers, strings and integers
	IntVal int32  // parsed value for TokenInteger, NoIntValue otherwise
}

// HasIntValue reports whether IntVal carries a literal value.
func (t Token) HasIntValue() bool {
	return t.Type == TokenInteger && t.IntVal != NoIntValue
}

// String prints the integer value when there is one, else the text, else
// the type.
func (t Token) String() string {
	switch {
	case t.HasIntValue():
		return strconv.FormatInt(int64(t.IntVal), 10)
	case t.Text != "":
		return t.Text
	default:
		return t.Type.String()
	}
}
