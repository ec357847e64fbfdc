package expr

import (
	"errors"
	"fmt"

	"github.com/lemonberrylabs/jitcalc/pkg/source"
)

// Error kind tags shared by every stage of the pipeline.
const (
	KindLexicalError      = "LexicalError"
	KindParseError        = "ParseError"
	KindArithmeticError   = "ArithmeticError"
	KindUnsupportedSymbol = "UnsupportedSymbolError"
	KindExecutionError    = "ExecutionError"
)

// Kinded is implemented by pipeline errors so that outer layers can report
// a stable tag without switching on concrete types.
type Kinded interface {
	error
	Kind() string
	Position() source.Position
}

// KindOf returns the tag of a pipeline error, or KindExecutionError for
// anything else.
func KindOf(err error) string {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindExecutionError
}

// LexicalError is raised by the lexer when a byte cannot continue the token
// being recognised.
type LexicalError struct {
	Message string
	Pos     source.Position
	Char    int  // offending byte, or source.EOF
	HasChar bool // whether Char is meaningful
}

func (e *LexicalError) Error() string {
	if !e.HasChar {
		return fmt.Sprintf("[%s] : %s", e.Pos, e.Message)
	}
	if e.Char == source.EOF {
		return fmt.Sprintf("[%s] : %s EOF", e.Pos, e.Message)
	}
	return fmt.Sprintf("[%s] : %s %q (%d)", e.Pos, e.Message, rune(e.Char), e.Char)
}

// Kind returns KindLexicalError.
func (e *LexicalError) Kind() string { return KindLexicalError }

// Position returns where the error was detected.
func (e *LexicalError) Position() source.Position { return e.Pos }

// ParseError is raised by the parser with the token it could not accept.
type ParseError struct {
	Message string
	Token   Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s @ %s (%s)", e.Message, e.Token.Pos, e.Token)
}

// Kind returns KindParseError.
func (e *ParseError) Kind() string { return KindParseError }

// Position returns the offending token's position.
func (e *ParseError) Position() source.Position { return e.Token.Pos }

// ArithmeticError reports an operation whose native instruction would trap,
// such as a division by zero.
type ArithmeticError struct {
	Message string
	Token   Token
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic error: %s @ %s", e.Message, e.Token.Pos)
}

// Kind returns KindArithmeticError.
func (e *ArithmeticError) Kind() string { return KindArithmeticError }

// Position returns the operator's position.
func (e *ArithmeticError) Position() source.Position { return e.Token.Pos }

func newLexicalError(pos source.Position, ch int, msg string) *LexicalError {
	return &LexicalError{Message: msg, Pos: pos, Char: ch, HasChar: true}
}
