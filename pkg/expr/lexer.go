package expr

import (
	"fmt"
	"strconv"

	"github.com/lemonberrylabs/jitcalc/pkg/source"
)

// lexState is the active state of the lexer's finite-state machine. Each
// state is a transition over (sequence, next byte, token list); the states
// themselves carry no data.
type lexState int

const (
	stateNeutral lexState = iota
	stateIdentifier
	stateInteger
	statePunctuation
	stateString
	stateEscaped
	stateLineComment
	stateBlockComment
)

var stateNames = [...]string{
	stateNeutral:      "Neutral",
	stateIdentifier:   "Identifier",
	stateInteger:      "IntegerLiteral",
	statePunctuation:  "Punctuation",
	stateString:       "StringLiteral",
	stateEscaped:      "EscapedCharacter",
	stateLineComment:  "LineComment",
	stateBlockComment: "BlockComment",
}

func (s lexState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("lexState(%d)", int(s))
}

// Lexer turns the bytes of a source.Reader into tokens.
type Lexer struct {
	reader *source.Reader
	state  lexState

	// seq holds the bytes of the token being built.
	seq []byte

	// pending is the position-stamped token opened by Neutral; it only
	// reaches tokens once the building state finalises it.
	pending  Token
	building bool

	// progress counts how much of the "->>" closer has been seen.
	progress int

	tokens []Token
}

// NewLexer creates a lexer reading from r, starting in the Neutral state.
func NewLexer(r *source.Reader) *Lexer {
	return &Lexer{reader: r, state: stateNeutral}
}

// Tokenize runs a lexer over r and appends the end-of-file token. On a
// lexical error the tokens recognised before it are still returned, followed
// by the end-of-file token.
func Tokenize(r *source.Reader) ([]Token, error) {
	l := NewLexer(r)
	err := l.Run()
	l.AddEOF()
	return l.Tokens(), err
}

// TokenizeString is Tokenize over an in-memory source.
func TokenizeString(s string) ([]Token, error) {
	return Tokenize(source.FromString(s))
}

// Run drives the state machine until the input is exhausted and the machine
// is back in Neutral, or until the first lexical error.
func (l *Lexer) Run() error {
	for l.state != stateNeutral || l.reader.Peek() != source.EOF {
		if err := l.step(); err != nil {
			return err
		}
	}
	if err := l.reader.Err(); err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	return nil
}

// Tokens returns the tokens finalised so far.
func (l *Lexer) Tokens() []Token {
	return l.tokens
}

// AddEOF appends the end-of-file token at the reader's current position.
func (l *Lexer) AddEOF() {
	l.tokens = append(l.tokens, Token{
		Type:   TokenEOF,
		Pos:    l.reader.Position(),
		IntVal: NoIntValue,
	})
}

// State reports the active state. Exposed for tracing.
func (l *Lexer) State() string {
	return l.state.String()
}

func (l *Lexer) step() error {
	switch l.state {
	case stateNeutral:
		return l.neutral()
	case stateIdentifier:
		return l.identifier()
	case stateInteger:
		return l.integer()
	case statePunctuation:
		return l.punctuation()
	case stateString:
		return l.stringLiteral()
	case stateEscaped:
		return l.escaped()
	case stateLineComment:
		return l.lineComment()
	case stateBlockComment:
		return l.blockComment()
	default:
		panic(fmt.Sprintf("expr: lexer in unknown state %d", int(l.state)))
	}
}

// begin opens a content-less token stamped with the current position.
func (l *Lexer) begin() {
	l.pending = Token{Pos: l.reader.Position(), IntVal: NoIntValue}
	l.building = true
}

// discard drops the pending token and the sequence.
func (l *Lexer) discard() {
	l.pending = Token{}
	l.building = false
	l.seq = l.seq[:0]
}

// consume moves the next byte from the reader into the sequence.
func (l *Lexer) consume() {
	l.seq = append(l.seq, byte(l.reader.Advance()))
}

// finish finalises the pending token as tt and returns to Neutral.
func (l *Lexer) finish(tt TokenType) error {
	tok := l.pending
	tok.Type = tt
	tok.IntVal = NoIntValue

	switch tt {
	case TokenIdent, TokenString:
		tok.Text = string(l.seq)
	case TokenInteger:
		tok.Text = string(l.seq)
		v, err := strconv.ParseInt(tok.Text, 10, 32)
		if err != nil {
			return &LexicalError{Message: "integer literal out of range: " + tok.Text, Pos: tok.Pos}
		}
		tok.IntVal = int32(v)
	}

	if tok.Type == TokenIdent && tok.Text == "mod" {
		tok.Type = TokenMod
	}

	l.emit(tok)
	l.discard()
	l.state = stateNeutral
	return nil
}

func (l *Lexer) emit(tok Token) {
	l.tokens = append(l.tokens, tok)
}

func (l *Lexer) fail(ch int, msg string) error {
	return newLexicalError(l.reader.Position(), ch, msg)
}

// Character classes, matching the C locale.

func isAlpha(ch int) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch int) bool {
	return ch >= '0' && ch <= '9'
}

func isAlnum(ch int) bool {
	return isAlpha(ch) || isDigit(ch)
}

func isSpace(ch int) bool {
	switch ch {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func isCntrl(ch int) bool {
	return (ch >= 0 && ch < 0x20) || ch == 0x7f
}

func isPunct(ch int) bool {
	return ch > 0x20 && ch < 0x7f && !isAlnum(ch)
}

func isHexDigit(ch int) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// isBoundary reports whether ch ends an identifier or integer literal.
func isBoundary(ch int) bool {
	return isSpace(ch) || isPunct(ch) || isCntrl(ch) || ch == source.EOF
}
