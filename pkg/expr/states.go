package expr

import "github.com/lemonberrylabs/jitcalc/pkg/source"

// escapes maps the byte after a backslash to the byte it stands for.
var escapes = map[int]byte{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'"':  '"',
	'\\': '\\',
	'a':  '\a',
	'b':  '\b',
}

// neutral picks the state for the next token. It does not consume the
// byte it switches on, so the new state sees it first.
func (l *Lexer) neutral() error {
	next := l.reader.Peek()
	switch {
	case isAlpha(next) || next == '_':
		l.begin()
		l.state = stateIdentifier
	case isDigit(next):
		l.begin()
		l.state = stateInteger
	case next == '#':
		l.state = stateLineComment
	case next == '"':
		l.begin()
		l.reader.Advance()
		l.state = stateString
	case isPunct(next):
		l.begin()
		l.state = statePunctuation
	default:
		l.reader.Advance()
	}
	return nil
}

func (l *Lexer) identifier() error {
	next := l.reader.Peek()
	switch {
	case isAlnum(next) || next == '_':
		l.consume()
		return nil
	case isBoundary(next):
		return l.finish(TokenIdent)
	default:
		return l.fail(next, "illegal character during identifier recognition:")
	}
}

func (l *Lexer) integer() error {
	next := l.reader.Peek()
	switch {
	case isDigit(next):
		l.consume()
		return nil
	case isBoundary(next):
		return l.finish(TokenInteger)
	default:
		return l.fail(next, "illegal character during integer recognition:")
	}
}

// punctuation recognises single-byte symbols, the two-byte operators
// >= <- <= ~= and the block comment opener <<-.
func (l *Lexer) punctuation() error {
	next := l.reader.Peek()

	switch len(l.seq) {
	case 0:
		l.consume()
		return nil

	case 1:
		first := l.seq[0]
		if isSpace(next) || isCntrl(next) || next == source.EOF {
			return l.finishSingle(first)
		}
		switch {
		case first == '>' && next == '=':
			return l.finishPair(TokenGreaterEqual)
		case first == '<' && next == '-':
			return l.finishPair(TokenAssign)
		case first == '<' && next == '=':
			return l.finishPair(TokenLessEqual)
		case first == '<' && next == '<':
			l.consume()
			return nil
		case first == '~' && next == '=':
			return l.finishPair(TokenNotEqual)
		}
		return l.finishSingle(first)

	default:
		// The sequence is "<<".
		if next == '-' {
			l.discard()
			l.progress = 0
			l.state = stateBlockComment
			return nil
		}
		pos := l.pending.Pos
		l.discard()
		l.emit(Token{Type: TokenLess, Pos: pos, IntVal: NoIntValue})
		l.emit(Token{Type: TokenLess, Pos: source.Position{Line: pos.Line, Column: pos.Column + 1}, IntVal: NoIntValue})
		l.state = stateNeutral
		return nil
	}
}

func (l *Lexer) finishSingle(ch byte) error {
	tt, ok := PunctuationType(ch)
	if !ok {
		return l.fail(int(ch), "unknown punctuation:")
	}
	return l.finish(tt)
}

func (l *Lexer) finishPair(tt TokenType) error {
	l.consume()
	return l.finish(tt)
}

func (l *Lexer) stringLiteral() error {
	next := l.reader.Peek()
	switch next {
	case '\\':
		l.reader.Advance()
		l.state = stateEscaped
		return nil
	case '"':
		l.reader.Advance()
		return l.finish(TokenString)
	case source.EOF:
		return l.fail(next, "unexpected EOF in string")
	default:
		l.consume()
		return nil
	}
}

func (l *Lexer) escaped() error {
	next := l.reader.Peek()

	if next == 'u' {
		l.reader.Advance()
		if err := l.unicodeEscape(); err != nil {
			return err
		}
		l.state = stateString
		return nil
	}

	if b, ok := escapes[next]; ok {
		l.seq = append(l.seq, b)
	} else if next != '\n' {
		// A backslash before a newline continues the line.
		return l.fail(next, "illegal escape code:")
	}

	l.reader.Advance()
	l.state = stateString
	return nil
}

func (l *Lexer) lineComment() error {
	next := l.reader.Peek()
	if next == '\n' || next == source.EOF {
		l.state = stateNeutral
		return nil
	}
	l.reader.Advance()
	return nil
}

// blockComment skips bytes until the closer "->>".
func (l *Lexer) blockComment() error {
	next := l.reader.Peek()
	if next == source.EOF {
		return l.fail(next, "unterminated block comment")
	}

	switch l.progress {
	case 0:
		if next == '-' {
			l.progress = 1
		}
	case 1:
		if next == '>' {
			l.progress = 2
		} else {
			l.progress = 0
		}
	default:
		if next == '>' {
			l.reader.Advance()
			l.progress = 0
			l.state = stateNeutral
			return nil
		}
		l.progress = 0
	}

	l.reader.Advance()
	return nil
}
