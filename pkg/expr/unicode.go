package expr

// unicodeEscape reads the six hex digits following \u and appends the
// UTF-8 encoding of the code point to the sequence. Only the Basic
// Multilingual Plane is accepted.
func (l *Lexer) unicodeEscape() error {
	var cp uint32
	for i := 0; i < 6; i++ {
		ch := l.reader.Peek()
		if !isHexDigit(ch) {
			return l.fail(ch, "illegal character in six-digit unicode escape:")
		}
		l.reader.Advance()
		cp = cp<<4 | hexValue(byte(ch))
	}

	enc, ok := encodeCodePoint(cp)
	if !ok {
		return &LexicalError{Message: "unicode code point out of range", Pos: l.reader.Position()}
	}
	l.seq = append(l.seq, enc...)
	return nil
}

func hexValue(ch byte) uint32 {
	switch {
	case ch >= '0' && ch <= '9':
		return uint32(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return uint32(ch-'a') + 10
	default:
		return uint32(ch-'A') + 10
	}
}

// encodeCodePoint returns the one to three byte UTF-8 form of v, most
// significant byte first. Surrogate halves are encoded like any other
// value; it reports false for v >= 0x10000.
func encodeCodePoint(v uint32) ([]byte, bool) {
	var n int
	var lead byte
	switch {
	case v < 0x80:
		return []byte{byte(v)}, true
	case v < 0x800:
		n, lead = 2, 0xC0
	case v < 0x10000:
		n, lead = 3, 0xE0
	default:
		return nil, false
	}

	out := make([]byte, n)
	for i := n - 1; i > 0; i-- {
		out[i] = 0x80 | byte(v&0x3F)
		v >>= 6
	}
	out[0] = lead | byte(v)
	return out, true
}
