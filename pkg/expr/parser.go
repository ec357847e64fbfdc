package expr

// Parser is a recursive descent parser over a token slice. It builds one
// Tree per call to CreateParseTree and never moves its cursor backwards.
//
// Grammar, lowest precedence first:
//
//	expression := term (('+' | '-') term)*
//	term       := power (('*' | '/' | 'mod') power)*
//	power      := negation ('^' power)?
//	negation   := ('-' | '+') unit | unit
//	unit       := INTEGER | '(' expression ')'
type Parser struct {
	tokens []Token
	pos    int
	tree   *Tree
}

// NewParser creates a parser over tokens. An end-of-expression marker is
// appended and the cursor is placed on the first token.
func NewParser(tokens []Token) *Parser {
	toks := make([]Token, len(tokens), len(tokens)+1)
	copy(toks, tokens)

	eox := Token{Type: TokenEndOfExpression, IntVal: NoIntValue}
	if n := len(tokens); n > 0 {
		eox.Pos = tokens[n-1].Pos
	}
	toks = append(toks, eox)

	return &Parser{tokens: toks}
}

// Finished reports whether the cursor sits on an end-of-expression or
// end-of-file marker.
func (p *Parser) Finished() bool {
	switch p.current().Type {
	case TokenEndOfExpression, TokenEOF:
		return true
	}
	return false
}

// CreateParseTree parses one maximal expression starting at the cursor.
func (p *Parser) CreateParseTree() (*Tree, error) {
	p.tree = NewTree()
	defer func() { p.tree = nil }()

	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	t := p.tree
	t.SetRoot(root)
	return t, nil
}

// current returns the token under the cursor.
func (p *Parser) current() Token {
	return p.tokens[p.pos]
}

// advance consumes the current token and returns it. Moving past the
// end-of-expression marker is a bug in the parser.
func (p *Parser) advance() Token {
	tok := p.current()
	if tok.Type == TokenEndOfExpression {
		panic("expr: parser advanced past end of expression")
	}
	p.pos++
	return tok
}

func (p *Parser) parseExpression() (NodeID, error) {
	left, err := p.parseTerm()
	if err != nil {
		return NoNode, err
	}

	for p.current().Type == TokenPlus || p.current().Type == TokenMinus {
		op := p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return NoNode, err
		}
		left = p.tree.Binary(op, left, right)
	}
	return left, nil
}

func (p *Parser) parseTerm() (NodeID, error) {
	left, err := p.parsePower()
	if err != nil {
		return NoNode, err
	}

	for p.current().Type == TokenStar || p.current().Type == TokenSlash ||
		p.current().Type == TokenMod {
		op := p.advance()
		right, err := p.parsePower()
		if err != nil {
			return NoNode, err
		}
		left = p.tree.Binary(op, left, right)
	}
	return left, nil
}

// parsePower recurses on its right operand, so '^' is right-associative.
func (p *Parser) parsePower() (NodeID, error) {
	left, err := p.parseNegation()
	if err != nil {
		return NoNode, err
	}

	if p.current().Type != TokenCaret {
		return left, nil
	}
	op := p.advance()
	right, err := p.parsePower()
	if err != nil {
		return NoNode, err
	}
	return p.tree.Binary(op, left, right), nil
}

func (p *Parser) parseNegation() (NodeID, error) {
	var kind TokenType
	switch p.current().Type {
	case TokenMinus:
		kind = TokenNegate
	case TokenPlus:
		kind = TokenUnaryPlus
	default:
		return p.parseUnit()
	}

	op := p.advance()
	op.Type = kind
	operand, err := p.parseUnit()
	if err != nil {
		return NoNode, err
	}
	return p.tree.Unary(op, operand), nil
}

func (p *Parser) parseUnit() (NodeID, error) {
	tok := p.current()
	switch tok.Type {
	case TokenInteger:
		p.advance()
		return p.tree.Add(tok), nil

	case TokenLParen:
		p.advance()
		inner, err := p.parseExpression()
		if err != nil {
			return NoNode, err
		}
		closing := p.current()
		if closing.Type != TokenRParen {
			if closing.Type == TokenEndOfExpression || closing.Type == TokenEOF {
				return NoNode, &ParseError{Message: "expected matching ')' before end of expression", Token: closing}
			}
			return NoNode, &ParseError{Message: "expected matching ')'", Token: closing}
		}
		p.advance()
		return inner, nil

	case TokenRParen:
		return NoNode, &ParseError{Message: "unmatched bracket", Token: tok}

	default:
		return NoNode, &ParseError{Message: "invalid symbol", Token: tok}
	}
}
