package symbolic

import (
	"errors"
	"fmt"
	"math/big"
)

// ParseError reports why an input could not be read as an expression.
type ParseError struct {
	Input string
	Pos   int // byte offset of the failure, -1 if unknown
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseResult is either a parsed expression or the error that prevented it.
type ParseResult struct {
	expr Expr
	err  *ParseError
}

// Ok reports whether parsing succeeded.
func (r ParseResult) Ok() bool { return r.err == nil }

// Expr returns the parsed expression, or nil on failure.
func (r ParseResult) Expr() Expr { return r.expr }

// Err returns the parse error, or nil on success.
func (r ParseResult) Err() *ParseError { return r.err }

// TryParse parses input and returns the outcome as a ParseResult.
func TryParse(input string) ParseResult {
	e, err := parse(input)
	if err != nil {
		return ParseResult{err: err}
	}
	return ParseResult{expr: e}
}

// Parse parses an expression string into an unsimplified tree.
// Errors are always of type *ParseError.
func Parse(input string) (Expr, error) {
	e, err := parse(input)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// MustParse is like Parse but panics on error.
func MustParse(input string) Expr {
	e, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return e
}

var errEmpty = errors.New("empty expression")

func parse(input string) (Expr, *ParseError) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, wrapParseError(input, err)
	}
	if len(tokens) == 1 {
		return nil, &ParseError{Input: input, Pos: 0, Err: errEmpty}
	}
	p := &parser{tokens: tokens}
	e, err := p.parseExpr()
	if err != nil {
		return nil, wrapParseError(input, err)
	}
	if tok := p.current(); tok.Kind != TokenEOF {
		return nil, &ParseError{
			Input: input,
			Pos:   tok.Pos,
			Err:   fmt.Errorf("unexpected token %s at position %d", describe(tok), tok.Pos),
		}
	}
	return e, nil
}

func wrapParseError(input string, err error) *ParseError {
	pos := -1
	var pe *posError
	if errors.As(err, &pe) {
		pos = pe.pos
	}
	return &ParseError{Input: input, Pos: pos, Err: err}
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	tok := p.current()
	if tok.Kind != kind {
		return tok, &posError{pos: tok.Pos, msg: fmt.Sprintf("expected %s but got %s at position %d", kind, describe(tok), tok.Pos)}
	}
	p.advance()
	return tok, nil
}

// Precedence levels (low to high):
// 1. +, - (additive)
// 2. *, / (multiplicative)
// 3. unary +, -
// 4. ** and ^ (right-associative; binds tighter than unary on its left)
// 5. call, parenthesised group

func (p *parser) parseExpr() (Expr, error) {
	return p.parseAdditive()
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.current().Kind == TokenPlus || p.current().Kind == TokenMinus {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		if op.Kind == TokenMinus {
			right = negate(right)
		}
		left = &Add{Terms: []Expr{left, right}}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.current().Kind == TokenStar || p.current().Kind == TokenSlash {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op.Kind == TokenSlash {
			right = &Pow{Base: right, Exp: NewInt(-1)}
		}
		left = &Mul{Factors: []Expr{left, right}}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.current().Kind {
	case TokenMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negate(operand), nil
	case TokenPlus:
		p.advance()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.current().Kind != TokenPow {
		return base, nil
	}
	p.advance()
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Pow{Base: base, Exp: exp}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.current()

	switch tok.Kind {
	case TokenNumber:
		p.advance()
		r, ok := new(big.Rat).SetString(tok.Value)
		if !ok {
			return nil, &posError{pos: tok.Pos, msg: fmt.Sprintf("invalid number %q at position %d", tok.Value, tok.Pos)}
		}
		return &Number{val: r}, nil

	case TokenIdent:
		p.advance()
		if p.current().Kind == TokenLParen {
			return p.parseCall(tok)
		}
		return atomFor(tok.Value), nil

	case TokenLParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return e, nil

	default:
		return nil, &posError{pos: tok.Pos, msg: fmt.Sprintf("unexpected token %s at position %d", describe(tok), tok.Pos)}
	}
}

func (p *parser) parseCall(name Token) (Expr, error) {
	if _, reserved := reservedAtoms[name.Value]; reserved {
		return nil, &posError{pos: name.Pos, msg: fmt.Sprintf("%s is not callable at position %d", name.Value, name.Pos)}
	}
	p.advance() // skip (

	var args []Expr
	if p.current().Kind != TokenRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.current().Kind != TokenComma {
				break
			}
			p.advance() // skip comma
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, &posError{pos: name.Pos, msg: fmt.Sprintf("%s expects 1 argument, got %d", name.Value, len(args))}
	}

	if name.Value == "sqrt" {
		return &Pow{Base: args[0], Exp: NewRat(1, 2)}, nil
	}
	return &Call{Func: name.Value, Arg: args[0]}, nil
}

// reservedAtoms maps identifiers with a fixed meaning to their values.
var reservedAtoms = map[string]Expr{
	"pi":  &Constant{Name: "pi"},
	"E":   &Constant{Name: "E"},
	"oo":  posInf,
	"nan": nan,
	"zoo": zoo,
}

func atomFor(name string) Expr {
	if e, ok := reservedAtoms[name]; ok {
		return e
	}
	return &Symbol{Name: name}
}

func negate(e Expr) Expr {
	if n, ok := e.(*Number); ok {
		return &Number{val: new(big.Rat).Neg(n.val)}
	}
	return &Mul{Factors: []Expr{NewInt(-1), e}}
}

func describe(tok Token) string {
	switch tok.Kind {
	case TokenIdent, TokenNumber:
		return fmt.Sprintf("%s %q", tok.Kind, tok.Value)
	}
	return tok.Kind.String()
}
