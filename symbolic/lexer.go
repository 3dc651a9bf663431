package symbolic

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// TokenKind identifies the type of a lexer token.
type TokenKind int

const (
	// Literals and identifiers
	TokenIdent  TokenKind = iota // identifier
	TokenNumber                  // numeric literal

	// Operators
	TokenPlus  // +
	TokenMinus // -
	TokenStar  // *
	TokenSlash // /
	TokenPow   // ** or ^

	// Delimiters
	TokenLParen // (
	TokenRParen // )
	TokenComma  // ,

	TokenEOF
)

var tokenNames = map[TokenKind]string{
	TokenIdent:  "identifier",
	TokenNumber: "number",
	TokenPlus:   "+",
	TokenMinus:  "-",
	TokenStar:   "*",
	TokenSlash:  "/",
	TokenPow:    "**",
	TokenLParen: "(",
	TokenRParen: ")",
	TokenComma:  ",",
	TokenEOF:    "EOF",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is a lexed token with position information.
type Token struct {
	Kind  TokenKind
	Value string // raw text of the token
	Pos   int    // byte offset in source
}

// Lexer tokenizes expression strings.
type Lexer struct {
	src    string
	pos    int
	tokens []Token
}

// Lex tokenizes the input string and returns all tokens.
func Lex(src string) ([]Token, error) {
	l := &Lexer{src: src}
	if err := l.lexAll(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *Lexer) lexAll() error {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			l.tokens = append(l.tokens, Token{Kind: TokenEOF, Pos: l.pos})
			return nil
		}

		ch, _ := utf8.DecodeRuneInString(l.src[l.pos:])
		if l.tryEmitDoubleCharToken(ch) || l.tryEmitSingleCharToken(ch) {
			continue
		}

		switch {
		case isDigit(ch):
			if err := l.lexNumber(); err != nil {
				return err
			}
		case isIdentStart(ch):
			l.lexIdent()
		default:
			return &posError{pos: l.pos, msg: fmt.Sprintf("unexpected character %q at position %d", string(ch), l.pos)}
		}
	}
}

func (l *Lexer) tryEmitDoubleCharToken(ch rune) bool {
	if ch == '*' && l.peekNext() == '*' {
		l.emit2(TokenPow)
		return true
	}
	return false
}

func (l *Lexer) tryEmitSingleCharToken(ch rune) bool {
	switch ch {
	case '+':
		l.emit1(TokenPlus)
	case '-':
		l.emit1(TokenMinus)
	case '*':
		l.emit1(TokenStar)
	case '/':
		l.emit1(TokenSlash)
	case '^':
		l.emit1(TokenPow)
	case '(':
		l.emit1(TokenLParen)
	case ')':
		l.emit1(TokenRParen)
	case ',':
		l.emit1(TokenComma)
	default:
		return false
	}
	return true
}

func (l *Lexer) peekNext() byte {
	next := l.pos + 1
	if next >= len(l.src) {
		return 0
	}
	return l.src[next]
}

func (l *Lexer) emit1(kind TokenKind) {
	l.tokens = append(l.tokens, Token{Kind: kind, Value: l.src[l.pos : l.pos+1], Pos: l.pos})
	l.pos++
}

func (l *Lexer) emit2(kind TokenKind) {
	l.tokens = append(l.tokens, Token{Kind: kind, Value: l.src[l.pos : l.pos+2], Pos: l.pos})
	l.pos += 2
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) {
		ch, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(ch) {
			break
		}
		l.pos += size
	}
}

// lexNumber reads digits, an optional fraction and an optional exponent
// (1, 2.5, 1e3, 2.5E-2).
func (l *Lexer) lexNumber() error {
	start := l.pos
	l.skipDigits()
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		l.skipDigits()
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		mark := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos >= len(l.src) || !isDigit(rune(l.src[l.pos])) {
			return &posError{pos: mark, msg: fmt.Sprintf("malformed exponent in number at position %d", start)}
		}
		l.skipDigits()
	}
	if l.pos < len(l.src) {
		if ch, _ := utf8.DecodeRuneInString(l.src[l.pos:]); isIdentStart(ch) {
			return &posError{pos: l.pos, msg: fmt.Sprintf("unexpected character %q after number at position %d", string(ch), l.pos)}
		}
	}
	l.tokens = append(l.tokens, Token{Kind: TokenNumber, Value: l.src[start:l.pos], Pos: start})
	return nil
}

func (l *Lexer) skipDigits() {
	for l.pos < len(l.src) && isDigit(rune(l.src[l.pos])) {
		l.pos++
	}
}

func (l *Lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) {
		ch, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(ch) {
			break
		}
		l.pos += size
	}
	l.tokens = append(l.tokens, Token{Kind: TokenIdent, Value: l.src[start:l.pos], Pos: start})
}

// posError carries the offending byte offset so ParseError can report it.
type posError struct {
	pos int
	msg string
}

func (e *posError) Error() string { return e.msg }

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}
