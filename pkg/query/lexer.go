package query

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrDanglingPrefix is returned when a field prefix is not followed by a word.
var ErrDanglingPrefix = errors.New("prefix without word")

// Lex splits a raw query into tokens.
//
// Words are whitespace delimited and parentheses always stand alone. A
// leading backslash escapes the next character so `\#rust` is the plain word
// "#rust" and `\and` is the word "and". An unterminated quote extends to the
// end of the input.
func Lex(input string) ([]Token, error) {
	l := &lexer{src: []rune(input)}
	var tokens []Token
	for {
		l.skipSpace()
		if l.eof() {
			return tokens, nil
		}
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		// Empty phrases ("" or a lone backslash) carry no constraint.
		if tok.isLeaf() && tok.Text == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
}

type lexer struct {
	src []rune
	pos int
}

func (l *lexer) eof() bool { return l.pos >= len(l.src) }

func (l *lexer) peek() rune { return l.src[l.pos] }

func (l *lexer) skipSpace() {
	for !l.eof() && unicode.IsSpace(l.peek()) {
		l.pos++
	}
}

func isWordBoundary(c rune) bool {
	return unicode.IsSpace(c) || c == '(' || c == ')'
}

func (l *lexer) next() (Token, error) {
	c := l.peek()
	switch c {
	case '(':
		l.pos++
		return Token{Kind: LParen}, nil
	case ')':
		l.pos++
		return Token{Kind: RParen}, nil
	case '"':
		l.pos++
		return Token{Kind: Quoted, Text: l.quoted()}, nil
	case '\\':
		// Escaped words are never operators or prefixed.
		return Token{Kind: Word, Text: l.word()}, nil
	}

	if p, ok := prefixFor(c); ok {
		start := l.pos
		l.pos++
		if l.eof() || isWordBoundary(l.peek()) {
			return Token{}, fmt.Errorf("%w: %q at offset %d", ErrDanglingPrefix, string(c), start)
		}
		if l.peek() == '"' {
			l.pos++
			return Token{Kind: PrefixedQuoted, Prefix: p, Text: l.quoted()}, nil
		}
		return Token{Kind: PrefixedWord, Prefix: p, Text: l.word()}, nil
	}

	w := l.word()
	switch w {
	case "and":
		return Token{Kind: And}, nil
	case "or":
		return Token{Kind: Or}, nil
	case "not":
		return Token{Kind: Not}, nil
	}
	return Token{Kind: Word, Text: w}, nil
}

// word reads up to the next boundary, resolving backslash escapes.
func (l *lexer) word() string {
	var sb strings.Builder
	for !l.eof() {
		c := l.peek()
		if c == '\\' {
			l.pos++
			if l.eof() {
				break
			}
			sb.WriteRune(l.peek())
			l.pos++
			continue
		}
		if isWordBoundary(c) {
			break
		}
		sb.WriteRune(c)
		l.pos++
	}
	return sb.String()
}

// quoted reads a phrase after the opening quote up to the closing quote.
func (l *lexer) quoted() string {
	var sb strings.Builder
	for !l.eof() {
		c := l.peek()
		l.pos++
		switch c {
		case '\\':
			if !l.eof() {
				sb.WriteRune(l.peek())
				l.pos++
			}
		case '"':
			return sb.String()
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}
