package query

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedToken is returned when a token cannot start an expression.
	ErrUnexpectedToken = errors.New("unexpected token")
	// ErrUnexpectedEnd is returned when the input ends mid-expression.
	ErrUnexpectedEnd = errors.New("unexpected end of query")
	// ErrTrailingTokens is returned when tokens remain after a full parse.
	ErrTrailingTokens = errors.New("unconsumed tokens")
)

// ParseQuery lexes, normalizes and parses a raw query string. A nil filter
// with a nil error means the query matches every bookmark.
func ParseQuery(input string) (Filter, error) {
	tokens, err := Lex(input)
	if err != nil {
		return nil, err
	}
	return Parse(Normalize(tokens))
}

// Parse builds a filter from a normalized token sequence.
//
// Grammar, lowest precedence first:
//
//	or_expr  := and_expr ("or" and_expr)*
//	and_expr := not_expr (("and")? not_expr)*
//	not_expr := "not" not_expr | primary
//	primary  := "(" or_expr ")" | leaf
//
// Adjacent terms without an operator are ANDed.
func Parse(tokens []Token) (Filter, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	p := &parser{tokens: tokens}
	f, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("%w: %s at position %d", ErrTrailingTokens, p.peek(), p.pos)
	}
	return f, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() Token { return p.tokens[p.pos] }

func (p *parser) orExpr() (Filter, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for !p.done() && p.peek().Kind == Or {
		p.pos++
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = OrFilter{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) andExpr() (Filter, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for !p.done() {
		switch t := p.peek(); {
		case t.Kind == And:
			p.pos++
		case t.Kind == Not || t.Kind == LParen || t.isLeaf():
			// implicit and
		default:
			return left, nil
		}
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = AndFilter{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) notExpr() (Filter, error) {
	if !p.done() && p.peek().Kind == Not {
		p.pos++
		inner, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return NotFilter{Inner: inner}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Filter, error) {
	if p.done() {
		return nil, ErrUnexpectedEnd
	}
	t := p.peek()
	switch t.Kind {
	case LParen:
		p.pos++
		inner, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if p.done() {
			return nil, fmt.Errorf("%w: missing )", ErrUnexpectedEnd)
		}
		if p.peek().Kind != RParen {
			return nil, fmt.Errorf("%w: %s at position %d, want )", ErrUnexpectedToken, p.peek(), p.pos)
		}
		p.pos++
		return inner, nil
	case Word, Quoted:
		p.pos++
		return Term{Field: FieldAll, Text: t.Text}, nil
	case PrefixedWord, PrefixedQuoted:
		p.pos++
		return Term{Field: t.Prefix.Field(), Text: t.Text}, nil
	}
	return nil, fmt.Errorf("%w: %s at position %d", ErrUnexpectedToken, t, p.pos)
}
