package query

import "fmt"

// Kind identifies the variant of a Token.
type Kind int

const (
	Word Kind = iota
	Quoted
	PrefixedWord
	PrefixedQuoted
	And
	Or
	Not
	LParen
	RParen
)

// Prefix is the field selector written in front of a word.
type Prefix int

const (
	PrefixNone        Prefix = iota
	PrefixTag                // #
	PrefixTitle              // .
	PrefixDescription        // >
	PrefixURL                // :
)

func prefixFor(c rune) (Prefix, bool) {
	switch c {
	case '#':
		return PrefixTag, true
	case '.':
		return PrefixTitle, true
	case '>':
		return PrefixDescription, true
	case ':':
		return PrefixURL, true
	}
	return PrefixNone, false
}

func (p Prefix) String() string {
	switch p {
	case PrefixTag:
		return "#"
	case PrefixTitle:
		return "."
	case PrefixDescription:
		return ">"
	case PrefixURL:
		return ":"
	}
	return ""
}

// Field converts the prefix to the field it targets.
func (p Prefix) Field() Field {
	switch p {
	case PrefixTag:
		return FieldTag
	case PrefixTitle:
		return FieldTitle
	case PrefixDescription:
		return FieldDescription
	case PrefixURL:
		return FieldURL
	}
	return FieldAll
}

// Token is one lexical unit of a query. Prefix is set only for the
// prefixed kinds, Text only for the word kinds.
type Token struct {
	Kind   Kind
	Prefix Prefix
	Text   string
}

func (t Token) isBinary() bool { return t.Kind == And || t.Kind == Or }

func (t Token) isOperator() bool { return t.Kind == And || t.Kind == Or || t.Kind == Not }

func (t Token) isLeaf() bool {
	switch t.Kind {
	case Word, Quoted, PrefixedWord, PrefixedQuoted:
		return true
	}
	return false
}

func (t Token) String() string {
	switch t.Kind {
	case Word:
		return t.Text
	case Quoted:
		return fmt.Sprintf("%q", t.Text)
	case PrefixedWord:
		return t.Prefix.String() + t.Text
	case PrefixedQuoted:
		return t.Prefix.String() + fmt.Sprintf("%q", t.Text)
	case And:
		return "and"
	case Or:
		return "or"
	case Not:
		return "not"
	case LParen:
		return "("
	case RParen:
		return ")"
	}
	return "?"
}
