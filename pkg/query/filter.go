package query

import (
	"strings"

	"github.com/XiaoConstantine/bmark/pkg/bookmark"
)

// Field is the bookmark field a term is matched against.
type Field int

const (
	FieldAll Field = iota
	FieldTag
	FieldTitle
	FieldDescription
	FieldURL
)

// Filter is a boolean expression over bookmark fields. The set of
// implementations is closed: Term, AndFilter, OrFilter and NotFilter.
type Filter interface {
	String() string
	filter()
}

// Term matches text against one field.
type Term struct {
	Field Field
	Text  string
}

// AndFilter matches when both sides match.
type AndFilter struct{ Left, Right Filter }

// OrFilter matches when either side matches.
type OrFilter struct{ Left, Right Filter }

// NotFilter inverts its operand.
type NotFilter struct{ Inner Filter }

func (Term) filter()      {}
func (AndFilter) filter() {}
func (OrFilter) filter()  {}
func (NotFilter) filter() {}

func (t Term) String() string {
	prefix := ""
	switch t.Field {
	case FieldTag:
		prefix = "#"
	case FieldTitle:
		prefix = "."
	case FieldDescription:
		prefix = ">"
	case FieldURL:
		prefix = ":"
	}
	return prefix + `"` + t.Text + `"`
}

func (f AndFilter) String() string { return "(" + f.Left.String() + " and " + f.Right.String() + ")" }
func (f OrFilter) String() string  { return "(" + f.Left.String() + " or " + f.Right.String() + ")" }
func (f NotFilter) String() string { return "not " + f.Inner.String() }

// Eval reports whether b satisfies f. A nil filter matches everything.
func Eval(f Filter, b *bookmark.Bookmark) bool {
	switch f := f.(type) {
	case nil:
		return true
	case Term:
		return matchTerm(f, b)
	case AndFilter:
		return Eval(f.Left, b) && Eval(f.Right, b)
	case OrFilter:
		return Eval(f.Left, b) || Eval(f.Right, b)
	case NotFilter:
		return !Eval(f.Inner, b)
	}
	return false
}

func matchTerm(t Term, b *bookmark.Bookmark) bool {
	needle := strings.ToLower(t.Text)
	switch t.Field {
	case FieldTag:
		for _, tag := range b.Tags {
			if TagMatches(tag, needle) {
				return true
			}
		}
		return false
	case FieldTitle:
		return containsFold(b.Title, needle)
	case FieldDescription:
		return containsFold(b.Description, needle)
	case FieldURL:
		return containsFold(b.URL, needle)
	}

	if containsFold(b.Title, needle) || containsFold(b.Description, needle) || containsFold(b.URL, needle) {
		return true
	}
	for _, tag := range b.Tags {
		if containsFold(tag, needle) {
			return true
		}
	}
	return false
}

// TagMatches reports whether tag equals want or is nested under it, so
// "programming/rust" matches "programming" but not "rust". Comparison is
// case-insensitive.
func TagMatches(tag, want string) bool {
	tag = strings.ToLower(tag)
	want = strings.ToLower(want)
	return tag == want || strings.HasPrefix(tag, want+"/")
}

func containsFold(s, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}

// Match parses query and evaluates it against b.
func Match(query string, b *bookmark.Bookmark) (bool, error) {
	f, err := ParseQuery(query)
	if err != nil {
		return false, err
	}
	return Eval(f, b), nil
}

// Select returns the bookmarks matching f, preserving input order.
func Select(f Filter, bookmarks []bookmark.Bookmark) []bookmark.Bookmark {
	out := make([]bookmark.Bookmark, 0, len(bookmarks))
	for i := range bookmarks {
		if Eval(f, &bookmarks[i]) {
			out = append(out, bookmarks[i])
		}
	}
	return out
}
