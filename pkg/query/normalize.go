package query

// Normalize repairs sloppy token sequences so the parser only sees
// well-formed input or nothing at all. It never fails; a fully degenerate
// sequence normalizes to empty, which means "match everything".
//
// The passes run in order and the whole pipeline repeats until the sequence
// stops changing, since dropping an operator can expose a new empty group.
func Normalize(tokens []Token) []Token {
	out := append([]Token(nil), tokens...)
	for {
		before := len(out)
		out = removeEmptyGroups(out)
		out = balanceParens(out)
		out = stripBoundaryOperators(out)
		out = collapseOperators(out)
		out = stripBoundaryOperators(out)
		if len(out) == before {
			return out
		}
	}
}

// removeEmptyGroups drops adjacent "(" ")" pairs until none remain.
func removeEmptyGroups(tokens []Token) []Token {
	for {
		out := tokens[:0:0]
		changed := false
		for i := 0; i < len(tokens); i++ {
			if i+1 < len(tokens) && tokens[i].Kind == LParen && tokens[i+1].Kind == RParen {
				i++
				changed = true
				continue
			}
			out = append(out, tokens[i])
		}
		if !changed {
			return out
		}
		tokens = out
	}
}

// balanceParens drops unmatched ")" scanning forward, then unmatched "("
// scanning backward.
func balanceParens(tokens []Token) []Token {
	keep := make([]bool, len(tokens))
	depth := 0
	for i, t := range tokens {
		keep[i] = true
		switch t.Kind {
		case LParen:
			depth++
		case RParen:
			if depth == 0 {
				keep[i] = false
				continue
			}
			depth--
		}
	}

	depth = 0
	for i := len(tokens) - 1; i >= 0; i-- {
		if !keep[i] {
			continue
		}
		switch tokens[i].Kind {
		case RParen:
			depth++
		case LParen:
			if depth == 0 {
				keep[i] = false
				continue
			}
			depth--
		}
	}

	out := make([]Token, 0, len(tokens))
	for i, t := range tokens {
		if keep[i] {
			out = append(out, t)
		}
	}
	return out
}

// stripBoundaryOperators removes leading and/or and trailing and/or/not.
// A leading not is a valid prefix and stays.
func stripBoundaryOperators(tokens []Token) []Token {
	start, end := 0, len(tokens)
	for start < end && tokens[start].isBinary() {
		start++
	}
	for end > start && tokens[end-1].isOperator() {
		end--
	}
	return append([]Token(nil), tokens[start:end]...)
}

// collapseOperators removes operators that cannot bind: repeated binary
// operators keep the first, binary operators after "(" or "not" are
// dropped, and no operator may precede ")".
func collapseOperators(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for i, t := range tokens {
		if t.isBinary() && len(out) > 0 {
			prev := out[len(out)-1]
			if prev.isBinary() || prev.Kind == LParen || prev.Kind == Not {
				continue
			}
		}
		if t.isOperator() && i+1 < len(tokens) && tokens[i+1].Kind == RParen {
			continue
		}
		out = append(out, t)
	}
	return out
}
