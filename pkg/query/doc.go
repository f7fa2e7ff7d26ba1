// Package query implements the bookmark filter language.
//
// A query is lexed into tokens, repaired by Normalize, parsed into a Filter
// tree and evaluated against one bookmark at a time:
//
//	rust video                 title, description, url or tags contain both words
//	#programming               tag "programming" or any tag under "programming/"
//	.go >tutorial              title contains "go", description contains "tutorial"
//	:github.com or "deep dive" url contains github.com, or the phrase anywhere
//	not #archived and rust     (not #archived) and rust
//
// Everything in this package is pure and safe for concurrent use.
package query
