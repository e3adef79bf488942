// Package minify strips comments and redundant whitespace from PHP source
// while keeping every line where it was, so line numbers reported by the
// packaged application still point at the right place.
package minify

import (
	"regexp"
	"strings"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	lineEnding      = regexp.MustCompile(`\r\n|\r|\n`)
	indentation     = regexp.MustCompile(`\n +`)
)

// Minify removes comments and collapses whitespace in src.
//
// Comments are replaced by the newlines they contained. Whitespace next to a
// removed comment is normalized together with it, which makes Minify
// idempotent. If the lexer cannot account for every byte of src, src is
// returned unchanged.
func Minify(src string) string {
	tokens := Tokenize(src)
	if !covers(tokens, src) {
		return src
	}

	var out, pending strings.Builder
	out.Grow(len(src))

	flush := func() {
		if pending.Len() > 0 {
			out.WriteString(normalizeWhitespace(pending.String()))
			pending.Reset()
		}
	}

	for _, tok := range tokens {
		switch tok.Kind {
		case KindComment, KindDocComment:
			pending.WriteString(strings.Repeat("\n", strings.Count(tok.Text, "\n")))
		case KindWhitespace:
			pending.WriteString(tok.Text)
		default:
			flush()
			out.WriteString(tok.Text)
		}
	}

	flush()

	return out.String()
}

// Bytes is Minify for byte slices.
func Bytes(src []byte) []byte {
	return []byte(Minify(string(src)))
}

func normalizeWhitespace(ws string) string {
	ws = horizontalSpace.ReplaceAllString(ws, " ")
	ws = lineEnding.ReplaceAllString(ws, "\n")
	return indentation.ReplaceAllString(ws, "\n")
}

func covers(tokens []Token, src string) bool {
	n := 0
	for _, tok := range tokens {
		if !strings.HasPrefix(src[n:], tok.Text) {
			return false
		}

		n += len(tok.Text)
	}

	return n == len(src)
}
