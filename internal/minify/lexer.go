package minify

import (
	"strings"
)

// lexer splits PHP source into tokens. It only distinguishes what the
// minifier needs: comments, whitespace and the literals that may contain
// comment-like or whitespace text (strings, heredocs, inline text).
type lexer struct {
	src    string
	pos    int
	tokens []Token
}

// Tokenize lexes src into tokens in source order.
func Tokenize(src string) []Token {
	l := &lexer{src: src}

	for l.pos < len(l.src) {
		l.lexInline()
		l.lexCode()
	}

	return l.tokens
}

func (l *lexer) emit(kind Kind, end int) {
	if end > len(l.src) {
		end = len(l.src)
	}

	if end <= l.pos {
		return
	}

	l.tokens = append(l.tokens, Token{Kind: kind, Text: l.src[l.pos:end]})
	l.pos = end
}

// lexInline consumes text up to and including the next open tag.
func (l *lexer) lexInline() {
	start, end := l.findOpenTag(l.pos)
	if start < 0 {
		l.emit(KindOther, len(l.src))
		return
	}

	l.emit(KindOther, start)
	l.emit(KindOther, end)
}

// findOpenTag returns the bounds of the next "<?php" or "<?=" tag at or after i.
// A "<?php" tag swallows one following whitespace character, counting "\r\n" as one.
func (l *lexer) findOpenTag(i int) (int, int) {
	for {
		idx := strings.Index(l.src[i:], "<?")
		if idx < 0 {
			return -1, -1
		}

		start := i + idx
		rest := l.src[start+2:]

		switch {
		case strings.HasPrefix(rest, "="):
			return start, start + 3
		case len(rest) >= 3 && strings.EqualFold(rest[:3], "php"):
			end := start + 5
			if end == len(l.src) {
				return start, end
			}

			if isSpace(l.src[end]) {
				if strings.HasPrefix(l.src[end:], "\r\n") {
					return start, end + 2
				}

				return start, end + 1
			}
		}

		i = start + 2
	}
}

// lexCode consumes PHP code up to and including the next close tag.
func (l *lexer) lexCode() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]

		switch {
		case isSpace(c):
			end := l.pos
			for end < len(l.src) && isSpace(l.src[end]) {
				end++
			}

			l.emit(KindWhitespace, end)

		case c == '#' && !l.peekIs(1, '['), c == '/' && l.peekIs(1, '/'):
			l.emit(KindComment, l.lineCommentEnd())

		case c == '/' && l.peekIs(1, '*'):
			kind := KindComment
			if strings.HasPrefix(l.src[l.pos:], "/**") && l.pos+3 < len(l.src) && isSpace(l.src[l.pos+3]) {
				kind = KindDocComment
			}

			l.emit(kind, l.blockCommentEnd())

		case c == '?' && l.peekIs(1, '>'):
			l.emit(KindOther, l.closeTagEnd())
			return

		case c == '\'' || c == '"' || c == '`':
			l.emit(KindCode, l.quotedEnd(c))

		default:
			if end := l.heredocEnd(l.pos); end > 0 {
				l.emit(KindCode, end)
				continue
			}

			end := l.pos + 1
			for end < len(l.src) && !l.startsToken(end) {
				end++
			}

			l.emit(KindCode, end)
		}
	}
}

func (l *lexer) peekIs(offset int, c byte) bool {
	i := l.pos + offset
	return i < len(l.src) && l.src[i] == c
}

// startsToken reports whether a token other than plain code begins at i.
func (l *lexer) startsToken(i int) bool {
	c := l.src[i]
	next := byte(0)
	if i+1 < len(l.src) {
		next = l.src[i+1]
	}

	switch {
	case isSpace(c):
		return true
	case c == '#':
		return next != '['
	case c == '/':
		return next == '/' || next == '*'
	case c == '?':
		return next == '>'
	case c == '\'' || c == '"' || c == '`':
		return true
	case c == '<':
		return l.heredocEnd(i) > 0
	}

	return false
}

// lineCommentEnd stops before the line ending or a close tag.
func (l *lexer) lineCommentEnd() int {
	for i := l.pos; i < len(l.src); i++ {
		switch l.src[i] {
		case '\n', '\r':
			return i
		case '?':
			if i+1 < len(l.src) && l.src[i+1] == '>' {
				return i
			}
		}
	}

	return len(l.src)
}

// blockCommentEnd runs to the end of the source when the comment is unterminated.
func (l *lexer) blockCommentEnd() int {
	idx := strings.Index(l.src[l.pos+2:], "*/")
	if idx < 0 {
		return len(l.src)
	}

	return l.pos + 2 + idx + 2
}

func (l *lexer) closeTagEnd() int {
	end := l.pos + 2
	switch {
	case strings.HasPrefix(l.src[end:], "\r\n"):
		return end + 2
	case strings.HasPrefix(l.src[end:], "\n"), strings.HasPrefix(l.src[end:], "\r"):
		return end + 1
	}

	return end
}

func (l *lexer) quotedEnd(quote byte) int {
	i := l.pos + 1
	for i < len(l.src) {
		switch l.src[i] {
		case '\\':
			i += 2
		case quote:
			return i + 1
		default:
			i++
		}
	}

	return len(l.src)
}

// heredocEnd returns the end of a heredoc or nowdoc starting at i, or -1 if
// no valid heredoc opener is there. The closing identifier may be indented.
func (l *lexer) heredocEnd(i int) int {
	if !strings.HasPrefix(l.src[i:], "<<<") {
		return -1
	}

	j := i + 3
	for j < len(l.src) && (l.src[j] == ' ' || l.src[j] == '\t') {
		j++
	}

	var quote byte
	if j < len(l.src) && (l.src[j] == '"' || l.src[j] == '\'') {
		quote = l.src[j]
		j++
	}

	idStart := j
	if j >= len(l.src) || !isIdentStart(l.src[j]) {
		return -1
	}

	for j < len(l.src) && isIdentChar(l.src[j]) {
		j++
	}

	id := l.src[idStart:j]

	if quote != 0 {
		if j >= len(l.src) || l.src[j] != quote {
			return -1
		}

		j++
	}

	switch {
	case strings.HasPrefix(l.src[j:], "\r\n"):
		j += 2
	case strings.HasPrefix(l.src[j:], "\n"), strings.HasPrefix(l.src[j:], "\r"):
		j++
	default:
		return -1
	}

	for lineStart := j; lineStart < len(l.src); {
		k := lineStart
		for k < len(l.src) && (l.src[k] == ' ' || l.src[k] == '\t') {
			k++
		}

		if strings.HasPrefix(l.src[k:], id) {
			end := k + len(id)
			if end == len(l.src) || !isIdentChar(l.src[end]) {
				return end
			}
		}

		nl := strings.IndexAny(l.src[lineStart:], "\r\n")
		if nl < 0 {
			break
		}

		lineStart += nl + 1
	}

	return len(l.src)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 0x80 || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
