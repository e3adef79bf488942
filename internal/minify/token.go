package minify

// Kind classifies a lexed span of PHP source.
type Kind uint8

const (
	// KindCode is structural or literal PHP text: identifiers, operators, strings, heredocs.
	KindCode Kind = iota
	// KindComment is a //, # or /* */ comment.
	KindComment
	// KindDocComment is a /** */ comment.
	KindDocComment
	// KindWhitespace is a run of spaces, tabs and line endings inside PHP code.
	KindWhitespace
	// KindOther is inline text outside PHP plus the open and close tags.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindComment:
		return "comment"
	case KindDocComment:
		return "doc-comment"
	case KindWhitespace:
		return "whitespace"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Token is one lexed span. Concatenating the Text of every token produced
// for a source yields the source again.
type Token struct {
	Kind Kind
	Text string
}
