package chunker

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into the units the chunker counts and re-joins.
// Exact provider tokenization is not available offline, so the default is a
// word/CJK-rune approximation.
type Tokenizer interface {
	Tokenize(text string) []string
}

type defaultTokenizer struct{}

func NewDefaultTokenizer() Tokenizer {
	return defaultTokenizer{}
}

// Tokenize treats each whitespace-separated word as one token and each CJK
// rune as its own token, so mixed-language content is counted sensibly.
func (defaultTokenizer) Tokenize(text string) []string {
	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
