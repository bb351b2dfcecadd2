package chunker

import (
	"fmt"
	"strings"

	appErr "github.com/ctxhub/ctxhub/internal/pkg/errors"
)

// Segment is one overlap-adjusted slice of a file's text. StartToken/EndToken
// cover the full included token range, overlap prefix included.
type Segment struct {
	Seq        int
	StartToken int
	EndToken   int
	Content    string
	TokenCount int
}

type Chunker struct {
	tokenizer Tokenizer
}

func New(tokenizer Tokenizer) *Chunker {
	if tokenizer == nil {
		tokenizer = NewDefaultTokenizer()
	}
	return &Chunker{tokenizer: tokenizer}
}

// Chunk splits text into segments of at most maxTokens fresh tokens; every
// segment after the first repeats the trailing overlapTokens tokens of its
// predecessor. Identical input always yields an identical sequence. Empty
// text yields zero segments.
func (c *Chunker) Chunk(text string, maxTokens, overlapTokens int) ([]Segment, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive", appErr.ErrInvalid)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlap must be in [0, max tokens)", appErr.ErrInvalid)
	}
	tokens := c.tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	var segments []Segment
	seq := 0
	for start := 0; start < len(tokens); start += maxTokens {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		from := start
		if seq > 0 {
			from = start - overlapTokens
		}
		segments = append(segments, Segment{
			Seq:        seq,
			StartToken: from,
			EndToken:   end,
			Content:    strings.Join(tokens[from:end], " "),
			TokenCount: end - from,
		})
		seq++
	}
	return segments, nil
}
