package chunker

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractHeading returns the first level-1 or level-2 heading of a markdown
// document. Attached to chunks as retrieval metadata so search results carry
// document context.
func ExtractHeading(markdown string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if heading, ok := node.(*ast.Heading); ok {
			if heading.Level == 1 || heading.Level == 2 {
				return strings.TrimSpace(string(heading.Text(reader.Source())))
			}
		}
	}
	return ""
}

// IsMarkdown reports whether a mime type should get markdown treatment.
func IsMarkdown(mimeType string) bool {
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "text/markdown", "text/x-markdown":
		return true
	}
	return false
}
