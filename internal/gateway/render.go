// ABOUTME: Markdown rendering for conversation history served as HTML
// ABOUTME: Agent replies are markdown; raw HTML in them is not passed through

package gateway

import (
	"bytes"
	stdhtml "html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
}

// renderMarkdown converts content to HTML. On failure the content is escaped
// and returned in a <pre> block.
func (g *Gateway) renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := g.markdown.Convert([]byte(content), &buf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		buf.Reset()
		buf.WriteString("<pre>" + stdhtml.EscapeString(content) + "</pre>")
	}
	return buf.String()
}
