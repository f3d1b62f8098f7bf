// ABOUTME: Markdown rendering for post bodies
// ABOUTME: Raw HTML in posts is dropped; links are auto-detected

package feed

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

func newRenderer() goldmark.Markdown {
	// goldmark omits raw HTML unless html.WithUnsafe is set.
	return goldmark.New(
		goldmark.WithExtensions(
			extension.Linkify,
			extension.Strikethrough,
		),
	)
}

// Render converts a CommonMark post body to HTML.
func (m *Manager) Render(body string) (string, error) {
	var buf bytes.Buffer
	if err := m.renderer.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("rendering post body: %w", err)
	}
	return buf.String(), nil
}
