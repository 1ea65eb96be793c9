package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// defaultWrapWidth applies until the first window size message arrives.
const defaultWrapWidth = 80

// markdownRenderer converts answer markdown to styled terminal output.
// The glamour renderer is cached and only rebuilt when the width changes,
// since construction is the expensive part.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

func newGlamour(width int) (*glamour.TermRenderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // detect light/dark terminal
		glamour.WithWordWrap(width),
	)
}

// newMarkdownRenderer creates a renderer wrapping at width. A construction
// failure degrades to plain text rather than blocking the interface.
func newMarkdownRenderer(width int) *markdownRenderer {
	if width <= 0 {
		width = defaultWrapWidth
	}
	g, err := newGlamour(width)
	if err != nil {
		return nil
	}
	return &markdownRenderer{renderer: g, width: width}
}

// UpdateWidth rebuilds the renderer when the width actually changed and
// reports whether it did. A rebuild failure keeps the current renderer.
func (r *markdownRenderer) UpdateWidth(width int) bool {
	if r == nil || width <= 0 || width == r.width {
		return false
	}
	g, err := newGlamour(width)
	if err != nil {
		return false
	}
	r.renderer, r.width = g, width
	return true
}

// Render converts markdown to styled terminal output, falling back to the
// raw text when the renderer is unavailable or errors. Glamour pads its
// output with a trailing newline the viewport does not want.
func (r *markdownRenderer) Render(markdown string) string {
	if r == nil || r.renderer == nil {
		return markdown
	}
	out, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimSuffix(out, "\n")
}
