package conversation

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer converts Markdown reply payloads to terminal markup. A
// renderer that cannot be built, or a payload that fails to render,
// falls back to the raw text so no message is ever lost.
type Renderer struct {
	width   int
	options []glamour.TermRendererOption
}

// NewRenderer returns a renderer for the given wrap width using the
// terminal's detected style.
func NewRenderer(width int) *Renderer {
	return &Renderer{width: width, options: []glamour.TermRendererOption{glamour.WithAutoStyle()}}
}

// NewPlainRenderer returns a renderer with a fixed undecorated style,
// independent of the surrounding terminal.
func NewPlainRenderer(width int) *Renderer {
	return &Renderer{width: width, options: []glamour.TermRendererOption{glamour.WithStandardStyle("notty")}}
}

// SetWidth adjusts the wrap width for subsequent renders.
func (r *Renderer) SetWidth(width int) {
	r.width = width
}

// Render converts one Markdown payload. It never fails.
func (r *Renderer) Render(content string) string {
	width := r.width
	if width < 1 {
		width = 1
	}

	opts := append([]glamour.TermRendererOption{glamour.WithWordWrap(width), glamour.WithEmoji()}, r.options...)
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return strings.TrimSuffix(content, "\n")
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return strings.TrimSuffix(content, "\n")
	}

	return strings.Trim(rendered, "\n")
}
