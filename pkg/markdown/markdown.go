// Package markdown holds the text transforms applied to assistant content
// before it is handed to callers.
package markdown

import (
	"bytes"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer transforms a full markdown document. Streaming callers pass the
// whole text accumulated so far, since partial markdown renders differently
// once more of it arrives.
type Renderer interface {
	Render(text string) string
}

type RendererFunc func(text string) string

func (f RendererFunc) Render(text string) string {
	return f(text)
}

// Identity leaves text untouched.
var Identity Renderer = RendererFunc(func(text string) string { return text })

// HTML renders markdown to HTML with goldmark and the GFM extensions.
type HTML struct {
	md goldmark.Markdown
}

var _ Renderer = (*HTML)(nil)

func NewHTML() *HTML {
	return &HTML{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Render returns the input unchanged when goldmark fails.
func (h *HTML) Render(text string) string {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(text), &buf); err != nil {
		log.Debug().Err(err).Msg("could not render markdown to html")
		return text
	}
	return buf.String()
}

// Terminal renders markdown for display in a terminal with glamour.
type Terminal struct {
	r *glamour.TermRenderer
}

var _ Renderer = (*Terminal)(nil)

func NewTerminal(wordWrap int) (*Terminal, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, err
	}
	return &Terminal{r: r}, nil
}

func (t *Terminal) Render(text string) string {
	out, err := t.r.Render(text)
	if err != nil {
		log.Debug().Err(err).Msg("could not render markdown for terminal")
		return text
	}
	return out
}
