package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	assert.Equal(t, "**Hi**", Identity.Render("**Hi**"))
}

func TestHTMLBold(t *testing.T) {
	out := NewHTML().Render("**Hi**")
	assert.Equal(t, "<p><strong>Hi</strong></p>\n", out)
}

func TestHTMLRendersPartialDocument(t *testing.T) {
	h := NewHTML()
	partial := h.Render("```go\nfmt.Println(")
	assert.Contains(t, partial, "<code")
	full := h.Render("```go\nfmt.Println(1)\n```\n")
	assert.Contains(t, full, "fmt.Println(1)")
}

func TestHTMLTable(t *testing.T) {
	out := NewHTML().Render("| a | b |\n|---|---|\n| 1 | 2 |\n")
	assert.True(t, strings.Contains(out, "<table>"))
}

func TestTerminal(t *testing.T) {
	r, err := NewTerminal(80)
	require.NoError(t, err)
	out := r.Render("# Title")
	assert.Contains(t, out, "Title")
}
