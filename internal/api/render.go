package api

import (
	"bytes"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer turns turn text into sanitized HTML for the chat page.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewRenderer() *Renderer {
	return &Renderer{
		md:     goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps())),
		policy: bluemonday.UGCPolicy(),
	}
}

func (r *Renderer) HTML(text string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return template.HTMLEscapeString(text)
	}
	return r.policy.Sanitize(buf.String())
}
