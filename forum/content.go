package forum

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gitlab.com/golang-commonmark/markdown"
)

var (
	md     = markdown.New(markdown.HTML(false), markdown.Linkify(true), markdown.Typographer(false))
	policy = bluemonday.UGCPolicy()
)

// RenderText renders comment markdown to HTML and strips anything unsafe.
// Placeholder texts are rendered like any other text.
func RenderText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return policy.Sanitize(md.RenderToString([]byte(text)))
}
