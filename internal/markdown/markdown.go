// Package markdown turns trusted-but-editable text (the rules page) into
// sanitised HTML.
package markdown

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type Processor struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func New() *Processor {
	md := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify, GreentextExtension),
	)

	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^greentext$`)).OnElements("span")
	p.RequireNoFollowOnLinks(true)
	p.AllowRelativeURLs(true)

	return &Processor{md: md, policy: p}
}

// Render converts markdown to HTML and sanitises the result. Raw HTML in the
// input is dropped by goldmark's default renderer before sanitising.
func (p *Processor) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := p.md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(p.policy.Sanitize(buf.String())), nil
}
