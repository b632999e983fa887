package markdown

import (
	"bytes"
	"html/template"
	"log"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var headings = []string{"h1", "h2", "h3", "h4", "h5", "h6"}

func basePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "hr", "pre", "code", "blockquote", "ul", "ol", "li", "em", "strong", "del", "a")
	p.AllowElements(headings...)
	p.AllowAttrs("href", "title", "target", "rel").OnElements("a")
	p.AllowStandardURLs()
	p.AllowURLSchemes("http", "https", "mailto")
	return p
}

// forumPolicy disallows inline images; imagePolicy additionally allows them
// and forces links into new tabs, for the resume page.
var forumPolicy = basePolicy()

var imagePolicy = func() *bluemonday.Policy {
	p := basePolicy()
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowImages()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}()

func render(src string, policy *bluemonday.Policy) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		log.Println("markdown: render failed:", err)
		return ""
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes()))
}

// Render converts markdown to sanitized HTML for forum posts and replies.
func Render(src string) template.HTML {
	return render(src, forumPolicy)
}

// RenderWithImages is the resume variant: images allowed, every link opens
// in a new tab with a safe rel.
func RenderWithImages(src string) template.HTML {
	return render(src, imagePolicy)
}
