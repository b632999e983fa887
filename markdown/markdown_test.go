package markdown

import (
	"strings"
	"testing"
)

func TestRenderBasicMarkdown(t *testing.T) {
	out := string(Render("# Title\n\nSome **bold** text."))
	if !strings.Contains(out, "<h1>Title</h1>") {
		t.Fatalf("heading not rendered: %q", out)
	}
	if !strings.Contains(out, "<strong>bold</strong>") {
		t.Fatalf("bold not rendered: %q", out)
	}
}

func TestRenderStripsScripts(t *testing.T) {
	out := string(Render("hello <script>alert(1)</script> world"))
	if strings.Contains(out, "<script") || strings.Contains(out, "alert(1)") {
		t.Fatalf("script should be stripped: %q", out)
	}
}

func TestRenderStripsEventHandlers(t *testing.T) {
	out := string(Render(`<a href="https://example.com" onclick="steal()">link</a>`))
	if strings.Contains(out, "onclick") {
		t.Fatalf("event handler should be stripped: %q", out)
	}
	if !strings.Contains(out, "link") {
		t.Fatalf("link text should survive: %q", out)
	}
}

func TestRenderBlocksJavascriptLinks(t *testing.T) {
	out := string(Render("[click](javascript:alert(1))"))
	if strings.Contains(out, "javascript:") {
		t.Fatalf("javascript scheme should be blocked: %q", out)
	}
}

func TestForumRenderDropsImages(t *testing.T) {
	out := string(Render("![pic](https://example.com/pic.png)"))
	if strings.Contains(out, "<img") {
		t.Fatalf("forum markdown must not allow images: %q", out)
	}
}

func TestRenderWithImagesKeepsImages(t *testing.T) {
	out := string(RenderWithImages("![pic](https://example.com/pic.png)"))
	if !strings.Contains(out, "<img") || !strings.Contains(out, "https://example.com/pic.png") {
		t.Fatalf("resume markdown should allow images: %q", out)
	}
}

func TestRenderWithImagesLinksOpenNewTab(t *testing.T) {
	out := string(RenderWithImages("[site](https://example.com)"))
	if !strings.Contains(out, `target="_blank"`) {
		t.Fatalf("external links should open in a new tab: %q", out)
	}
	if !strings.Contains(out, "nofollow") {
		t.Fatalf("links should carry rel=nofollow: %q", out)
	}
}
