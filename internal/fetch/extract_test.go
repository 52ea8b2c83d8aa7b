package fetch

import (
	"strings"
	"testing"
)

func TestExtractContent(t *testing.T) {
	doc := `<html>
<head><title>Go Memory Model</title><style>p { color: red }</style></head>
<body>
<nav><p>Home | Docs | Blog</p></nav>
<h1>The Go Memory Model</h1>
<p>The memory model specifies the conditions under which
reads  observe   writes.</p>
<ul><li>Happens before</li><li>Synchronization</li></ul>
<script>trackPageview()</script>
<footer><p>Copyright</p></footer>
</body></html>`

	title, content := ExtractContent(doc)

	if title != "Go Memory Model" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(content, "The Go Memory Model") {
		t.Error("heading text missing from content")
	}
	if !strings.Contains(content, "reads observe writes") {
		t.Errorf("whitespace not collapsed: %q", content)
	}
	if !strings.Contains(content, "Happens before") {
		t.Error("list item text missing from content")
	}
	if strings.Contains(content, "Home | Docs") {
		t.Error("nav boilerplate leaked into content")
	}
	if strings.Contains(content, "trackPageview") {
		t.Error("script text leaked into content")
	}
	if strings.Contains(content, "Copyright") {
		t.Error("footer text leaked into content")
	}
}

func TestExtractContent_Empty(t *testing.T) {
	title, content := ExtractContent("")
	if title != "" || content != "" {
		t.Errorf("expected empty extraction, got %q / %q", title, content)
	}
}

func TestCollapseSpace(t *testing.T) {
	if got := collapseSpace("  a \n\t b  c "); got != "a b c" {
		t.Errorf("collapseSpace = %q", got)
	}
}
