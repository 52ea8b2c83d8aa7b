package fetch

import (
	"strings"

	"golang.org/x/net/html"
)

// skipElements are subtrees that never contain article text
var skipElements = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"header": true,
	"footer": true,
	"aside":  true,
	"form":   true,
	"iframe": true,
}

// ExtractContent pulls the title and main text content out of an HTML
// document. Block elements are joined with newlines; boilerplate chrome
// (nav, header, footer) is skipped.
func ExtractContent(rawHTML string) (title, content string) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", ""
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.Data] {
				return
			}
			if n.Data == "title" && title == "" {
				title = strings.TrimSpace(nodeText(n))
				return
			}
			if isBlockElement(n.Data) {
				if text := collapseSpace(nodeText(n)); text != "" {
					blocks = append(blocks, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title, strings.Join(blocks, "\n")
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "li", "blockquote", "pre", "h1", "h2", "h3", "h4", "td":
		return true
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
