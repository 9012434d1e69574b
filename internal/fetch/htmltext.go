package fetch

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// skipElements are subtrees that never carry article text.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"iframe":   true,
	"svg":      true,
	"form":     true,
}

// overlayPattern matches id/class values of cookie walls, modals, and
// similar page furniture that pollutes extracted text.
var overlayPattern = regexp.MustCompile(`(?i)overlay|modal|popup|cookie|banner|consent|newsletter`)

var whitespacePattern = regexp.MustCompile(`\s+`)

// extractText parses HTML and returns the page title and the visible
// text, with boilerplate subtrees removed and whitespace collapsed.
func extractText(rawHTML string) (title, text string, err error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
			if skipElements[n.Data] || isOverlay(n) {
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(sb.String(), " "))
	return title, text, nil
}

// isOverlay reports whether an element's id or class marks it as page
// furniture rather than content.
func isOverlay(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "id" || attr.Key == "class" {
			if overlayPattern.MatchString(attr.Val) {
				return true
			}
		}
	}
	return false
}
