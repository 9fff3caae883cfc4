package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var skippedText = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// PageText is the visible text of the body with whitespace collapsed.
// Text nodes are joined with spaces so adjacent cells do not run together.
func PageText(doc *goquery.Document) string {
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if skippedText[n.Data] {
				return
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range root.Nodes {
		walk(n)
	}
	return collapse(b.String())
}

// SiteMatches is the target-site heuristic: the URL mentions a keyword.
func SiteMatches(rawURL string, keywords []string) bool {
	u := strings.ToLower(rawURL)
	for _, k := range keywords {
		if k != "" && strings.Contains(u, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
