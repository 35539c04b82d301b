package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// nodeText concatenates every text node under n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// textAfter returns the first non-empty text following n among its siblings,
// skipping <br>. The portal lays fields out as <label>Name:</label><br>VALUE.
func textAfter(n *html.Node) (string, bool) {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		switch s.Type {
		case html.TextNode:
			if t := cleanText(s.Data); t != "" {
				return t, true
			}
		case html.ElementNode:
			if s.DataAtom == atom.Br {
				continue
			}
			if t := cleanText(nodeText(s)); t != "" {
				return t, true
			}
		}
	}
	return "", false
}

// joinedTextAfter joins the text siblings following n up to the first element
// other than <br>. Addresses span several <br>-separated lines.
func joinedTextAfter(n *html.Node) (string, bool) {
	var parts []string
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			if s.DataAtom == atom.Br {
				continue
			}
			break
		}
		if s.Type == html.TextNode {
			if t := cleanText(s.Data); t != "" {
				parts = append(parts, t)
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

// nextTableAfterText finds the first text node matching re in document order
// and returns the first <table> that follows it.
func nextTableAfterText(roots []*html.Node, re *regexp.Regexp) *html.Node {
	seen := false
	var table *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if seen && n.Type == html.ElementNode && n.DataAtom == atom.Table {
			table = n
			return true
		}
		if !seen && n.Type == html.TextNode && re.MatchString(n.Data) {
			seen = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for _, r := range roots {
		if walk(r) {
			break
		}
	}
	return table
}
