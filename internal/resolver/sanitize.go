package resolver

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Elements whose whole subtree carries nothing a form field locator needs.
var strippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Link:     true,
	atom.Meta:     true,
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize reduces a page to the markup of its body: scripts, styles, SVG,
// frames and comments are removed, inline styles and event handlers dropped,
// whitespace collapsed, and the result capped at maxChars characters.
func Sanitize(raw string, maxChars int) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	root := findBody(doc)
	if root == nil {
		root = doc
	}
	prune(root)

	var buf bytes.Buffer
	if root.Type == html.DocumentNode {
		err = html.Render(&buf, root)
	} else {
		for c := root.FirstChild; c != nil && err == nil; c = c.NextSibling {
			err = html.Render(&buf, c)
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}

	out := strings.TrimSpace(whitespaceRun.ReplaceAllString(buf.String(), " "))
	return truncate(out, maxChars), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode,
			c.Type == html.ElementNode && strippedElements[c.DataAtom]:
			n.RemoveChild(c)
		default:
			if c.Type == html.ElementNode {
				c.Attr = keepAttrs(c.Attr)
			}
			prune(c)
		}
		c = next
	}
}

func keepAttrs(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if key == "style" || strings.HasPrefix(key, "on") || strings.HasPrefix(key, "data-v-") {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// truncate keeps the first maxChars runes of s.
func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
