package render

import (
	"bytes"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// el builds an element. attrs are key/value pairs.
func el(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func appendAll(parent *html.Node, children ...*html.Node) *html.Node {
	for _, c := range children {
		if c != nil {
			parent.AppendChild(c)
		}
	}
	return parent
}

// withText builds an element holding a single text child.
func withText(a atom.Atom, s string, attrs ...string) *html.Node {
	return appendAll(el(a, attrs...), text(s))
}

func hidden(name, value string) *html.Node {
	return el(atom.Input, "type", "hidden", "name", name, "value", value)
}

// HTML serialises a tree. Render errors only come from the writer, which
// is an in-memory buffer here.
func HTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

// Attr returns the value of key on n, for tests and callers inspecting trees.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasClass reports whether n carries class c.
func HasClass(n *html.Node, c string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, field := range bytes.Fields([]byte(Attr(n, "class"))) {
		if string(field) == c {
			return true
		}
	}
	return false
}

// FindAll returns every descendant of n (n included) matching pred, in document order.
func FindAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if pred(c) {
			out = append(out, c)
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// ByClass matches elements carrying class c.
func ByClass(c string) func(*html.Node) bool {
	return func(n *html.Node) bool { return HasClass(n, c) }
}

// ByTag matches elements of type a.
func ByTag(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Type == html.ElementNode && n.DataAtom == a }
}

// TextContent concatenates all text below n.
func TextContent(n *html.Node) string {
	var buf bytes.Buffer
	for _, t := range FindAll(n, func(c *html.Node) bool { return c.Type == html.TextNode }) {
		buf.WriteString(t.Data)
	}
	return buf.String()
}
