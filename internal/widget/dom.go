package widget

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the host page tree the widget mutates. It stands in for the
// browser DOM: the widget only ever needs head, body, class lookups and
// attribute edits, all of which x/net/html nodes already provide.
type Document struct {
	root *html.Node
	Head *html.Node
	Body *html.Node
}

// NewDocument returns an empty <html><head></head><body></body></html> page.
func NewDocument() *Document {
	head := El("head", nil)
	body := El("body", nil)
	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(El("html", nil, head, body))
	return &Document{root: root, Head: head, Body: body}
}

// ParseDocument parses host page markup. The HTML parser always synthesizes
// head and body elements, so every parsed document can host the widget.
func ParseDocument(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc := &Document{root: root}
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head:
				doc.Head = n
			case atom.Body:
				doc.Body = n
			}
		}
		return doc.Head == nil || doc.Body == nil
	})
	if doc.Head == nil || doc.Body == nil {
		return nil, errors.New("parse document: missing head or body")
	}
	return doc, nil
}

// Contains reports whether n is attached to this document.
func (d *Document) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// FindByClass returns the first element in the document carrying class.
func (d *Document) FindByClass(class string) *html.Node {
	return FindByClass(d.root, class)
}

// FindAllByClass returns every element in the document carrying class.
func (d *Document) FindAllByClass(class string) []*html.Node {
	return FindAllByClass(d.root, class)
}

// Render serializes the whole document.
func (d *Document) Render() string {
	return Render(d.root)
}

// El creates an element node with attributes and children.
func El(tag string, attrs []html.Attribute, children ...*html.Node) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

// A is shorthand for an attribute literal.
func A(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

// Text creates a text node.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Attr returns the value of key on n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces key on n.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes key from n if present.
func RemoveAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// HasClass reports whether the class attribute of n lists class.
func HasClass(n *html.Node, class string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	v, _ := Attr(n, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass appends class to n unless already present.
func AddClass(n *html.Node, class string) {
	if HasClass(n, class) {
		return
	}
	v, _ := Attr(n, "class")
	SetAttr(n, "class", strings.TrimSpace(v+" "+class))
}

// RemoveClass drops class from n.
func RemoveClass(n *html.Node, class string) {
	v, ok := Attr(n, "class")
	if !ok {
		return
	}
	var kept []string
	for _, c := range strings.Fields(v) {
		if c != class {
			kept = append(kept, c)
		}
	}
	SetAttr(n, "class", strings.Join(kept, " "))
}

// ToggleClass adds class when on is true and removes it otherwise.
func ToggleClass(n *html.Node, class string, on bool) {
	if on {
		AddClass(n, class)
		return
	}
	RemoveClass(n, class)
}

// Style returns one inline style property of n.
func Style(n *html.Node, prop string) string {
	v, _ := Attr(n, "style")
	for _, decl := range strings.Split(v, ";") {
		k, val, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(k) == prop {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

// SetStyle sets one inline style property of n, keeping the others in order.
func SetStyle(n *html.Node, prop, value string) {
	v, _ := Attr(n, "style")
	var decls []string
	found := false
	for _, decl := range strings.Split(v, ";") {
		k, _, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) == prop {
			decls = append(decls, prop+": "+value)
			found = true
			continue
		}
		decls = append(decls, strings.TrimSpace(decl))
	}
	if !found {
		decls = append(decls, prop+": "+value)
	}
	SetAttr(n, "style", strings.Join(decls, "; "))
}

// FindByClass returns the first element under root carrying class.
func FindByClass(root *html.Node, class string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if HasClass(n, class) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindAllByClass returns every element under root carrying class, in document order.
func FindAllByClass(root *html.Node, class string) []*html.Node {
	var found []*html.Node
	walk(root, func(n *html.Node) bool {
		if HasClass(n, class) {
			found = append(found, n)
		}
		return true
	})
	return found
}

// TextContent concatenates the text nodes under n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// RemoveChildren detaches every child of n and returns them.
func RemoveChildren(n *html.Node) []*html.Node {
	var removed []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	return removed
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Render serializes n and its subtree.
func Render(n *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		// html.Render only fails on writer errors; strings.Builder never returns one.
		panic(err)
	}
	return b.String()
}

// walk visits n and its descendants depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}
