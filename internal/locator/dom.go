// dom.go — DOM node abstraction for the locator engine.
// The engine never touches a real browser; it operates on Node values that
// wrap golang.org/x/net/html nodes plus a synthetic shadow-root pointer so
// shadow-piercing semantics can be exercised deterministically in tests.
package locator

import (
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// Node wraps a parsed HTML element (or the document root). Node is a thin,
// copyable reference to an underlying *html.Node; identity is the pointer,
// not the Go value, so any two Nodes wrapping the same *html.Node are
// interchangeable.
type Node struct {
	raw *html.Node
}

// shadowRoots attaches synthetic shadow roots to raw nodes out-of-band,
// keyed by node identity rather than carried on the Node value itself.
// Real shadow DOM has no equivalent in golang.org/x/net/html; this registry
// is what lets AttachShadowRoot survive re-wrapping the same *html.Node
// during a tree walk (Descendants always constructs fresh Node values).
var (
	shadowRootsMu sync.RWMutex
	shadowRoots   = map[*html.Node]*html.Node{}
)

// NewNode wraps a raw *html.Node.
func NewNode(n *html.Node) Node {
	return Node{raw: n}
}

// Raw returns the underlying *html.Node.
func (n Node) Raw() *html.Node { return n.raw }

// IsZero reports whether n wraps no node.
func (n Node) IsZero() bool { return n.raw == nil }

// Equal compares identity, not content.
func (n Node) Equal(other Node) bool { return n.raw == other.raw }

// ShadowRoot returns the shadow root attached to n, if any.
func (n Node) ShadowRoot() (Node, bool) {
	if n.raw == nil {
		return Node{}, false
	}
	shadowRootsMu.RLock()
	defer shadowRootsMu.RUnlock()
	r, ok := shadowRoots[n.raw]
	if !ok {
		return Node{}, false
	}
	return Node{raw: r}, true
}

// AttachShadowRoot synthetically attaches root as n's shadow root, keyed by
// n's underlying *html.Node so any Node re-wrapping the same element (as
// every tree walk does) observes the attachment. Used by fixtures to model
// shadow-piercing scenarios.
func AttachShadowRoot(n Node, root Node) Node {
	if n.raw == nil {
		return n
	}
	shadowRootsMu.Lock()
	shadowRoots[n.raw] = root.raw
	shadowRootsMu.Unlock()
	return n
}

// TagName returns the element's upper-cased tag name, or "" for non-elements.
func (n Node) TagName() string {
	if n.raw == nil || n.raw.Type != html.ElementNode {
		return ""
	}
	return strings.ToUpper(n.raw.Data)
}

// IsElement reports whether n wraps an element node.
func (n Node) IsElement() bool { return n.raw != nil && n.raw.Type == html.ElementNode }

// Attr returns the named attribute's value and whether it is present.
// Lookup is case-insensitive, matching HTML attribute semantics.
func (n Node) Attr(name string) (string, bool) {
	if n.raw == nil {
		return "", false
	}
	for _, a := range n.raw.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the named attribute is present.
func (n Node) HasAttr(name string) bool {
	_, ok := n.Attr(name)
	return ok
}

// Attrs returns all attributes sorted by key length (used by previewNode).
func (n Node) Attrs() []html.Attribute {
	if n.raw == nil {
		return nil
	}
	return n.raw.Attr
}

// ParentElement returns the nearest ancestor element, skipping non-element
// parents (e.g. the document node).
func (n Node) ParentElement() (Node, bool) {
	if n.raw == nil {
		return Node{}, false
	}
	for p := n.raw.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return Node{raw: p}, true
		}
	}
	return Node{}, false
}

// Closest walks n and its ancestors (not crossing shadow boundaries upward,
// since shadow hosts are not modeled as child-of-host in the html.Node tree)
// looking for the first element matching match.
func (n Node) Closest(match func(Node) bool) (Node, bool) {
	cur := n
	for cur.raw != nil {
		if cur.IsElement() && match(cur) {
			return cur, true
		}
		p, ok := cur.ParentElement()
		if !ok {
			break
		}
		cur = p
	}
	return Node{}, false
}

// Children returns the element children of n, in document order.
func (n Node) Children() []Node {
	if n.raw == nil {
		return nil
	}
	var out []Node
	for c := n.raw.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, Node{raw: c})
		}
	}
	return out
}

// TextContent concatenates all descendant text nodes, matching DOM textContent.
func (n Node) TextContent() string {
	if n.raw == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		if x.Type == html.TextNode {
			b.WriteString(x.Data)
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n.raw)
	return b.String()
}

// InnerText is an approximation of the browser's innerText: TextContent with
// runs of whitespace collapsed. The real algorithm also respects layout
// (hidden elements, <br> as newline); this module has no layout engine, so
// InnerText only normalizes whitespace. See DESIGN.md.
func (n Node) InnerText() string {
	return NormalizeWhitespace(n.TextContent())
}

// NormalizeWhitespace trims and collapses runs of whitespace to a single space.
func NormalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// OwnerDocument walks up to the root html.Node (the DocumentNode).
func (n Node) OwnerDocument() Node {
	if n.raw == nil {
		return n
	}
	r := n.raw
	for r.Parent != nil {
		r = r.Parent
	}
	return Node{raw: r}
}

// Descendants returns every descendant element of n in document order,
// optionally descending into attached shadow roots when pierce is true.
func Descendants(n Node, pierce bool) []Node {
	var out []Node
	var walk func(Node)
	walk = func(cur Node) {
		if cur.raw == nil {
			return
		}
		if pierce {
			if sr, ok := cur.ShadowRoot(); ok {
				out = append(out, sr)
				walk(sr)
			}
		}
		for c := cur.raw.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			child := Node{raw: c}
			out = append(out, child)
			walk(child)
		}
	}
	walk(n)
	return out
}
