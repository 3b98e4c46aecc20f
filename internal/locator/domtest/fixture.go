package domtest

import (
	"strings"

	"github.com/dev-console/dev-console/internal/locator"
	"golang.org/x/net/html"
)

// Parse builds a locator.Node tree from an HTML fragment, for use as a test
// fixture's root. Panics on malformed input since fixtures are test-authored
// literals, not untrusted data.
func Parse(fragment string) locator.Node {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		panic("domtest.Parse: " + err.Error())
	}
	return locator.NewNode(doc)
}

// ParseFragment parses fragment and returns its first top-level element
// (the first child of the synthesized <body>), for building a standalone
// subtree (e.g. a shadow root's content) rather than a whole document.
func ParseFragment(fragment string) locator.Node {
	doc := Parse(fragment)
	for _, n := range locator.Descendants(doc, false) {
		if n.TagName() == "BODY" {
			children := n.Children()
			if len(children) > 0 {
				return children[0]
			}
		}
	}
	panic("domtest.ParseFragment: no body content in fragment")
}

// Find returns the first descendant element with the given tag and id,
// a convenience for wiring fixtures to fake Environment state.
func Find(root locator.Node, tag, id string) (locator.Node, bool) {
	tag = strings.ToUpper(tag)
	for _, n := range locator.Descendants(root, false) {
		if tag != "" && n.TagName() != tag {
			continue
		}
		if v, ok := n.Attr("id"); ok && v == id {
			return n, true
		}
	}
	return locator.Node{}, false
}
