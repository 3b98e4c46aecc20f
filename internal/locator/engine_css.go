// engine_css.go — the css/css:light engines, backed by andybalholm/cascadia
// compiled selectors. cascadia is walked by hand (rather than handing the
// whole subtree to goquery.Find) so the walk can choose whether to cross
// ShadowRoot boundaries — see DESIGN.md "css engine: cascadia vs goquery".
package locator

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

func cssQueryAll(pierce bool) func(Node, string, Environment) ([]Node, error) {
	return func(root Node, body string, _ Environment) ([]Node, error) {
		sel, err := cascadia.Compile(body)
		if err != nil {
			return nil, newStacklessError("invalid css selector: " + err.Error())
		}

		if !pierce {
			// Light path: goquery.Find walks exactly the light-DOM subtree,
			// which is what a non-piercing engine must limit itself to.
			if root.raw == nil {
				return nil, nil
			}
			doc := goquery.NewDocumentFromNode(root.raw)
			var out []Node
			doc.Find(body).Each(func(_ int, s *goquery.Selection) {
				if len(s.Nodes) > 0 {
					out = append(out, Node{raw: s.Nodes[0]})
				}
			})
			return out, nil
		}

		var out []Node
		for _, n := range Descendants(root, true) {
			if sel.Match(n.raw) {
				out = append(out, n)
			}
		}
		return out, nil
	}
}

func attrQueryAll(attr string, pierce bool) func(Node, string, Environment) ([]Node, error) {
	cssQ := cssQueryAll(pierce)
	return func(root Node, body string, env Environment) ([]Node, error) {
		// Attribute engines synthesize `[attr="body"]` and delegate to css,
		// per spec §4.B ("synthesized as CSS [attr=JSON.stringify(body)]").
		quoted := cssAttrQuote(body)
		return cssQ(root, "["+attr+"="+quoted+"]", env)
	}
}

// cssAttrQuote mirrors JSON.stringify for a plain string value: wraps in
// double quotes and escapes backslashes/quotes, good enough for the
// attribute values this engine family is used for.
func cssAttrQuote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	out = append(out, '"')
	return string(out)
}
