// engine_framework.go — the _react/_vue framework engines.
// A faithful Playwright component-tree walk requires introspecting live
// fiber/VNode graphs; no framework-introspection library exists anywhere in
// the retrieved corpus (dev-console's own internal/capture package only
// scrapes static markers off DOM attributes, never a component tree), so
// these are reduced to the same attribute-marker heuristics dev-console's
// capture code already uses. Documented as a deliberate approximation in
// DESIGN.md, not a full port of the TS component-tree engines.
package locator

import "strings"

func frameworkQueryAll(framework string, pierce bool) func(Node, string, Environment) ([]Node, error) {
	return func(root Node, body string, _ Environment) ([]Node, error) {
		name := strings.TrimSpace(body)
		var out []Node
		for _, n := range Descendants(root, pierce) {
			if !isFrameworkMarked(n, framework) {
				continue
			}
			if name == "" {
				out = append(out, n)
				continue
			}
			if frameworkComponentName(n, framework) == name {
				out = append(out, n)
			}
		}
		return out, nil
	}
}

// isFrameworkMarked reports whether n carries a marker attribute the given
// framework's runtime (or dev-console's own capture instrumentation) attaches
// to component root elements.
func isFrameworkMarked(n Node, framework string) bool {
	switch framework {
	case "react":
		if n.HasAttr("data-reactroot") || n.HasAttr("data-reactid") {
			return true
		}
		for _, a := range n.Attrs() {
			if strings.HasPrefix(a.Key, "data-react") {
				return true
			}
		}
		return false
	case "vue":
		for _, a := range n.Attrs() {
			if strings.HasPrefix(a.Key, "data-v-") {
				return true
			}
		}
		return n.HasAttr("data-vue-component")
	default:
		return false
	}
}

// frameworkComponentName extracts a component-name hint from whichever
// marker attribute the framework uses to carry one, falling back to the
// element's own tag name (custom-element-style components commonly use the
// component name as the tag).
func frameworkComponentName(n Node, framework string) string {
	if v, ok := n.Attr("data-component"); ok {
		return v
	}
	if framework == "vue" {
		if v, ok := n.Attr("data-vue-component"); ok {
			return v
		}
	}
	return strings.ToLower(n.TagName())
}
