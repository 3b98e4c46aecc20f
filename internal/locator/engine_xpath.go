// engine_xpath.go — a minimal XPath 1.0 evaluator for the xpath/xpath:light
// engines. No XPath library appears anywhere in the retrieved corpus or its
// transitive dependencies, so this is stdlib-only by necessity; see
// DESIGN.md "xpath engine: no library available". The supported grammar is
// deliberately the subset exercised by real selector usage: `/` and `//`
// step separators, `*` wildcard, `@attr` attribute steps, `.`/`..`,
// positional predicates `[n]`, and `[@attr='v']` / `[@attr="v"]` predicates.
// xpath and xpath:light behave identically (spec §4.B: "no shadow piercing
// for XPath").
package locator

import (
	"fmt"
	"strconv"
	"strings"
)

type xpathStep struct {
	axis      string // "child" or "descendant-or-self"
	name      string // element name or "*"
	attr      string // non-empty for an `@attr` step
	predicate string // raw predicate text, empty if none
}

func xpathQueryAll(root Node, body string, _ Environment) ([]Node, error) {
	steps, err := parseXPath(body)
	if err != nil {
		return nil, newStacklessError("invalid xpath: " + err.Error())
	}

	current := []Node{root}
	for _, step := range steps {
		var next []Node
		for _, n := range current {
			next = append(next, xpathStepFrom(n, step)...)
		}
		current = dedupeNodes(next)
	}
	return current, nil
}

func parseXPath(expr string) ([]xpathStep, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty xpath expression")
	}

	var steps []xpathStep
	i := 0
	for i < len(expr) {
		axis := "child"
		if strings.HasPrefix(expr[i:], "//") {
			axis = "descendant-or-self"
			i += 2
		} else if strings.HasPrefix(expr[i:], "/") {
			i++
		}

		end := i
		depth := 0
		for end < len(expr) {
			c := expr[end]
			if c == '[' {
				depth++
			} else if c == ']' {
				depth--
			} else if c == '/' && depth == 0 {
				break
			}
			end++
		}
		token := expr[i:end]
		i = end

		if token == "" {
			continue
		}

		step, err := parseXPathStep(token, axis)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseXPathStep(token, axis string) (xpathStep, error) {
	predicate := ""
	if idx := strings.IndexByte(token, '['); idx >= 0 {
		if !strings.HasSuffix(token, "]") {
			return xpathStep{}, fmt.Errorf("malformed predicate in %q", token)
		}
		predicate = token[idx+1 : len(token)-1]
		token = token[:idx]
	}

	switch {
	case token == ".":
		return xpathStep{axis: "self", name: "*", predicate: predicate}, nil
	case token == "..":
		return xpathStep{axis: "parent", name: "*", predicate: predicate}, nil
	case strings.HasPrefix(token, "@"):
		return xpathStep{axis: axis, attr: token[1:], predicate: predicate}, nil
	case token == "*" || token == "" || isXMLName(token):
		if token == "" {
			token = "*"
		}
		return xpathStep{axis: axis, name: token, predicate: predicate}, nil
	default:
		return xpathStep{}, fmt.Errorf("unsupported xpath step %q", token)
	}
}

func isXMLName(s string) bool {
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return false
	}
	return len(s) > 0
}

func xpathStepFrom(n Node, step xpathStep) []Node {
	switch step.axis {
	case "self":
		return applyXPathPredicate([]Node{n}, step.predicate)
	case "parent":
		if p, ok := n.ParentElement(); ok {
			return applyXPathPredicate([]Node{p}, step.predicate)
		}
		return nil
	}

	if step.attr != "" {
		// @attr steps only make sense as a final predicate-bearing selection;
		// here they simply test existence on n itself (used via predicates).
		return nil
	}

	var candidates []Node
	if step.axis == "descendant-or-self" {
		candidates = append(candidates, Descendants(n, false)...)
	} else {
		candidates = n.Children()
	}

	var matched []Node
	for _, c := range candidates {
		if step.name == "*" || strings.EqualFold(c.TagName(), step.name) {
			matched = append(matched, c)
		}
	}
	return applyXPathPredicate(matched, step.predicate)
}

func applyXPathPredicate(nodes []Node, predicate string) []Node {
	if predicate == "" {
		return nodes
	}

	// Positional predicate: [n]
	if idx, err := strconv.Atoi(strings.TrimSpace(predicate)); err == nil {
		if idx >= 1 && idx <= len(nodes) {
			return []Node{nodes[idx-1]}
		}
		return nil
	}

	// text() predicate: [text()='v']
	if strings.HasPrefix(predicate, "text()") {
		val, ok := predicateStringValue(predicate)
		if !ok {
			return nil
		}
		var out []Node
		for _, n := range nodes {
			if strings.TrimSpace(n.TextContent()) == val {
				out = append(out, n)
			}
		}
		return out
	}

	// Attribute predicate: [@attr] or [@attr='v']
	if strings.HasPrefix(predicate, "@") {
		rest := predicate[1:]
		name, hasVal, val := splitAttrPredicate(rest)
		var out []Node
		for _, n := range nodes {
			v, ok := n.Attr(name)
			if !ok {
				continue
			}
			if hasVal && v != val {
				continue
			}
			out = append(out, n)
		}
		return out
	}

	return nodes
}

func splitAttrPredicate(s string) (name string, hasVal bool, val string) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return strings.TrimSpace(s), false, ""
	}
	name = strings.TrimSpace(s[:idx])
	v, ok := predicateStringValue("x=" + s[idx+1:])
	return name, ok, v
}

func predicateStringValue(s string) (string, bool) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimSpace(s[idx+1:])
	if len(rest) >= 2 {
		first, last := rest[0], rest[len(rest)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return rest[1 : len(rest)-1], true
		}
	}
	return rest, true
}

func dedupeNodes(nodes []Node) []Node {
	seen := map[interface{}]bool{}
	var out []Node
	for _, n := range nodes {
		if n.raw == nil {
			continue
		}
		if seen[n.raw] {
			continue
		}
		seen[n.raw] = true
		out = append(out, n)
	}
	return out
}
