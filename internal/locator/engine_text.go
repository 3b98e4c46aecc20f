// engine_text.go — the text/text:light engines (spec §4.A text-matching).
// Body forms: /pattern/flags -> regex, 'literal'/"literal" -> strict
// equality, otherwise -> lax (case-insensitive, whitespace-normalized
// substring). Grounded on the retrieved k6-browser text-selector regex and
// tmc-misc/chrome-to-har's Text/TextPartial/TextRegex selector family.
package locator

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

type textMatchKind int

const (
	textKindRegex textMatchKind = iota
	textKindStrict
	textKindLax
)

type textMatcher struct {
	kind textMatchKind
	re   *regexp.Regexp
	lit  string // unescaped literal (strict) or raw needle (lax)
}

var reTextPattern = regexp.MustCompile(`^/(.*)/([a-z]*)$`)

func parseTextBody(body string) (textMatcher, error) {
	if m := reTextPattern.FindStringSubmatch(body); m != nil {
		flags := ""
		for _, f := range m[2] {
			switch f {
			case 'i':
				flags += "i"
			case 's':
				flags += "s"
			case 'm':
				flags += "m"
			}
		}
		pattern := m[1]
		if flags != "" {
			pattern = "(?" + flags + ")" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return textMatcher{}, newStacklessError("invalid text regex: " + err.Error())
		}
		return textMatcher{kind: textKindRegex, re: re}, nil
	}

	trimmed := strings.TrimSpace(body)
	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			lit, err := unquoteBody(trimmed)
			if err != nil {
				return textMatcher{}, err
			}
			return textMatcher{kind: textKindStrict, lit: lit}, nil
		}
	}

	return textMatcher{kind: textKindLax, lit: body}, nil
}

// textSelfOrChildren mirrors the external elementMatchesText contract: none,
// self, or selfAndChildren.
type textMatchResult int

const (
	textMatchNone textMatchResult = iota
	textMatchSelf
	textMatchSelfAndChildren
)

func (m textMatcher) matches(s string) bool {
	switch m.kind {
	case textKindRegex:
		return m.re.MatchString(s)
	case textKindStrict:
		return s == m.lit
	default:
		return strings.Contains(strings.ToLower(NormalizeWhitespace(s)), strings.ToLower(NormalizeWhitespace(m.lit)))
	}
}

// elementMatchesText classifies how n's own text vs its full text (self+children)
// matches m, following Playwright's own-text vs subtree-text distinction: an
// element whose *own* immediate text already satisfies the matcher is "self";
// one whose combined subtree text satisfies it only via descendants is
// "selfAndChildren".
func elementMatchesText(n Node, m textMatcher) textMatchResult {
	own := ownText(n)
	if m.matches(own) {
		return textMatchSelf
	}
	full := n.TextContent()
	if m.matches(full) {
		return textMatchSelfAndChildren
	}
	return textMatchNone
}

// ownText concatenates only n's direct text-node children (not descendants'),
// approximating an element's "own text" the way Playwright's text engine does.
func ownText(n Node) string {
	if n.raw == nil {
		return ""
	}
	var b strings.Builder
	for c := n.raw.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func textQueryAll(pierce bool) func(Node, string, Environment) ([]Node, error) {
	return func(root Node, body string, _ Environment) ([]Node, error) {
		m, err := parseTextBody(body)
		if err != nil {
			return nil, err
		}

		var out []Node
		var pruned []Node
		isPrunedDescendant := func(n Node) bool {
			for _, p := range pruned {
				if isDescendantOf(n, p) {
					return true
				}
			}
			return false
		}

		for _, n := range Descendants(root, pierce) {
			if m.kind != textKindStrict && isPrunedDescendant(n) {
				continue
			}
			res := elementMatchesText(n, m)
			switch {
			case res == textMatchSelf:
				out = append(out, n)
			case res == textMatchSelfAndChildren && m.kind == textKindStrict:
				out = append(out, n)
			case res == textMatchNone && m.kind != textKindStrict:
				pruned = append(pruned, n)
			}
		}
		return out, nil
	}
}

func isDescendantOf(n, ancestor Node) bool {
	if n.raw == nil || ancestor.raw == nil {
		return false
	}
	for p := n.raw.Parent; p != nil; p = p.Parent {
		if p == ancestor.raw {
			return true
		}
	}
	return false
}
