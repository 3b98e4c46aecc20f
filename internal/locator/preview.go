// preview.go — element preview rendering for diagnostics (strict-mode
// violations, hit-target mismatches). Grounded on the teacher's own
// audit-trail summarizer style (truncate long values, prefer the most
// identifying attributes first) generalized to arbitrary elements.
package locator

import (
	"fmt"
	"sort"
	"strings"
)

// voidTags never get a rendered closing form.
var voidTags = map[string]bool{
	"AREA": true, "BASE": true, "BR": true, "COL": true, "EMBED": true,
	"HR": true, "IMG": true, "INPUT": true, "LINK": true, "META": true,
	"PARAM": true, "SOURCE": true, "TRACK": true,
}

// booleanAttrs render without a ="value" suffix when present.
var booleanAttrs = map[string]bool{
	"disabled": true, "checked": true, "readonly": true, "required": true,
	"selected": true, "multiple": true, "autofocus": true, "hidden": true,
}

const previewMaxAttrLen = 50
const previewMaxTextLen = 50

// previewNode renders a short "<tag attr=\"...\">text</tag>"-shaped preview
// for diagnostics, omitting style attributes and truncating long values.
func previewNode(n Node) string {
	if !n.IsElement() {
		return "<node>"
	}
	tag := strings.ToLower(n.TagName())

	var b strings.Builder
	b.WriteString("<")
	b.WriteString(tag)

	attrs := n.Attrs()
	sort.SliceStable(attrs, func(i, j int) bool {
		return len(attrs[i].Val) < len(attrs[j].Val)
	})
	for _, a := range attrs {
		if strings.EqualFold(a.Key, "style") {
			continue
		}
		if booleanAttrs[strings.ToLower(a.Key)] {
			b.WriteString(" ")
			b.WriteString(a.Key)
			continue
		}
		v := truncate(a.Val, previewMaxAttrLen)
		fmt.Fprintf(&b, " %s=%q", a.Key, v)
	}

	if voidTags[strings.ToUpper(tag)] {
		b.WriteString("/>")
		return b.String()
	}
	b.WriteString(">")

	text := truncate(NormalizeWhitespace(n.TextContent()), previewMaxTextLen)
	b.WriteString(text)
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteString(">")
	return b.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
