// parser.go — Component A: selector parsing.
// Splits a chained selector string ("div.list >> text=Hello >> nth=1") into
// an ordered sequence of Parts, honoring quoting and the single `*` capture
// mark. Grounded on the retrieved k6-browser common.Selector.parse quote-aware
// ">>"-scanner and the bare/engine=body/capture-mark grammar from spec §4.A.
package locator

import (
	"fmt"
	"regexp"
	"strings"
)

// Part is one segment of a chained selector.
type Part struct {
	Engine  string
	Body    string
	Capture bool
}

// ParsedSelector is an ordered, non-empty sequence of parts plus an optional
// capture index.
type ParsedSelector struct {
	Raw     string
	Parts   []Part
	Capture int // -1 if no part captures
}

var reEngineName = regexp.MustCompile(`^[a-zA-Z_0-9-]+(:light)?$`)

// ParseSelector parses s into a ParsedSelector. It validates engine names
// against registry so an unknown engine fails fast with a stackless error
// naming the offending selector, per spec §8 property 1.
func ParseSelector(registry *Registry, s string) (ParsedSelector, error) {
	if strings.TrimSpace(s) == "" {
		return ParsedSelector{}, newStacklessError(fmt.Sprintf("selector %q is empty", s))
	}

	rawParts, err := splitChain(s)
	if err != nil {
		return ParsedSelector{}, wrapSelectorError(s, err)
	}

	out := ParsedSelector{Raw: s, Capture: -1}
	for _, raw := range rawParts {
		part, capture, err := parsePart(raw)
		if err != nil {
			return ParsedSelector{}, wrapSelectorError(s, err)
		}
		if part == nil {
			continue
		}
		if registry != nil && !registry.Has(part.Engine) {
			return ParsedSelector{}, wrapSelectorError(s, fmt.Errorf("unknown engine %q", part.Engine))
		}
		if capture {
			if out.Capture != -1 {
				return ParsedSelector{}, wrapSelectorError(s, fmt.Errorf("only one part may use the * capture mark"))
			}
			out.Capture = len(out.Parts)
		}
		out.Parts = append(out.Parts, *part)
	}

	if len(out.Parts) == 0 {
		return ParsedSelector{}, wrapSelectorError(s, fmt.Errorf("selector has no parts"))
	}

	// Capture preceding an nth part is illegal (spec §3 invariants).
	if out.Capture >= 0 {
		for i := out.Capture + 1; i < len(out.Parts); i++ {
			if out.Parts[i].Engine == "nth" {
				return ParsedSelector{}, wrapSelectorError(s, fmt.Errorf("* capture mark cannot precede an nth= part"))
			}
		}
	}

	return out, nil
}

func wrapSelectorError(s string, err error) error {
	return newStacklessError(fmt.Sprintf("%s: %q", err.Error(), s))
}

// splitChain splits on top-level ">>" separators, respecting quotes
// ('...'/"..."/`...`) and backslash escapes within them.
func splitChain(s string) ([]string, error) {
	var parts []string
	var quote rune
	start := 0
	i := 0
	for i < len(s) {
		c := rune(s[i])
		switch {
		case c == '\\' && i+1 < len(s):
			i += 2
		case quote != 0 && c == quote:
			quote = 0
			i++
		case quote == 0 && (c == '\'' || c == '"' || c == '`'):
			quote = c
			i++
		case quote == 0 && c == '>' && i+1 < len(s) && s[i+1] == '>':
			parts = append(parts, s[start:i])
			i += 2
			start = i
		default:
			i++
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in selector")
	}
	parts = append(parts, s[start:])
	return parts, nil
}

// parsePart parses a single chain segment into a Part. Returns (nil, false, nil)
// for an empty segment (tolerating leading/trailing/consecutive ">>").
func parsePart(raw string) (*Part, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false, nil
	}

	capture := false
	if strings.HasPrefix(trimmed, "*") {
		capture = true
		trimmed = trimmed[1:]
	}

	engine, body := splitEngine(trimmed)
	if engine == "" {
		engine = "css"
		body = trimmed
	} else if !reEngineName.MatchString(engine) {
		return nil, false, fmt.Errorf("malformed engine name %q", engine)
	}

	body, err := unquoteBody(body)
	if err != nil {
		return nil, false, err
	}

	return &Part{Engine: engine, Body: body}, capture, nil
}

// SplitEnginePrefix exposes splitEngine for callers outside this package
// that only need the engine=body prefix split (e.g. the interact tool's
// reproduction-selector classifier), without pulling in full parsing.
func SplitEnginePrefix(s string) (engine, body string) {
	return splitEngine(s)
}

// splitEngine splits "engine=body" at the first top-level "=", leaving
// quoted bodies untouched. Returns ("", raw) when there is no engine prefix.
func splitEngine(raw string) (engine, body string) {
	inQuote := rune(0)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '\\' && i+1 < len(raw):
			i++
		case inQuote != 0 && rune(c) == inQuote:
			inQuote = 0
		case inQuote == 0 && (c == '\'' || c == '"' || c == '`'):
			inQuote = rune(c)
		case inQuote == 0 && c == '=':
			candidate := strings.TrimSpace(raw[:i])
			if candidate != "" && reEngineName.MatchString(candidate) {
				return candidate, raw[i+1:]
			}
			return "", raw
		}
	}
	return "", raw
}

// unquoteBody strips a single layer of matching '...'/"..." quoting and
// resolves backslash escapes. Unquoted bodies pass through unchanged.
func unquoteBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) < 2 {
		return body, nil
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
		inner := trimmed[1 : len(trimmed)-1]
		var b strings.Builder
		for i := 0; i < len(inner); i++ {
			if inner[i] == '\\' && i+1 < len(inner) {
				i++
				b.WriteByte(inner[i])
				continue
			}
			b.WriteByte(inner[i])
		}
		return b.String(), nil
	}
	return body, nil
}
