// expect.go — the expect() assertion table (spec §4.E "Assertions").
// Each expression computes a value against the resolved element and compares
// it to the expected input; callers drive this from a Poll so transient
// mismatches retry until timeout, publishing the last-seen value via
// Progress.SetIntermediateResult for diagnostics.
package locator

import (
	"strconv"
	"strings"
)

// TextMatchMode selects how ExpectedTextMatcher compares text.
type TextMatchMode int

const (
	TextMatchSubstring TextMatchMode = iota
	TextMatchExact
	TextMatchRegex
)

// ExpectedTextMatcher mirrors the to.have.text family's matcher shape.
type ExpectedTextMatcher struct {
	Mode          TextMatchMode
	Expected      string
	NormalizeWS   bool
	CaseSensitive bool
	Pattern       textMatcher // used when Mode == TextMatchRegex
}

// Matches compares actual against the matcher's expectation.
func (m ExpectedTextMatcher) Matches(actual string) bool {
	a, e := actual, m.Expected
	if m.Mode == TextMatchRegex {
		return m.Pattern.matches(actual)
	}
	if m.NormalizeWS {
		a, e = NormalizeWhitespace(a), NormalizeWhitespace(e)
	}
	if !m.CaseSensitive {
		a, e = strings.ToLower(a), strings.ToLower(e)
	}
	if m.Mode == TextMatchExact {
		return a == e
	}
	return strings.Contains(a, e)
}

// Expectation is one evaluated expect() expression (spec §3 "Assertion
// expressions"): its Expression name selects the computation below.
type Expectation struct {
	Expression string // e.g. "to.be.visible", "to.have.text"
	Negated    bool
	Text       []ExpectedTextMatcher
	Count      int
	Property   string
	Value      any
}

// EvaluateExpectation runs one tick of expression against target, returning
// (satisfied, receivedValue, error). A poll predicate compares satisfied
// against Negated and republishes receivedValue to Progress.
func EvaluateExpectation(target Node, all []Node, exp Expectation, env Environment) (bool, any, error) {
	switch exp.Expression {
	case "to.be.checked":
		v, sentinel := ElementStateResult(target, StateChecked, env)
		if sentinel != "" {
			return false, sentinel, nil
		}
		return v, v, nil
	case "to.be.disabled":
		v, sentinel := ElementStateResult(target, StateDisabled, env)
		return withSentinel(v, sentinel)
	case "to.be.enabled":
		v, sentinel := ElementStateResult(target, StateEnabled, env)
		return withSentinel(v, sentinel)
	case "to.be.editable":
		v, sentinel := ElementStateResult(target, StateEditable, env)
		return withSentinel(v, sentinel)
	case "to.be.visible":
		v, sentinel := ElementStateResult(target, StateVisible, env)
		return withSentinel(v, sentinel)
	case "to.be.hidden":
		v, sentinel := ElementStateResult(target, StateHidden, env)
		return withSentinel(v, sentinel)
	case "to.be.focused":
		active, ok := env.ActiveElement(target)
		v := ok && active.Equal(target)
		return v, v, nil
	case "to.be.empty":
		text := NormalizeWhitespace(target.TextContent())
		if val, ok := env.Value(target); ok {
			return val == "", val, nil
		}
		return text == "", text, nil

	case "to.have.count":
		n := len(all)
		return n == exp.Count, n, nil

	case "to.have.value":
		val, ok := env.Value(target)
		if !ok {
			return false, nil, typeMismatch("to.have.value requires a value-bearing element")
		}
		return matchAnyText(val, exp.Text), val, nil

	case "to.have.text":
		// Raw text is passed through; whether it gets whitespace-normalized
		// before comparison is the matcher's own NormalizeWS flag to decide
		// (spec §8 S6 — the same raw text must be able to both pass and fail
		// depending on that flag).
		text := target.TextContent()
		return matchAnyText(text, exp.Text), text, nil

	case "to.have.text.array":
		texts := make([]string, len(all))
		for i, n := range all {
			texts[i] = n.TextContent()
		}
		return matchTextArray(texts, exp.Text), texts, nil

	case "to.have.class":
		classes, _ := target.Attr("class")
		return matchAnyText(classes, exp.Text), classes, nil

	case "to.have.class.array":
		out := make([]string, len(all))
		for i, n := range all {
			c, _ := n.Attr("class")
			out[i] = c
		}
		return matchTextArray(out, exp.Text), out, nil

	case "to.have.id":
		id, _ := target.Attr("id")
		return matchAnyText(id, exp.Text), id, nil

	case "to.have.title":
		title, _ := target.Attr("title")
		return matchAnyText(title, exp.Text), title, nil

	case "to.have.url":
		href, _ := target.Attr("href")
		return matchAnyText(href, exp.Text), href, nil

	case "to.have.attribute":
		v, ok := target.Attr(exp.Property)
		if !ok {
			return false, nil, nil
		}
		return matchAnyText(v, exp.Text), v, nil

	case "to.have.css":
		style := env.Style(target)
		v := styleProperty(style, exp.Property)
		return matchAnyText(v, exp.Text), v, nil

	case "to.have.property":
		v, ok := elementProperty(target, exp.Property, env)
		if !ok {
			return false, nil, nil
		}
		return deepEquals(v, exp.Value), v, nil

	default:
		return false, nil, unknownAssertion(exp.Expression)
	}
}

func withSentinel(v bool, sentinel string) (bool, any, error) {
	if sentinel != "" {
		return false, sentinel, nil
	}
	return v, v, nil
}

func matchAnyText(actual string, matchers []ExpectedTextMatcher) bool {
	if len(matchers) == 0 {
		return false
	}
	for _, m := range matchers {
		if m.Matches(actual) {
			return true
		}
	}
	return false
}

func matchTextArray(actual []string, matchers []ExpectedTextMatcher) bool {
	if len(actual) != len(matchers) {
		return false
	}
	for i, m := range matchers {
		if !m.Matches(actual[i]) {
			return false
		}
	}
	return true
}

func styleProperty(style ComputedStyle, name string) string {
	switch strings.ToLower(name) {
	case "display":
		return style.Display
	case "visibility":
		return style.Visibility
	default:
		return ""
	}
}

// elementProperty reads a handful of DOM-ish "properties" expect() can assert
// on beyond plain attributes (spec §3 to.have.property): value, checked, and
// numeric attribute coercions (e.g. tabIndex).
func elementProperty(n Node, name string, env Environment) (any, bool) {
	switch name {
	case "value":
		return env.Value(n)
	case "checked":
		v, sentinel := isChecked(n)
		if sentinel != "" {
			return nil, false
		}
		return v, true
	case "tagName":
		return n.TagName(), true
	default:
		if v, ok := n.Attr(name); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
			return v, true
		}
		return nil, false
	}
}
