// action.go — action-performing helpers invoked once action-readiness polling
// succeeds (spec §4.E). Each helper assumes the caller has already resolved
// the target element and waited for the relevant element states; these
// functions perform the side effect and translate Environment failures into
// the module's error/sentinel vocabulary.
package locator

import (
	"strconv"
	"strings"
)

// dateLikeInputTypes are the <input> types fill() assigns directly (after a
// round-trip verification) rather than delegating to keystroke entry.
var dateLikeInputTypes = map[string]bool{
	"date": true, "time": true, "datetime-local": true, "month": true, "week": true,
}

// textLikeInputTypes are the <input> types fill() assigns directly via
// SetValue with no further validation.
var textLikeInputTypes = map[string]bool{
	"text": true, "search": true, "tel": true, "url": true, "email": true, "password": true, "": true,
}

// focusNode focuses target, then (for text-like inputs) places the caret at
// the end of its current value. SetSelectionRange failures are ignored per
// spec §4.E, since number/email/etc. inputs reject programmatic ranges.
func focusNode(env Environment, target Node) error {
	if err := env.Focus(target); err != nil {
		return err
	}
	if v, ok := env.Value(target); ok {
		_ = env.SetSelectionRange(target, len(v), len(v))
	}
	return nil
}

// fill retargets with follow-label, then assigns target's value directly
// (bypassing keystroke synthesis) for text-like and date-like <input>s,
// verifying the round trip for the latter. <textarea> and contenteditable
// elements aren't fillable by direct assignment - fill selects their
// existing content and returns ResultNeedsInput so the caller performs
// key-by-key entry instead.
func fill(env Environment, target Node, value string) (string, error) {
	target = Retarget(target, RetargetFollowLabel)

	if target.TagName() == "TEXTAREA" || isContentEditableNode(target) {
		if err := selectText(env, target); err != nil {
			return "", err
		}
		return ResultNeedsInput, nil
	}

	if target.TagName() != "INPUT" {
		return "", typeMismatch("cannot fill %s", strings.ToLower(target.TagName()))
	}

	t, _ := target.Attr("type")
	t = strings.ToLower(t)

	switch {
	case t == "number":
		trimmed := strings.TrimSpace(value)
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			return "", typeMismatch("Cannot type text into input[type=number]")
		}
		// Native number inputs reject most non-digit keystrokes and handle
		// their own formatting/spinners, so fill only validates and focuses
		// here; the controller still enters the value key by key.
		if err := focusNode(env, target); err != nil {
			return "", err
		}
		if v, ok := env.Value(target); ok {
			_ = env.SetSelectionRange(target, 0, len(v))
		}
		return ResultNeedsInput, nil

	case dateLikeInputTypes[t]:
		trimmed := strings.TrimSpace(value)
		if err := focusNode(env, target); err != nil {
			return "", err
		}
		if err := env.SetValue(target, trimmed); err != nil {
			return "", typeMismatch("cannot fill %s: %v", strings.ToLower(target.TagName()), err)
		}
		got, _ := env.Value(target)
		if got != trimmed {
			return "", fillValueError("Malformed value")
		}
		if err := dispatchEvent(env, target, "input", nil); err != nil {
			return "", err
		}
		if err := dispatchEvent(env, target, "change", nil); err != nil {
			return "", err
		}
		return ResultDone, nil

	case textLikeInputTypes[t]:
		if err := env.SetValue(target, value); err != nil {
			return "", typeMismatch("cannot fill %s: %v", strings.ToLower(target.TagName()), err)
		}
		if err := dispatchEvent(env, target, "input", nil); err != nil {
			return "", err
		}
		if err := dispatchEvent(env, target, "change", nil); err != nil {
			return "", err
		}
		return ResultDone, nil

	default:
		return "", typeMismatch("input of type %q is not fillable", t)
	}
}

func isContentEditableNode(n Node) bool {
	v, ok := n.Attr("contenteditable")
	return ok && v != "false"
}

// selectText selects target's full value/contents (spec §4.E selectText).
func selectText(env Environment, target Node) error {
	return env.SelectText(target)
}

// OptionMatcher identifies one requested <option>, either by identity (Node
// set directly, as when the controller already resolved the option element)
// or by a {value?, label?, index?} conjunction: every non-nil field must
// match (spec §4.E selectOptions).
type OptionMatcher struct {
	Node  Node
	Value *string
	Label *string
	Index *int
}

func optionMatches(opt Node, index int, m OptionMatcher) bool {
	if !m.Node.IsZero() {
		return opt.Equal(m.Node)
	}
	if m.Value == nil && m.Label == nil && m.Index == nil {
		return false
	}
	if m.Value != nil {
		val, ok := opt.Attr("value")
		if !ok {
			val = NormalizeWhitespace(opt.TextContent())
		}
		if val != *m.Value {
			return false
		}
	}
	if m.Label != nil && NormalizeWhitespace(opt.TextContent()) != *m.Label {
		return false
	}
	if m.Index != nil && index != *m.Index {
		return false
	}
	return true
}

// selectOptions walks target's <option> descendants in DOM order, matching
// each against matchers by identity or {value, label, index} conjunction
// (spec §4.E selectOptions). A single-select stops at the first match
// overall; a multi-select (the `multiple` attribute) consumes one option per
// still-pending matcher. If any matcher remains unmatched, ok is false and
// the caller's poll should continue rather than treat this as an error -
// the controller may still be waiting on options that render asynchronously.
// On success, select.value is cleared, every matched option's selected IDL
// property is set, input/change fire on the <select>, and the matched
// values are returned in match order.
func selectOptions(env Environment, target Node, matchers []OptionMatcher) (selected []string, ok bool, err error) {
	if target.TagName() != "SELECT" {
		return nil, false, typeMismatch("selectOptions requires a <select> element, got %s", strings.ToLower(target.TagName()))
	}
	multiple := target.HasAttr("multiple")

	pending := make([]bool, len(matchers))
	for i := range pending {
		pending[i] = true
	}

	var matchedOpts []Node
	index := 0
outer:
	for _, opt := range Descendants(target, false) {
		if opt.TagName() != "OPTION" {
			continue
		}
		for i, want := range pending {
			if !want {
				continue
			}
			if optionMatches(opt, index, matchers[i]) {
				matchedOpts = append(matchedOpts, opt)
				pending[i] = false
				if !multiple {
					break outer
				}
				break
			}
		}
		index++
	}

	for _, want := range pending {
		if want {
			return nil, false, nil
		}
	}

	if err := env.SetValue(target, ""); err != nil {
		return nil, false, typeMismatch("cannot select options on %s: %v", strings.ToLower(target.TagName()), err)
	}

	values := make([]string, 0, len(matchedOpts))
	for _, opt := range matchedOpts {
		if err := env.SetOptionSelected(opt, true); err != nil {
			return nil, false, err
		}
		val, ok := opt.Attr("value")
		if !ok {
			val = NormalizeWhitespace(opt.TextContent())
		}
		values = append(values, val)
	}

	if err := dispatchEvent(env, target, "input", nil); err != nil {
		return nil, false, err
	}
	if err := dispatchEvent(env, target, "change", nil); err != nil {
		return nil, false, err
	}

	return values, true, nil
}

// setInputFiles installs files on target (spec §4.E setInputFiles).
func setInputFiles(env Environment, target Node, files []FilePayload) error {
	if target.TagName() != "INPUT" {
		return typeMismatch("setInputFiles requires an <input type=file> element, got %s", strings.ToLower(target.TagName()))
	}
	t, _ := target.Attr("type")
	if strings.ToLower(t) != "file" {
		return typeMismatch("setInputFiles requires type=file, got %q", t)
	}
	return env.InstallFiles(target, files)
}
