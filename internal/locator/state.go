// state.go — Component E building blocks: retargeting, element-state
// predicates, and the stability wait. Grounded on the teacher's state.go
// defensive-parsing idiom (explicit named fields, no reflection) generalized
// from "capture a form snapshot" to "answer one state predicate".
package locator

import (
	"strings"
	"time"
)

// RetargetBehavior selects how aggressively retarget walks toward a
// user-actionable control (spec §4.E).
type RetargetBehavior int

const (
	RetargetNoFollowLabel RetargetBehavior = iota
	RetargetFollowLabel
)

var roleButtonLike = []string{"button", "checkbox", "radio"}

func isRoleButtonLike(n Node) bool {
	role, ok := n.Attr("role")
	if !ok {
		return false
	}
	role = strings.ToLower(role)
	for _, r := range roleButtonLike {
		if role == r {
			return true
		}
	}
	return false
}

func isFormControl(n Node) bool {
	switch n.TagName() {
	case "INPUT", "TEXTAREA", "SELECT":
		return true
	}
	return false
}

func isButtonLike(n Node) bool {
	if n.TagName() == "BUTTON" {
		return true
	}
	if _, ok := n.Attr("role"); ok {
		return isRoleButtonLike(n)
	}
	return false
}

func isContentEditable(n Node) bool {
	v, ok := n.Attr("contenteditable")
	return ok && v != "false"
}

// Retarget normalizes node to the element an action should actually affect
// (spec §4.E Retargeting).
func Retarget(node Node, behavior RetargetBehavior) Node {
	cur := node
	if !cur.IsElement() {
		if p, ok := cur.ParentElement(); ok {
			cur = p
		}
	}

	if !isFormControl(cur) {
		if ancestor, ok := cur.Closest(func(n Node) bool {
			return n.TagName() == "BUTTON" || isRoleButtonLike(n)
		}); ok {
			cur = ancestor
		}
	}

	if behavior == RetargetFollowLabel {
		if !isFormControl(cur) && !isButtonLike(cur) && !isContentEditable(cur) {
			if label, ok := cur.Closest(func(n Node) bool { return n.TagName() == "LABEL" }); ok {
				cur = label
			}
		}
		if cur.TagName() == "LABEL" {
			if ctrl, ok := labelControl(cur); ok {
				cur = ctrl
			}
		}
	}

	return cur
}

// labelControl resolves a <label>'s associated control: `for` attribute
// lookup within the owner document, or the first descendant form control.
func labelControl(label Node) (Node, bool) {
	if forID, ok := label.Attr("for"); ok {
		doc := label.OwnerDocument()
		for _, n := range Descendants(doc, false) {
			if id, ok := n.Attr("id"); ok && id == forID {
				return n, true
			}
		}
	}
	for _, c := range Descendants(label, false) {
		if isFormControl(c) {
			return c, true
		}
	}
	return Node{}, false
}

// ElementState enumerates the predicates spec §3 names.
type ElementState string

const (
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
	StateEnabled  ElementState = "enabled"
	StateDisabled ElementState = "disabled"
	StateEditable ElementState = "editable"
	StateChecked  ElementState = "checked"
	StateStable   ElementState = "stable"
)

// ElementStateResult evaluates state on node. Per spec §4.E: a disconnected
// element reports hidden=true but any other query returns the
// ResultNotConnected sentinel (not an error) — callers must check this
// before treating the bool result as meaningful.
func ElementStateResult(node Node, state ElementState, env Environment) (value bool, sentinel string) {
	behavior := RetargetFollowLabel
	switch state {
	case StateStable, StateVisible, StateHidden:
		behavior = RetargetNoFollowLabel
	}
	target := Retarget(node, behavior)

	if !env.IsConnected(target) {
		if state == StateHidden {
			return true, ""
		}
		return false, ResultNotConnected
	}

	switch state {
	case StateVisible:
		return isVisible(target, env), ""
	case StateHidden:
		return !isVisible(target, env), ""
	case StateDisabled:
		return isDisabled(target), ""
	case StateEnabled:
		return !isDisabled(target), ""
	case StateEditable:
		return !isDisabled(target) && !isReadOnlyFormControl(target), ""
	case StateChecked:
		return isChecked(target)
	default:
		return false, ""
	}
}

func isDisabled(n Node) bool {
	switch n.TagName() {
	case "BUTTON", "INPUT", "SELECT", "TEXTAREA":
		return n.HasAttr("disabled")
	}
	return false
}

func isReadOnlyFormControl(n Node) bool {
	switch n.TagName() {
	case "INPUT", "TEXTAREA", "SELECT":
		return n.HasAttr("readonly")
	}
	return false
}

func isChecked(n Node) (bool, string) {
	if role, ok := n.Attr("role"); ok {
		role = strings.ToLower(role)
		if role == "checkbox" || role == "radio" {
			v, _ := n.Attr("aria-checked")
			return v == "true", ""
		}
	}
	if n.TagName() == "INPUT" {
		t, _ := n.Attr("type")
		t = strings.ToLower(t)
		if t == "checkbox" || t == "radio" {
			return n.HasAttr("checked"), ""
		}
	}
	return false, ResultNotCheckbox
}

// isVisible accounts for a non-zero bounding rect, visibility:visible, and
// display connectivity (spec §4.E), delegated to Environment since real
// layout is a browser capability this module does not implement.
func isVisible(n Node, env Environment) bool {
	rect, ok := env.BoundingRect(n)
	if !ok || (rect.Width == 0 && rect.Height == 0) {
		return false
	}
	style := env.Style(n)
	if style.Visibility != "" && style.Visibility != "visible" {
		return false
	}
	if style.Display == "none" {
		return false
	}
	return true
}

// StabilityTracker implements the multi-frame position comparison from spec
// §4.E "Stability wait". Component names are deliberately {Top, Left} (not
// {Left, Top}) to preserve the source's transposed-field quirk noted in
// spec §9 — a reimplementation must keep identical Same() semantics
// regardless of which axis maps to which field, so the transposition is
// invisible to callers; see DESIGN.md.
type StabilityTracker struct {
	requiredFrames int
	lastRect       Rect
	haveRect       bool
	sameCount      int
	tickCount      int
	firstTick      time.Time
	lastTickAt     time.Time
}

// NewStabilityTracker starts a tracker requiring requiredFrames consecutive
// same-rect frames.
func NewStabilityTracker(requiredFrames int) *StabilityTracker {
	if requiredFrames < 1 {
		requiredFrames = 1
	}
	return &StabilityTracker{requiredFrames: requiredFrames}
}

// Tick records one animation-frame observation of rect at time now and
// reports whether the element has been stable for requiredFrames in a row.
// The first tick is always skipped (spec: "the first rAF runs inside the
// same frame as evaluation"). Ticks under 15ms apart are dropped when
// requiredFrames > 1 (spec: "a known engine quirk").
func (t *StabilityTracker) Tick(rect Rect, now time.Time, progress *Progress) bool {
	t.tickCount++
	if t.tickCount == 1 {
		t.firstTick = now
		t.lastTickAt = now
		t.lastRect = rect
		t.haveRect = true
		return false
	}

	if t.requiredFrames > 1 && !t.lastTickAt.IsZero() {
		if now.Sub(t.lastTickAt) < 15*time.Millisecond {
			return false
		}
	}
	t.lastTickAt = now

	if t.haveRect && rect.Same(t.lastRect) {
		t.sameCount++
		progress.LogRepeating("element is stable")
	} else {
		t.sameCount = 0
		progress.LogRepeating("element is not stable - waiting...")
	}
	t.lastRect = rect
	t.haveRect = true

	return t.sameCount >= t.requiredFrames
}
