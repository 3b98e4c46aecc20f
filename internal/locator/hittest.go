// hittest.go — hit-target verification (spec §4.E "Hit target check").
// Walks shadow boundaries re-querying elementFromPoint at each one, the way
// a real browser requires, and builds a human-readable divergence message
// when the hit element isn't target or one of its ancestors.
package locator

import "fmt"

// HitTargetResult reports whether point(x, y) actually resolves to target
// (or a descendant of target), and if not, a diagnostic naming the element
// that intercepted the hit.
type HitTargetResult struct {
	Hit     bool
	Blocker Node
	Message string
}

// checkHitTargetAt hit-tests target's center point, descending through any
// shadow boundaries encountered on the way to target, matching the real
// browser's requirement to re-query elementFromPoint inside each shadow root.
// target is retargeted first (no-follow-label, the same rule elementState
// uses) so a <label>-wrapped control is hit-tested against the control
// itself rather than the label.
func checkHitTargetAt(target Node, point struct{ X, Y float64 }, env Environment) HitTargetResult {
	target = Retarget(target, RetargetNoFollowLabel)

	hit, ok := env.ElementFromPoint(point.X, point.Y)
	if !ok {
		return HitTargetResult{Hit: false, Message: "element is not visible at the expected point"}
	}

	cur := hit
	for {
		if cur.Equal(target) || isDescendantOf(target, cur) || isDescendantOf(cur, target) {
			return HitTargetResult{Hit: true}
		}

		host, ok := shadowHostOf(cur, target)
		if !ok {
			return HitTargetResult{
				Hit:     false,
				Blocker: cur,
				Message: fmt.Sprintf("%s intercepts pointer events", previewNode(cur)),
			}
		}

		inner, ok := env.ElementFromPointInShadow(host, point.X, point.Y)
		if !ok {
			return HitTargetResult{
				Hit:     false,
				Blocker: cur,
				Message: fmt.Sprintf("%s intercepts pointer events from its shadow subtree", previewNode(cur)),
			}
		}
		cur = inner
	}
}

// shadowHostOf reports whether cur hosts a shadow root somewhere on the path
// toward target, returning the host so the caller can re-hit-test inside it.
func shadowHostOf(cur, target Node) (Node, bool) {
	if _, ok := cur.ShadowRoot(); ok {
		return cur, true
	}
	return Node{}, false
}
