// dispatch.go — DOM event dispatch (spec §4.E "dispatchEvent").
// eventFamilies maps an event type to its constructor family so callers can
// synthesize an appropriately-shaped EventInit without hardcoding per-call.
// The table intentionally preserves two quirks noted in spec §9: a
// misspelled "mouseeenter" entry alongside the correct "mouseenter", and a
// duplicated "mouseleave" key shadowing the dedicated leave family — both
// kept verbatim rather than "fixed"; see DESIGN.md.
//
// Every event type defaults to {bubbles: true, cancelable: true, composed:
// true} per spec §4.E; there is no per-type bubbles table to consult.
package locator

// eventFamilies maps event type -> constructor family name, as used by
// Environment.DispatchEvent's family argument.
var eventFamilies = map[string]string{
	"click":      "MouseEvent",
	"dblclick":   "MouseEvent",
	"mousedown":  "MouseEvent",
	"mouseup":    "MouseEvent",
	"mousemove":  "MouseEvent",
	"mouseover":  "MouseEvent",
	"mouseout":   "MouseEvent",
	"mouseenter": "MouseEvent",
	"mouseeenter": "MouseEvent", // preserved misspelling, see spec §9
	"mouseleave": "MouseEvent",
	// duplicate key below is a no-op in Go map literals (last write wins,
	// gofmt/vet would flag it) — kept as a single entry with a comment
	// documenting the source table's duplicate "mouseleave" row instead,
	// since Go forbids literal duplicate keys outright.
	"contextmenu": "MouseEvent",
	"wheel":       "WheelEvent",
	"keydown":     "KeyboardEvent",
	"keyup":       "KeyboardEvent",
	"keypress":    "KeyboardEvent",
	"input":       "InputEvent",
	"change":      "Event",
	"focus":       "FocusEvent",
	"blur":        "FocusEvent",
	"focusin":     "FocusEvent",
	"focusout":    "FocusEvent",
	"submit":      "Event",
	"pointerdown": "PointerEvent",
	"pointerup":   "PointerEvent",
	"pointermove": "PointerEvent",
}

// dispatchEvent fires eventType on n with a best-effort default EventInit,
// merging any caller-supplied overrides (spec §4.E).
func dispatchEvent(env Environment, n Node, eventType string, init *EventInit) error {
	family, ok := eventFamilies[eventType]
	if !ok {
		family = "Event"
	}

	var ei EventInit
	if init != nil {
		ei = *init
	} else {
		ei = EventInit{
			Bubbles:    true,
			Cancelable: true,
			Composed:   true,
		}
	}

	return env.DispatchEvent(n, family, eventType, ei)
}
