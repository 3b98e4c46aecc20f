// Package domtest provides a deterministic fake locator.Environment for
// tests, modeled on the teacher's own fixture style in internal/tools/interact's
// test files (explicit maps of canned state keyed by input, no real I/O).
package domtest

import (
	"fmt"
	"time"

	"github.com/dev-console/dev-console/internal/locator"
)

// Event records one DispatchEvent call for assertions.
type Event struct {
	Node   locator.Node
	Family string
	Type   string
	Init   locator.EventInit
}

// Env is a fully in-memory, deterministic locator.Environment. Every
// capability is driven by maps the test populates directly instead of by
// any real layout/rendering engine.
type Env struct {
	rects      map[any]locator.Rect
	styles     map[any]locator.ComputedStyle
	connected  map[any]bool
	values     map[any]string
	active     locator.Node
	hasActive  bool
	points     map[[2]float64]locator.Node
	shadowPts  map[any]map[[2]float64]locator.Node
	rafQueue   []func(time.Time)
	clock      time.Time

	Events []Event
	Files   map[any][]locator.FilePayload

	selectedOptions map[any]bool
}

// New builds an Env with every node implicitly connected unless told
// otherwise via SetConnected.
func New() *Env {
	return &Env{
		rects:     map[any]locator.Rect{},
		styles:    map[any]locator.ComputedStyle{},
		connected: map[any]bool{},
		values:    map[any]string{},
		points:    map[[2]float64]locator.Node{},
		shadowPts: map[any]map[[2]float64]locator.Node{},
		Files:     map[any][]locator.FilePayload{},

		selectedOptions: map[any]bool{},
	}
}

func key(n locator.Node) any { return n.Raw() }

// SetConnected marks n connected or detached.
func (e *Env) SetConnected(n locator.Node, connected bool) { e.connected[key(n)] = connected }

// SetRect records n's bounding box.
func (e *Env) SetRect(n locator.Node, r locator.Rect) { e.rects[key(n)] = r }

// SetStyle records n's computed style.
func (e *Env) SetStyle(n locator.Node, s locator.ComputedStyle) { e.styles[key(n)] = s }

// SetValue seeds n.value without going through SetValue(Node, string).
func (e *Env) SetValueDirect(n locator.Node, v string) { e.values[key(n)] = v }

// SetActive marks n as the document's focused element.
func (e *Env) SetActive(n locator.Node) { e.active, e.hasActive = n, true }

// SetPoint registers what ElementFromPoint(x, y) should return.
func (e *Env) SetPoint(x, y float64, n locator.Node) { e.points[[2]float64{x, y}] = n }

// SetShadowPoint registers what ElementFromPointInShadow(host, x, y) returns.
func (e *Env) SetShadowPoint(host locator.Node, x, y float64, n locator.Node) {
	m, ok := e.shadowPts[key(host)]
	if !ok {
		m = map[[2]float64]locator.Node{}
		e.shadowPts[key(host)] = m
	}
	m[[2]float64{x, y}] = n
}

// Tick advances the fake clock and fires every queued animation-frame
// callback once, matching a single requestAnimationFrame round in a real
// browser.
func (e *Env) Tick(d time.Duration) {
	e.clock = e.clock.Add(d)
	due := e.rafQueue
	e.rafQueue = nil
	for _, fn := range due {
		fn(e.clock)
	}
}

func (e *Env) IsConnected(n locator.Node) bool {
	if n.IsZero() {
		return false
	}
	v, ok := e.connected[key(n)]
	if !ok {
		return true // default: connected unless told otherwise
	}
	return v
}

func (e *Env) BoundingRect(n locator.Node) (locator.Rect, bool) {
	r, ok := e.rects[key(n)]
	return r, ok
}

func (e *Env) Style(n locator.Node) locator.ComputedStyle {
	return e.styles[key(n)]
}

func (e *Env) ActiveElement(locator.Node) (locator.Node, bool) {
	return e.active, e.hasActive
}

func (e *Env) Focus(n locator.Node) error {
	e.active, e.hasActive = n, true
	return nil
}

func (e *Env) SetSelectionRange(n locator.Node, start, end int) error {
	v := e.values[key(n)]
	if start < 0 || end > len(v) || start > end {
		return fmt.Errorf("selection range out of bounds")
	}
	return nil
}

func (e *Env) SelectText(locator.Node) error { return nil }

func (e *Env) SetValue(n locator.Node, value string) error {
	e.values[key(n)] = value
	return nil
}

func (e *Env) Value(n locator.Node) (string, bool) {
	v, ok := e.values[key(n)]
	return v, ok
}

func (e *Env) DispatchEvent(n locator.Node, family, eventType string, init locator.EventInit) error {
	e.Events = append(e.Events, Event{Node: n, Family: family, Type: eventType, Init: init})
	return nil
}

func (e *Env) ElementFromPoint(x, y float64) (locator.Node, bool) {
	n, ok := e.points[[2]float64{x, y}]
	return n, ok
}

func (e *Env) ElementFromPointInShadow(host locator.Node, x, y float64) (locator.Node, bool) {
	m, ok := e.shadowPts[key(host)]
	if !ok {
		return locator.Node{}, false
	}
	n, ok := m[[2]float64{x, y}]
	return n, ok
}

func (e *Env) RequestAnimationFrame(fn func(time.Time)) func() {
	e.rafQueue = append(e.rafQueue, fn)
	idx := len(e.rafQueue) - 1
	cancelled := false
	return func() {
		if cancelled || idx >= len(e.rafQueue) {
			return
		}
		e.rafQueue[idx] = func(time.Time) {}
		cancelled = true
	}
}

func (e *Env) InstallFiles(n locator.Node, files []locator.FilePayload) error {
	e.Files[key(n)] = files
	return nil
}

func (e *Env) SetOptionSelected(n locator.Node, selected bool) error {
	e.selectedOptions[key(n)] = selected
	return nil
}

// OptionSelected reports whether SetOptionSelected(n, true) was the last call
// recorded for n, for test assertions.
func (e *Env) OptionSelected(n locator.Node) bool {
	return e.selectedOptions[key(n)]
}
