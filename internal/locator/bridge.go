// bridge.go — the §6 controller-facing façade: an *Instance* bundles a
// Registry, an Environment, and a document root into the handful of
// operations a controller actually drives (resolve, wait, fill, expect).
// Grounded on the teacher's own per-connection session shape
// (internal/bridge.Connection wraps a single extension session behind a
// small method set); here a locator Instance plays the same role for a
// single document/frame.
package locator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Instance is one locator session against a single document root. The
// controller holds one Instance per frame/tab it is driving.
type Instance struct {
	registry  *Registry
	env       Environment
	root      Node
	sessionID string
}

// NewInstance builds an Instance over registry/env/root, stamping a fresh
// session ID the controller can correlate across RPC calls (rpc.go) and
// progress-stream notifications (streamer.go).
func NewInstance(registry *Registry, env Environment, root Node) *Instance {
	return &Instance{registry: registry, env: env, root: root, sessionID: uuid.NewString()}
}

// SessionID identifies this Instance for correlation in logs and the
// progress-streaming façade.
func (inst *Instance) SessionID() string { return inst.sessionID }

// Root returns the document root this Instance resolves selectors against.
func (inst *Instance) Root() Node { return inst.root }

// ResolveSelector parses and evaluates selectorStr once (no retrying),
// matching spec §4.C's querySelector contract directly.
func (inst *Instance) ResolveSelector(selectorStr string, strict bool) (Node, bool, error) {
	sel, err := ParseSelector(inst.registry, selectorStr)
	if err != nil {
		return Node{}, false, err
	}
	ev := NewEvaluator(inst.registry, inst.env)
	return ev.QuerySelector(sel, inst.root, strict)
}

// ResolveSelectorAll parses and evaluates selectorStr once, returning every
// distinct matching element (spec §4.C querySelectorAll).
func (inst *Instance) ResolveSelectorAll(selectorStr string) ([]Node, error) {
	sel, err := ParseSelector(inst.registry, selectorStr)
	if err != nil {
		return nil, err
	}
	ev := NewEvaluator(inst.registry, inst.env)
	return ev.QuerySelectorAll(sel, inst.root)
}

// WaitForSelector polls selectorStr until it resolves to exactly one element
// (strict) or at least one element (non-strict), reporting progress on the
// returned Poll so a caller can stream it (see streamer.go).
func (inst *Instance) WaitForSelector(ctx context.Context, selectorStr string, strict bool, scheduler Scheduler) (*Poll, Node, error) {
	sel, err := ParseSelector(inst.registry, selectorStr)
	if err != nil {
		return nil, Node{}, err
	}
	ev := NewEvaluator(inst.registry, inst.env)

	poll := NewPoll(func(progress *Progress, cont any) (any, error) {
		node, ok, err := ev.QuerySelector(sel, inst.root, strict)
		if err != nil {
			return nil, err
		}
		if !ok {
			progress.LogRepeating(fmt.Sprintf("waiting for selector %q", selectorStr))
			return cont, nil
		}
		progress.SetIntermediateResult(previewNode(node))
		return node, nil
	}, scheduler)

	v, err := poll.Run(ctx)
	if err != nil {
		return poll, Node{}, err
	}
	node, _ := v.(Node)
	return poll, node, nil
}

// Fill waits for selectorStr to resolve, then gates fill() behind
// waitForElementStatesAndPerformAction (spec §4.E fill, §4.E Action gating)
// so a not-yet-visible/enabled/editable/stable target is retried rather than
// acted on immediately. Returns the ResultDone/ResultNeedsInput sentinel.
func (inst *Instance) Fill(ctx context.Context, selectorStr, value string, scheduler Scheduler) (string, error) {
	_, node, err := inst.WaitForSelector(ctx, selectorStr, true, scheduler)
	if err != nil {
		return "", err
	}

	gate := WaitForElementStatesAndPerformAction(node,
		[]ElementState{StateVisible, StateEnabled, StateEditable, StateStable}, false, inst.registry.StableRafCount(),
		func(n Node, progress *Progress, cont any) (any, error) {
			return fill(inst.env, n, value)
		}, inst.env, scheduler)

	v, err := gate.Run(ctx)
	if err != nil {
		return "", err
	}
	result, _ := v.(string)
	return result, nil
}

// SelectOptions waits for selectorStr to resolve, then gates selectOptions()
// behind the same action-readiness poll. matchers not yet satisfiable (e.g.
// options still rendering) keep the poll running rather than erroring.
func (inst *Instance) SelectOptions(ctx context.Context, selectorStr string, matchers []OptionMatcher, scheduler Scheduler) ([]string, error) {
	_, node, err := inst.WaitForSelector(ctx, selectorStr, true, scheduler)
	if err != nil {
		return nil, err
	}

	gate := WaitForElementStatesAndPerformAction(node,
		[]ElementState{StateVisible, StateEnabled, StateStable}, false, inst.registry.StableRafCount(),
		func(n Node, progress *Progress, cont any) (any, error) {
			selected, ok, err := selectOptions(inst.env, n, matchers)
			if err != nil {
				return nil, err
			}
			if !ok {
				progress.LogRepeating("waiting for requested options to become available")
				return cont, nil
			}
			return selected, nil
		}, inst.env, scheduler)

	v, err := gate.Run(ctx)
	if err != nil {
		return nil, err
	}
	selected, _ := v.([]string)
	return selected, nil
}

// SelectText waits for selectorStr to resolve, then gates selectText()
// (spec §4.E selectText).
func (inst *Instance) SelectText(ctx context.Context, selectorStr string, scheduler Scheduler) error {
	_, node, err := inst.WaitForSelector(ctx, selectorStr, true, scheduler)
	if err != nil {
		return err
	}

	gate := WaitForElementStatesAndPerformAction(node,
		[]ElementState{StateVisible, StateEnabled, StateStable}, false, inst.registry.StableRafCount(),
		func(n Node, progress *Progress, cont any) (any, error) {
			if err := selectText(inst.env, n); err != nil {
				return nil, err
			}
			return ResultDone, nil
		}, inst.env, scheduler)

	_, err = gate.Run(ctx)
	return err
}

// FocusNode waits for selectorStr to resolve, then gates focusNode()
// (spec §4.E focusNode).
func (inst *Instance) FocusNode(ctx context.Context, selectorStr string, scheduler Scheduler) error {
	_, node, err := inst.WaitForSelector(ctx, selectorStr, true, scheduler)
	if err != nil {
		return err
	}

	gate := WaitForElementStatesAndPerformAction(node,
		[]ElementState{StateVisible, StateStable}, false, inst.registry.StableRafCount(),
		func(n Node, progress *Progress, cont any) (any, error) {
			if err := focusNode(inst.env, n); err != nil {
				return nil, err
			}
			return ResultDone, nil
		}, inst.env, scheduler)

	_, err = gate.Run(ctx)
	return err
}

// SetInputFiles waits for selectorStr to resolve, then gates setInputFiles()
// (spec §4.E setInputFiles).
func (inst *Instance) SetInputFiles(ctx context.Context, selectorStr string, files []FilePayload, scheduler Scheduler) error {
	_, node, err := inst.WaitForSelector(ctx, selectorStr, true, scheduler)
	if err != nil {
		return err
	}

	gate := WaitForElementStatesAndPerformAction(node,
		[]ElementState{StateVisible, StateEnabled}, false, inst.registry.StableRafCount(),
		func(n Node, progress *Progress, cont any) (any, error) {
			if err := setInputFiles(inst.env, n, files); err != nil {
				return nil, err
			}
			return ResultDone, nil
		}, inst.env, scheduler)

	_, err = gate.Run(ctx)
	return err
}

// CheckHitTargetAt waits for selectorStr to resolve, then hit-tests point
// against it (spec §4.E checkHitTargetAt). This is itself a readiness
// predicate rather than a mutating action, so it is not routed through
// waitForElementStatesAndPerformAction.
func (inst *Instance) CheckHitTargetAt(ctx context.Context, selectorStr string, point struct{ X, Y float64 }, scheduler Scheduler) (HitTargetResult, error) {
	_, node, err := inst.WaitForSelector(ctx, selectorStr, true, scheduler)
	if err != nil {
		return HitTargetResult{}, err
	}
	return checkHitTargetAt(node, point, inst.env), nil
}

// DispatchEvent waits for selectorStr to resolve, then dispatches eventType
// on it (spec §4.E dispatchEvent). init may be nil to use the spec's
// bubbles/cancelable/composed defaults.
func (inst *Instance) DispatchEvent(ctx context.Context, selectorStr, eventType string, init *EventInit, scheduler Scheduler) error {
	_, node, err := inst.WaitForSelector(ctx, selectorStr, true, scheduler)
	if err != nil {
		return err
	}
	return dispatchEvent(inst.env, node, eventType, init)
}

// Extend registers a Go-implemented selector engine on this Instance's
// registry (spec §6 `extend(source, params)`). Only the engine-registration
// half of that contract is exposed here: loading and eval'ing a JS engine
// source string has no meaning in a Go port with no JS runtime, so callers
// register a Go Engine value directly instead (see engine.go's Extend and
// DESIGN.md).
func (inst *Instance) Extend(name string, engine Engine) error {
	return inst.registry.Extend(name, engine)
}

// Expect polls exp against selectorStr's resolution until it's satisfied (or
// ctx is done/cancelled), returning the last observed (satisfied, value).
// Matches spec §4.E's "assertion expressions retry through a Poll" contract.
func (inst *Instance) Expect(ctx context.Context, selectorStr string, exp Expectation, scheduler Scheduler) (*Poll, bool, any, error) {
	sel, err := ParseSelector(inst.registry, selectorStr)
	if err != nil {
		return nil, false, nil, err
	}
	ev := NewEvaluator(inst.registry, inst.env)

	type outcome struct {
		pass bool
		val  any
	}

	poll := NewPoll(func(progress *Progress, cont any) (any, error) {
		all, err := ev.QuerySelectorAll(sel, inst.root)
		if err != nil {
			return nil, err
		}
		var target Node
		if len(all) > 0 {
			target = all[0]
		}
		satisfied, val, err := EvaluateExpectation(target, all, exp, inst.env)
		if err != nil {
			return nil, err
		}
		progress.SetIntermediateResult(val)
		pass := satisfied != exp.Negated
		if !pass {
			progress.LogRepeating(fmt.Sprintf("expect(%q).%s: waiting, last value %v", selectorStr, exp.Expression, val))
			return cont, nil
		}
		return outcome{pass: pass, val: val}, nil
	}, scheduler)

	v, err := poll.Run(ctx)
	if err != nil {
		return poll, false, nil, err
	}
	o, _ := v.(outcome)
	return poll, o.pass, o.val, nil
}

// DefaultScheduler is the scheduler RPC callers get when they don't specify
// a polling strategy: dev-console's own fast/slow/blocking backoff curve.
func DefaultScheduler() Scheduler { return PollLogScale() }
