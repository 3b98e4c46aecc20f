// actionready.go — Component E's action gate, waitForElementStatesAndPerformAction
// (spec §4.E). Every action entry point (fill, selectOptions, selectText,
// setInputFiles, the hit-target check) is supposed to run through this
// rather than acting on a resolved element directly; it is the poll that
// repeatedly re-evaluates retargeting, element-state, and stability before
// letting the actual DOM mutation happen.
package locator

import (
	"fmt"
	"time"
)

// ActionCallback performs the actual side effect once every requested state
// holds. It receives the same continuePolling token the surrounding poll
// uses, so it may itself request another tick (e.g. fill's number-input path
// wants the controller to key-type rather than finish on this tick).
type ActionCallback func(node Node, progress *Progress, continuePolling any) (any, error)

// WaitForElementStatesAndPerformAction builds the poll every action routes
// through (spec §4.E "Action gating"). On each tick: if force, every check
// is skipped and callback runs immediately. Otherwise each requested state
// is re-evaluated fresh (the element's connectedness, layout, and retargeted
// identity can all change between ticks); a disconnected element or a
// checked-state query against a non-checkbox/radio fulfills the poll
// immediately with that sentinel rather than retrying forever. Once every
// non-stable state holds and, if "stable" was requested, the stability
// tracker has seen stableFrames consecutive matching frames, callback runs
// and its result is forwarded as-is. stableFrames below 1 is treated as 1.
func WaitForElementStatesAndPerformAction(node Node, states []ElementState, force bool, stableFrames int, callback ActionCallback, env Environment, scheduler Scheduler) *Poll {
	if stableFrames < 1 {
		stableFrames = 1
	}
	tracker := NewStabilityTracker(stableFrames)

	return NewPoll(func(progress *Progress, cont any) (any, error) {
		if !force {
			for _, state := range states {
				if state == StateStable {
					rect, ok := env.BoundingRect(node)
					if !ok {
						progress.LogRepeating("waiting for element to be stable - element has no box")
						return cont, nil
					}
					if !tracker.Tick(rect, time.Now(), progress) {
						return cont, nil
					}
					continue
				}

				value, sentinel := ElementStateResult(node, state, env)
				if sentinel != "" {
					return sentinel, nil
				}
				if !value {
					progress.LogRepeating(fmt.Sprintf("waiting for element to be %s", state))
					return cont, nil
				}
			}
		}

		return callback(node, progress, cont)
	}, scheduler)
}
