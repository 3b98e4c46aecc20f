// poll.go — Component D: the cancellable cooperative poll.
// Grounded on the retrieved chromedp Selector.run retry loop (channel +
// select + sleep-until-next-tick) and the teacher's own
// bridge.ToolCallTimeout fast/slow/blocking timeout taxonomy, which this
// poll's pollLogScale backoff schedule mirrors.
package locator

import (
	"context"
	"sync"
	"time"
)

// continuePollingToken is a per-invocation unique sentinel so a predicate
// cannot accidentally return a truthy user value equal to it (spec §4.D,
// design note "Callback/sentinel suspension").
type continuePollingToken struct{}

// Predicate is the shape of a poll's per-tick callback. Returning the
// supplied continuePolling token requests another tick; any other value
// (including nil) fulfills the poll with that value.
type Predicate func(progress *Progress, continuePolling any) (any, error)

// Scheduler schedules the next poll tick, invoking next when it's time to
// run the predicate again. It returns a cancel function.
type Scheduler func(ctx context.Context, next func()) (cancel func())

// Poll is a cancellable cooperative task (spec §3 Poll, §4.D).
type Poll struct {
	progress  *Progress
	predicate Predicate
	scheduler Scheduler
	token     any

	done     chan struct{}
	closeOne sync.Once
	result   any
	err      error
	cancel   context.CancelFunc
	started  bool
}

// NewPoll builds a poll over predicate, driven by scheduleNext.
func NewPoll(predicate Predicate, scheduleNext Scheduler) *Poll {
	return &Poll{
		progress:  NewProgress(),
		predicate: predicate,
		scheduler: scheduleNext,
		token:     continuePollingToken{},
		done:      make(chan struct{}),
	}
}

// Progress returns the poll's progress object.
func (p *Poll) Progress() *Progress { return p.progress }

// Run starts the poll (idempotent) and blocks until it fulfills, is
// cancelled, or errors.
func (p *Poll) Run(ctx context.Context) (any, error) {
	if p.started {
		<-p.done
		return p.result, p.err
	}
	p.started = true

	var cancel context.CancelFunc
	ctx, cancel = contextWithCancel(ctx)
	p.cancel = cancel

	var tick func()
	tick = func() {
		if p.progress.Aborted() {
			return // stop silently, spec §4.D step 1
		}

		v, err := p.predicate(p.progress, p.token)
		if err != nil {
			p.progress.Log("  " + err.Error())
			p.fulfil(nil, err)
			return
		}
		if isContinuePollingToken(v, p.token) {
			if p.progress.Aborted() {
				return
			}
			p.scheduler(ctx, tick)
			return
		}
		p.fulfil(v, nil)
	}

	p.scheduler(ctx, tick)
	<-p.done
	return p.result, p.err
}

func isContinuePollingToken(v, token any) bool {
	_, vIsToken := v.(continuePollingToken)
	return vIsToken && v == token
}

func (p *Poll) fulfil(v any, err error) {
	p.closeOne.Do(func() {
		p.result, p.err = v, err
		p.progress.finish()
		close(p.done)
	})
}

// Cancel sets progress.aborted; the next scheduled tick returns immediately
// without resuming the predicate and without fulfilling or rejecting Run's
// result (spec §5 "Cancellation", §8 property 5). Cancel races safely
// against a concurrent in-flight fulfil: whichever reaches closeOne first
// wins, and Cancel's outcome always leaves result/err at their zero values.
func (p *Poll) Cancel() {
	p.progress.abort()
	if p.cancel != nil {
		p.cancel()
	}
	p.closeOne.Do(func() {
		p.progress.finish()
		close(p.done)
	})
}

// contextWithCancel is split out so Poll doesn't need the cancelFunc field
// named inline in NewPoll's zero-value struct literal.
func contextWithCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithCancel(ctx)
}

// --- Schedulers -------------------------------------------------------

// PollRaf schedules the next tick on env's animation-frame callback. The
// Registry may force this to a 16ms timer (replaceRafWithTimeout).
func PollRaf(env Environment, replaceWithTimeout bool) Scheduler {
	if replaceWithTimeout {
		return PollInterval(16 * time.Millisecond)
	}
	return func(ctx context.Context, next func()) func() {
		cancel := env.RequestAnimationFrame(func(time.Time) {
			select {
			case <-ctx.Done():
				return
			default:
				next()
			}
		})
		return cancel
	}
}

// PollInterval schedules ticks at a fixed-rate timer.
func PollInterval(d time.Duration) Scheduler {
	return func(ctx context.Context, next func()) func() {
		t := time.AfterFunc(d, func() {
			select {
			case <-ctx.Done():
				return
			default:
				next()
			}
		})
		return func() { t.Stop() }
	}
}

// pollLogScaleSteps is the 100/250/500/then-1000ms backoff from spec §4.D.
var pollLogScaleSteps = []time.Duration{
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
}

// PollLogScale schedules ticks at increasing intervals (100ms, 250ms, 500ms,
// then 1000ms), matching dev-console's own fast/slow/blocking timeout
// taxonomy in bridge.ToolCallTimeout.
func PollLogScale() Scheduler {
	step := 0
	return func(ctx context.Context, next func()) func() {
		d := pollLogScaleSteps[len(pollLogScaleSteps)-1]
		if step < len(pollLogScaleSteps) {
			d = pollLogScaleSteps[step]
			step++
		}
		t := time.AfterFunc(d, func() {
			select {
			case <-ctx.Done():
				return
			default:
				next()
			}
		})
		return func() { t.Stop() }
	}
}
