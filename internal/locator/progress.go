// progress.go — the Progress object (spec §3, §4.D "Log delivery").
// Buffers advisory log lines for the controller to drain incrementally,
// supports abort signaling, and de-duplicates repeated messages/results.
package locator

import "sync"

// Progress accumulates logs for a single poll and exposes abort status.
type Progress struct {
	mu           sync.Mutex
	aborted      bool
	logs         []string
	lastRepeat   string
	haveRepeat   bool
	lastResult   any
	haveResult   bool
	finished     bool
	waiter       chan struct{}
}

// NewProgress creates an un-aborted, empty Progress.
func NewProgress() *Progress {
	return &Progress{}
}

// Aborted reports whether cancel() has been called.
func (p *Progress) Aborted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aborted
}

// Finished reports whether the owning Poll has fulfilled, rejected, or been
// cancelled - i.e. no further log lines will ever be appended.
func (p *Progress) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

func (p *Progress) abort() {
	p.mu.Lock()
	p.aborted = true
	p.mu.Unlock()
}

// Log unconditionally appends msg.
func (p *Progress) Log(msg string) {
	p.mu.Lock()
	p.logs = append(p.logs, msg)
	p.notifyLocked()
	p.mu.Unlock()
}

// LogRepeating suppresses consecutive duplicate messages (spec §3, §8
// property 6).
func (p *Progress) LogRepeating(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.haveRepeat && p.lastRepeat == msg {
		return
	}
	p.haveRepeat = true
	p.lastRepeat = msg
	p.logs = append(p.logs, msg)
	p.notifyLocked()
}

// SetIntermediateResult suppresses unchanged values (spec §3, §8 property 6).
// The value is exposed via LastIntermediateResult for callers (e.g. expect)
// that need the most recent "received" value, not just a log line.
func (p *Progress) SetIntermediateResult(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.haveResult && deepEquals(p.lastResult, v) {
		return
	}
	p.haveResult = true
	p.lastResult = v
}

// LastIntermediateResult returns the most recently published value, if any.
func (p *Progress) LastIntermediateResult() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastResult, p.haveResult
}

func (p *Progress) finish() {
	p.mu.Lock()
	p.finished = true
	p.notifyLocked()
	p.mu.Unlock()
}

func (p *Progress) notifyLocked() {
	if p.waiter != nil {
		close(p.waiter)
		p.waiter = nil
	}
}

// TakeNextLogs blocks until a new entry arrives or the task finishes,
// whichever is first (spec §4.D "Log delivery"). Exactly one waiter is
// honored at a time; a second concurrent call supersedes the first (design
// note "Log backpressure").
func (p *Progress) TakeNextLogs() []string {
	p.mu.Lock()
	if len(p.logs) > 0 || p.finished {
		out := p.logs
		p.logs = nil
		p.mu.Unlock()
		return out
	}
	ch := make(chan struct{})
	p.waiter = ch
	p.mu.Unlock()

	<-ch

	p.mu.Lock()
	out := p.logs
	p.logs = nil
	p.mu.Unlock()
	return out
}

// TakeLastLogs returns the current buffer without blocking.
func (p *Progress) TakeLastLogs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.logs
	p.logs = nil
	return out
}
