package mprompt

import (
	"runtime"

	"github.com/google/uuid"
)

// maxCapturedFrames bounds how many program counters captureBlockedFrames
// stores per prompt — generous enough for any realistic nesting depth
// without growing unbounded on deeply recursive user code.
const maxCapturedFrames = 64

// Prompt represents a delimited control boundary bound to its own pooled
// goroutine stack. Field names deliberately match spec.md §3's data model:
// parent, top, refcount, a handle to its stack, a return point (toCaller), a
// resume point (toPrompt), and a guarded epoch standing in for guarded_sp.
type Prompt struct {
	site     *Site
	parent   *Prompt // previous prompt down the active chain
	top      *Prompt // set only while suspended: head of the captured chain
	refcount int64
	id       uuid.UUID

	fun      EntryFunc
	entryArg any

	toPrompt chan transferMsg // resume_point: caller -> this prompt's goroutine
	toCaller chan transferMsg // return_point: this prompt's goroutine -> caller

	epoch        uint64
	guardedEpoch token

	started bool
	stk     *stackHandle

	replay  *replayCursor // set only while re-running a multi-shot replay
	history []replayStep  // every resume argument this prompt's yields have received so far, oldest first

	// capturedPC is a snapshot of this prompt's own call stack taken the
	// last time its goroutine became blocked waiting on a channel receive
	// (see the capture calls in Enter, resumeOnce, and Yield below) — the
	// substitute Backtrace reads for any prompt other than the currently
	// running one, since runtime.Callers can only ever see the calling
	// goroutine's own frames, never another (even merely parked) one's.
	capturedPC []uintptr
}

func newPrompt(s *Site) *Prompt {
	return &Prompt{
		site:     s,
		refcount: 1,
		id:       uuid.New(),
		toPrompt: make(chan transferMsg),
		toCaller: make(chan transferMsg, 1),
	}
}

// Site returns the active chain this prompt belongs to, used to reach
// Create/Enter/Yield from within a running EntryFunc without ambient
// thread-local state (see Site's doc comment).
func (p *Prompt) Site() *Site { return p.site }

// Create allocates a prompt sharing p's site — the idiomatic-Go substitute
// for the original's implicit "whatever thread calls Create() owns the new
// prompt": here the enclosing *Prompt, not an ambient thread, carries the
// site forward.
func (p *Prompt) Create() *Prompt { return p.site.Create() }

func (p *Prompt) dup() *Prompt {
	p.refcount++
	return p
}

// drop and dropDelayed track only p's own reference count (spec.md §4.4's
// resumption lifetime, not the pooled goroutine backing it — see
// releaseStack for that). Letting go of the last reference to a Prompt says
// nothing about whether its worker goroutine has actually finished running;
// a dropped-while-suspended resumption's goroutine is still blocked mid-body
// until abandonPrompt wakes it, so releasing its stack eagerly here would
// hand the same handle to a future, unrelated alloc() while the real
// goroutine behind it is still live (see releaseStack's doc comment).
func (p *Prompt) drop() {
	p.refcount--
}

func (p *Prompt) dropDelayed() {
	p.refcount--
}

// releaseStack returns p's worker goroutine to the pool, implementing
// GSTACK's free(stack_handle, delay). Call this only once p's body has
// genuinely finished running on that goroutine — either because dispatch
// just received its return/exception report (the two call sites in
// dispatch below), or because runPromptBody's own abandonSignal recover is
// about to return, which is the same guarantee from the other side of the
// same goroutine. Nothing else may call this: the goroutine behind p.stk is
// blocked, not idle, at every other point in its lifetime.
func (p *Prompt) releaseStack(delay bool) {
	if p.stk != nil {
		defaultPool.free(p.stk, delay)
		p.stk = nil
	}
}

// runPromptBody executes fun(p, arg) on the current (pooled worker)
// goroutine, the Go analogue of mp_prompt_stack_entry. A panic escaping fun
// is captured and forwarded as a kindException transfer instead of crashing
// the worker, mirroring the C++ try/catch around the user function.
func runPromptBody(p *Prompt, fun EntryFunc, arg any) {
	defer func() {
		if rec := recover(); rec != nil {
			if _, ok := rec.(abandonSignal); ok {
				// Dropped while suspended — either p itself was the target
				// of abandonPrompt, or p is a nested prompt caught up in a
				// chain abandoned further out (TestNestedPromptsAndAncestry's
				// shape with ResumeDrop instead of Resume). Either way this
				// goroutine's body is finished for good right here, so its
				// own stack handle is released directly instead of relying
				// on some caller's dispatch to do it: a chain's outermost
				// level forwards toCaller to nobody (its original reader
				// already moved on long before the drop), so no dispatch
				// call downstream would ever run to process a report for it.
				if p.stk != nil {
					defaultPool.release(p.stk)
					p.stk = nil
				}
				// Forward the unwind to whoever entered or resumed p, so an
				// abandonment captured across two or more nested prompts
				// unwinds every level instead of leaving an intermediate
				// Enter call's own worker goroutine blocked forever. toCaller
				// is buffered by one; by the time a resumption is dropped its
				// lone prior message has always already been read, so this
				// send never blocks — it either wakes a genuinely suspended
				// caller (continuing the cascade) or sits unread at the top
				// of the chain, where nobody is listening anymore.
				select {
				case p.toCaller <- transferMsg{kind: kindAbandon}:
				default:
				}
				return
			}
			p.toCaller <- transferMsg{kind: kindException, exn: rec}
		}
	}()
	result := fun(p, arg)
	p.toCaller <- transferMsg{kind: kindReturn, result: result}
}

// abandonSignal unwinds a prompt's goroutine via an ordinary Go panic when it
// is dropped while suspended and never resumed. Go has no way to discard a
// blocked goroutine without it observing something, so — unlike the
// original, which explicitly does *not* run destructors on a plain drop —
// dropping here always lets the goroutine's own defers run via this panic.
// Config/host code that wants the original's "finalize only if
// should_unwind" discipline should check ResumeShouldUnwind before dropping
// and treat a drop as "the resumption will never run" regardless.
type abandonSignal struct{}

// Enter transitions a fresh prompt to active and runs fun(p, arg) on a
// pooled goroutine, implementing spec.md §4.3's Entry operation. Enter
// itself never panics for ordinary usage mistakes (those return a *Error).
// A panic escaping Enter is either a propagated exception from inside fun,
// re-raised unchanged so it surfaces on the caller's own goroutine, or —
// when Enter was called from inside another prompt's body whose captured
// resumption is dropped — the internal abandonSignal that unwinds that body.
func (s *Site) Enter(p *Prompt, fun EntryFunc, arg any) (any, error) {
	if p.started {
		return nil, usageError("Enter", "double-entry of prompt %s", p.id)
	}
	if p.site != s {
		return nil, usageError("Enter", "prompt %s does not belong to this site", p.id)
	}
	p.started = true
	p.fun, p.entryArg = fun, arg
	captureBlockedFrames(s)
	s.link(p)

	h := defaultPool.alloc()
	p.stk = h
	h.work <- workItem{p: p, fun: fun, arg: arg}

	return p.dispatch()
}

// dispatch waits for the prompt's goroutine to report a return, exception,
// or yield and handles it, the Go analogue of the setjmp branch in
// mp_prompt_resume plus mp_prompt_exec_yield_fun.
func (p *Prompt) dispatch() (any, error) {
	msg := <-p.toCaller
	if msg.kind == kindReturn || msg.kind == kindException {
		// p's body has finished: take p off the active chain, restoring
		// its parent as the chain top.
		s := p.site
		s.mu.Lock()
		s.top = p.parent
		p.parent = nil
		s.mu.Unlock()
	}
	switch msg.kind {
	case kindReturn:
		p.drop()
		p.releaseStack(false)
		return msg.result, nil
	case kindException:
		p.dropDelayed()
		p.releaseStack(true)
		panic(msg.exn)
	case kindYield:
		return p.runHandler(msg)
	case kindAbandon:
		// p's own worker goroutine already released its stack handle
		// itself (see runPromptBody) before sending this; there is
		// nothing left to report, only the rest of the chain to unwind.
		p.dropDelayed()
		panic(abandonSignal{})
	default:
		fatalIntegrity("dispatch", "unexpected transfer kind %d", msg.kind)
		return nil, nil
	}
}

// runHandler invokes the yield handler on its own short-lived goroutine
// rather than as a nested Go call. This is the substitute for the original's
// resume_tail longjmp trick (see SPEC_FULL.md substitution 5): a long chain
// of resumes driven from inside successive handlers costs O(1) stack depth
// per goroutine no matter how deep the chain, since each handler invocation
// gets a brand new, shallow goroutine instead of growing one recursive Go
// call stack.
func (p *Prompt) runHandler(msg transferMsg) (any, error) {
	out := make(chan dispatchOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				out <- dispatchOutcome{thrown: rec, isThrow: true}
			}
		}()
		res := newOnceResumption(p, msg.guard)
		v := msg.fn(res, msg.arg)
		out <- dispatchOutcome{result: v}
	}()
	o := <-out
	if o.isThrow {
		panic(o.thrown)
	}
	return o.result, nil
}

// Yield suspends the active descendant chain rooted at the currently
// running prompt up to ancestor p, returning control to whoever last
// entered or resumed p, and runs fn(resumption, arg) there. It implements
// spec.md §4.3's Yield operation.
func Yield(p *Prompt, fn YieldFunc, arg any) any {
	if !p.site.IsAncestor(p) {
		usageError("Yield", "prompt %s is not an ancestor of the current top", p.id)
		return nil
	}

	if p.replay != nil && p.replay.idx < len(p.replay.steps) {
		// Replaying a previously recorded resume: skip the real
		// suspension and hand back the recorded argument directly, the
		// data-only substitute for restoring saved stack bytes (see
		// SPEC_FULL.md substitution 4). The handler fn is deliberately
		// not invoked again — only the body between yields re-executes.
		v := p.replay.steps[p.replay.idx].arg
		p.replay.idx++
		p.history = append(p.history, replayStep{arg: v})
		return v
	}

	s := p.site
	captureBlockedFrames(s)
	s.unlink(p)
	p.toCaller <- transferMsg{kind: kindYield, fn: fn, arg: arg, guard: p.guardedEpoch}
	msg := <-p.toPrompt
	if msg.kind == kindAbandon {
		panic(abandonSignal{})
	}
	if msg.guard.unguard() != p.epoch {
		fatalIntegrity("Yield", "resume arrived with a stale guard for prompt %s", p.id)
	}
	p.history = append(p.history, replayStep{arg: msg.result})
	return msg.result
}

// resumeOnce drives a suspended prompt back to active at its resume point,
// reusing its already-live goroutine. It backs plain once-resumes and the
// first resume of a multi-shot resumption; the initial entry (no
// resume_point yet) is handled by Enter above instead.
func resumeOnce(p *Prompt, arg any) (any, error) {
	s := p.site
	captureBlockedFrames(s)
	s.link(p)
	p.toPrompt <- transferMsg{kind: kindYield, result: arg, guard: p.guardedEpoch}
	return p.dispatch()
}

// captureBlockedFrames snapshots the calling goroutine's own stack into
// whichever prompt is currently s's active top, right before that goroutine
// is about to block waiting for a child or a resumer (the call sites in
// Enter, resumeOnce, and Yield above). Backtrace reads this snapshot for any
// prompt other than the one presently running, since runtime.Callers cannot
// see a different (even merely parked) goroutine's frames — only the one
// it's called from. The snapshot is necessarily stale the moment its owner
// resumes and calls something else, but by then that prompt is no longer
// "currently running but blocked further in", so Backtrace stops consulting it.
func captureBlockedFrames(s *Site) {
	cur := s.Top()
	if cur == nil {
		return
	}
	pcs := make([]uintptr, maxCapturedFrames)
	n := runtime.Callers(3, pcs)
	cur.capturedPC = pcs[:n]
}

func abandonPrompt(p *Prompt) {
	select {
	case p.toPrompt <- transferMsg{kind: kindAbandon}:
	default:
	}
}

// Run is the package-level convenience matching spec.md §4.3's top-level
// mp_prompt(): it creates a fresh site and a fresh prompt bound to it and
// enters fun immediately. Call it whenever a new call tree doesn't need to
// share a Site with an already-running one; use Site.Create plus Site.Enter
// directly when fun itself needs to Create further nested prompts that
// outlive this call (it can always reach back via p.Site()).
func Run(fun EntryFunc, arg any) (any, error) {
	ensureInit()
	s := NewSite()
	p := s.Create()
	return s.Enter(p, fun, arg)
}
