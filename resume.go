package mprompt

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Resumption is the Go expression of spec.md §3's tagged resumption pointer:
// a genuine sum type via an unexported marker method instead of a runtime
// tag bit, following spec.md Design Notes §9's own suggestion for
// statically-typed hosts.
type Resumption interface {
	isResumption()
}

// onceResumption is a resumption good for exactly one Resume/ResumeTail/
// ResumeDrop call. used is a pointer so every copy of the value (Resumption
// is handed around by value) shares the same one-shot guard.
type onceResumption struct {
	p            *Prompt
	epochAtYield token
	used         *int32
}

func newOnceResumption(p *Prompt, epoch token) onceResumption {
	u := int32(0)
	return onceResumption{p: p, epochAtYield: epoch, used: &u}
}

func (onceResumption) isResumption() {}

// multiResumption is a reference-counted handle onto a multiRecord, the Go
// analogue of mp_mresume_t.
type multiResumption struct {
	rec *multiRecord
}

func (multiResumption) isResumption() {}

// multiRecord is the replay log backing a multi-shot resumption (see
// SPEC_FULL.md substitution 4 and spec.md Design Notes §9). The first Resume
// call against it reuses the still-live suspended goroutine directly; every
// subsequent Resume call re-executes the entry function from scratch on a
// fresh pooled goroutine, fast-forwarding through every previously recorded
// argument at each already-seen yield (via Prompt's replay cursor, which
// returns recorded data without re-invoking the yield handler) before
// diverging live at this yield with the newly supplied argument.
type multiRecord struct {
	mu          sync.Mutex
	site        *Site
	fun         EntryFunc
	entryArg    any
	id          uuid.UUID
	steps       []replayStep
	live        *Prompt
	liveGuard   token
	refcount    int64
	resumeCount int64
}

// replayStep records one historical resume argument at a yield point.
type replayStep struct {
	arg any
}

// replayCursor is installed on a Prompt only while it is re-running a
// multi-shot replay; Yield consults it before ever touching a channel.
type replayCursor struct {
	steps []replayStep
	idx   int
}

// ResumeMulti converts r into a resumption that can be resumed more than
// once, implementing spec.md §4.4's to_multi. A once-resumption is consumed
// by this call; use the returned value afterward. Calling it on an
// already-multi resumption just bumps its reference count, the same as
// ResumeDup.
func ResumeMulti(r Resumption) Resumption {
	switch v := r.(type) {
	case multiResumption:
		v.rec.mu.Lock()
		v.rec.refcount++
		v.rec.mu.Unlock()
		return v
	case onceResumption:
		if !atomic.CompareAndSwapInt32(v.used, 0, 1) {
			fatalIntegrity("ResumeMulti", "resumption for prompt %s already consumed", v.p.id)
			return nil
		}
		p := v.p
		steps := append([]replayStep(nil), p.history...)
		rec := &multiRecord{
			site:      p.site,
			fun:       p.fun,
			entryArg:  p.entryArg,
			id:        uuid.New(),
			steps:     steps,
			live:      p,
			liveGuard: v.epochAtYield,
			refcount:  1,
		}
		return multiResumption{rec: rec}
	default:
		fatalIntegrity("ResumeMulti", "unknown resumption implementation")
		return nil
	}
}

// Resume implements spec.md §4.4's resume operation for both once- and
// multi-shot resumptions.
func Resume(r Resumption, arg any) (any, error) {
	switch v := r.(type) {
	case onceResumption:
		return resumeOnceHandle(v, arg)
	case multiResumption:
		return resumeMulti(v.rec, arg)
	default:
		return nil, usageError("Resume", "nil or unrecognized resumption")
	}
}

// ResumeTail is Resume immediately followed by ResumeDrop: spec.md's hint to
// the implementation that the caller holds no further reference. Unlike the
// original's longjmp-reuse optimization, our dispatch loop already bounds
// stack depth to O(1) per goroutine (see runHandler), so ResumeTail exists
// for API parity and to release the handle promptly rather than for a
// performance-critical fast path.
func ResumeTail(r Resumption, arg any) (any, error) {
	v, err := Resume(r, arg)
	ResumeDrop(r)
	return v, err
}

func resumeOnceHandle(r onceResumption, arg any) (any, error) {
	if !atomic.CompareAndSwapInt32(r.used, 0, 1) {
		return nil, usageError("Resume", "once-resumption for prompt %s already used", r.p.id)
	}
	if r.epochAtYield.unguard() != r.p.epoch {
		fatalIntegrity("Resume", "stale guard on prompt %s", r.p.id)
	}
	return resumeOnce(r.p, arg)
}

func resumeMulti(rec *multiRecord, arg any) (any, error) {
	rec.mu.Lock()
	rec.resumeCount++
	if rec.live != nil {
		p := rec.live
		rec.live = nil
		rec.mu.Unlock()

		if rec.liveGuard.unguard() != p.epoch {
			fatalIntegrity("Resume", "stale guard on prompt %s", p.id)
		}
		// rec.steps is deliberately left untouched: it is the fixed prefix
		// leading up to this record's yield point, and every later call
		// (replayed from scratch) must diverge from that same prefix,
		// not from whichever argument this first, live-goroutine branch
		// happened to pick.
		return resumeOnce(p, arg)
	}

	steps := make([]replayStep, len(rec.steps), len(rec.steps)+1)
	copy(steps, rec.steps)
	steps = append(steps, replayStep{arg: arg})
	fun, entryArg, site := rec.fun, rec.entryArg, rec.site
	rec.mu.Unlock()

	p2 := newPrompt(site)
	p2.replay = &replayCursor{steps: steps}
	return site.Enter(p2, fun, entryArg)
}

// ResumeDrop releases a resumption without resuming it, implementing
// spec.md §4.4's resume_drop. Dropping the last reference to a still-live
// suspended prompt unwinds its goroutine (see abandonPrompt/abandonSignal in
// prompt.go) rather than leaking it forever.
func ResumeDrop(r Resumption) {
	switch v := r.(type) {
	case onceResumption:
		if atomic.CompareAndSwapInt32(v.used, 0, 1) {
			abandonPrompt(v.p)
			v.p.dropDelayed()
		}
	case multiResumption:
		v.rec.mu.Lock()
		v.rec.refcount--
		var live *Prompt
		if v.rec.refcount <= 0 {
			live = v.rec.live
			v.rec.live = nil
		}
		v.rec.mu.Unlock()
		if live != nil {
			abandonPrompt(live)
			live.dropDelayed()
		}
	}
}

// ResumeDup implements spec.md §4.4's resume_dup: duplicating a once-handle
// is a usage error (there is nothing to share), duplicating a multi-handle
// bumps its reference count.
func ResumeDup(r Resumption) (Resumption, error) {
	switch v := r.(type) {
	case onceResumption:
		return nil, usageError("ResumeDup", "once-resumptions cannot be duplicated; call ResumeMulti first")
	case multiResumption:
		v.rec.mu.Lock()
		v.rec.refcount++
		v.rec.mu.Unlock()
		return v, nil
	default:
		return nil, usageError("ResumeDup", "unknown resumption")
	}
}

// ResumeCount reports how many times r has been resumed so far, implementing
// spec.md §4.4's resume_count (0 or 1 for a once-resumption).
func ResumeCount(r Resumption) int64 {
	switch v := r.(type) {
	case onceResumption:
		if atomic.LoadInt32(v.used) != 0 {
			return 1
		}
		return 0
	case multiResumption:
		v.rec.mu.Lock()
		defer v.rec.mu.Unlock()
		return v.rec.resumeCount
	default:
		return 0
	}
}

// ResumeShouldUnwind reports whether r is the sole reference to its
// resumption and has never been resumed, so dropping it right now means the
// suspended computation will never run, implementing spec.md §4.4's
// resume_should_unwind — supplemented from original_source/'s
// mp_resume_should_unwind, which the distilled spec only gestures at.
func ResumeShouldUnwind(r Resumption) bool {
	switch v := r.(type) {
	case onceResumption:
		return atomic.LoadInt32(v.used) == 0
	case multiResumption:
		v.rec.mu.Lock()
		defer v.rec.mu.Unlock()
		return v.rec.refcount <= 1 && v.rec.resumeCount == 0
	default:
		return false
	}
}
