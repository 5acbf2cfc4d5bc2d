package mprompt

import "runtime"

// Backtrace collects up to len(pc) program counters for p's own call stack,
// implementing spec.md §6's backtrace. When p is the currently running
// prompt its frames are captured live, straight from this call; otherwise p
// is an active ancestor whose own goroutine is parked further in (blocked
// inside its own Enter/resumeOnce call), and runtime.Callers has no way to
// see a different goroutine's frames no matter which goroutine asks — so
// this returns the snapshot captureBlockedFrames took of p the last time its
// goroutine blocked, which is exactly p's own call stack at the instant it
// became "merely an ancestor" rather than "currently running".
func Backtrace(p *Prompt, pc []uintptr) int {
	if p == nil || len(pc) == 0 {
		return 0
	}
	if p.site.Top() == p {
		return runtime.Callers(2, pc)
	}
	return copy(pc, p.capturedPC)
}

// BacktraceAcrossPrompts stitches together the full chain from the
// currently running (innermost) prompt up through every ancestor on s,
// matching the original's cross-thread backtrace support: each prompt
// contributes its own segment (innermost live, every ancestor from its own
// stored snapshot) and segments are concatenated innermost-first, the same
// "walk outward one ancestor at a time" structure as
// original_source/src/mprompt/mprompt.c's mp_backtrace, adapted to collect
// each segment without needing to re-enter the ancestor's own frame.
func BacktraceAcrossPrompts(s *Site, maxFrames int) []uintptr {
	frames := make([]uintptr, 0, maxFrames)
	buf := make([]uintptr, maxFrames)
	for p := s.Top(); p != nil && len(frames) < maxFrames; p = s.Parent(p) {
		n := Backtrace(p, buf)
		if n > maxFrames-len(frames) {
			n = maxFrames - len(frames)
		}
		frames = append(frames, buf[:n]...)
	}
	return frames
}
