package mprompt

import "sync"

// Site is the explicit stand-in for spec.md §4.3's thread-local
// current_top: Go goroutines are not pinned to OS threads and there is no
// stable thread-local storage available without unsafe runtime linkage
// (deliberately avoided here — see DESIGN.md), so the "per-thread active
// chain" becomes an ordinary value threaded explicitly from whichever
// goroutine lineage first calls Run/Site.Enter down through every nested
// Create/Yield via the *Prompt each carries. A *Site must only ever be
// driven by one logical lineage of goroutines at a time — concurrent use
// from two independent call sites is the Go expression of "a prompt is
// bound to the thread that created it" (spec.md §5) and is not guarded
// against beyond the mutex below, which only protects the chain pointer
// itself from a torn read, not from misuse.
type Site struct {
	mu  sync.Mutex
	top *Prompt
}

// NewSite creates a fresh, empty active chain.
func NewSite() *Site {
	ensureInit()
	return &Site{}
}

// Top returns the innermost active prompt on this site's chain, or nil.
func (s *Site) Top() *Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.top
}

// Parent mirrors mp_prompt_parent: with p == nil it returns Top(); otherwise
// it returns p.parent.
func (s *Site) Parent(p *Prompt) *Prompt {
	if p == nil {
		return s.Top()
	}
	return p.parent
}

// IsAncestor reports whether p appears on the active chain walked from Top().
func (s *Site) IsAncestor(p *Prompt) bool {
	for q := s.Parent(nil); q != nil; q = s.Parent(q) {
		if q == p {
			return true
		}
	}
	return false
}

// Create allocates a fresh, suspended (pre-initial) prompt bound to this
// site.
func (s *Site) Create() *Prompt {
	ensureInit()
	return newPrompt(s)
}

// link is the Go analogue of mp_prompt_link: publish p as the new chain top,
// restoring the captured chain rooted at p.top if p was a suspended chain
// head rather than a fresh prompt.
func (s *Site) link(p *Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.parent = s.top
	s.top = firstOf(p.top, p)
	p.top = nil
	p.epoch++
	p.guardedEpoch = guard(p.epoch)
}

// unlink is the Go analogue of mp_prompt_unlink: remove p (and everything
// above it on the chain) from the active chain, suspending it, and restore
// the chain to p's parent.
func (s *Site) unlink(p *Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.top = s.top
	s.top = p.parent
	p.parent = nil
	p.epoch++
	p.guardedEpoch = guard(p.epoch)
}

func firstOf(a, b *Prompt) *Prompt {
	if a != nil {
		return a
	}
	return b
}

// PromptTop returns the prompt currently at the top of s's active chain.
func PromptTop(s *Site) *Prompt { return s.Top() }

// PromptParent returns p's parent on s's active chain (or the current top if
// p is nil).
func PromptParent(s *Site, p *Prompt) *Prompt { return s.Parent(p) }
